package resolve

import (
	"context"
	"go/parser"
	"go/token"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/ppiankov/livecode/internal/inventory"
	"github.com/ppiankov/livecode/internal/model"
	"github.com/ppiankov/livecode/internal/normalize"
	"github.com/ppiankov/livecode/internal/policy"
	"github.com/ppiankov/livecode/internal/refs"
)

var (
	setOnce sync.Once
	testSet *refs.Set
	setErr  error
)

func restrictedSet(t *testing.T) *refs.Set {
	t.Helper()
	setOnce.Do(func() {
		r := refs.NewResolver(inventory.Default(), policy.Default(), nil)
		testSet, setErr = r.Build(context.Background(), model.Restricted)
	})
	if setErr != nil {
		t.Fatalf("build reference set: %v", setErr)
	}
	return testSet
}

func resolveSnippet(t *testing.T, body string) *Outcome {
	t.Helper()
	set := restrictedSet(t)
	w := normalize.Wrap(body, model.DefaultNamespace, model.DefaultTypeName)
	if len(w.Errors) > 0 {
		t.Fatalf("wrap: %v", w.Errors)
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "snippet.go", w.Source, parser.ParseComments)
	if err != nil {
		t.Fatalf("parse: %v\n%s", err, w.Source)
	}
	out, err := Resolve(context.Background(), w.Source, fset, file, set, Checker(set, w.Package))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return out
}

func hasImport(out *Outcome, path string) bool {
	for _, imp := range out.File.Imports {
		if strings.Trim(imp.Path.Value, `"`) == path {
			return true
		}
	}
	return false
}

func TestResolveNothingToDo(t *testing.T) {
	out := resolveSnippet(t, `return 1 + 1`)
	if out.Iterations != 0 {
		t.Errorf("iterations = %d, want 0", out.Iterations)
	}
	if len(out.Check.HardErrors()) != 0 {
		t.Errorf("unexpected errors: %v", out.Check.HardErrors())
	}
	if len(out.Inserted) != 0 {
		t.Errorf("inserted = %v", out.Inserted)
	}
}

func TestResolveUniquePackage(t *testing.T) {
	out := resolveSnippet(t, `return strings.ToUpper("go")`)
	if !hasImport(out, "strings") {
		t.Fatalf("strings not imported:\n%s", out.Source)
	}
	if errs := out.Check.HardErrors(); len(errs) != 0 {
		t.Errorf("errors after fix: %v", errs)
	}
	if !slices.Equal(out.Inserted, []string{"strings"}) {
		t.Errorf("inserted = %v", out.Inserted)
	}
	if len(out.Ambiguous) != 0 {
		t.Errorf("ambiguous = %v", out.Ambiguous)
	}
}

func TestResolveAmbiguousPackage(t *testing.T) {
	out := resolveSnippet(t, `return rand.Int()`)
	cands, ok := out.Ambiguous["rand"]
	if !ok {
		t.Fatalf("rand not ambiguous: %v", out.Ambiguous)
	}
	for _, want := range []string{"crypto/rand", "math/rand"} {
		if !slices.Contains(cands, want) {
			t.Errorf("candidates %v missing %s", cands, want)
		}
	}
	if !slices.IsSorted(cands) {
		t.Errorf("candidates not sorted: %v", cands)
	}
	if hasImport(out, "math/rand") || hasImport(out, "crypto/rand") {
		t.Error("ambiguous name must not be imported")
	}
	if len(out.Check.HardErrors()) == 0 {
		t.Error("expected remaining undefined error")
	}
}

func TestResolveMemberNarrowsCandidates(t *testing.T) {
	// Only math/rand exports Intn among packages named rand.
	out := resolveSnippet(t, `return rand.Intn(10)`)
	if !hasImport(out, "math/rand") {
		t.Fatalf("math/rand not imported:\n%s", out.Source)
	}
	if _, ok := out.Ambiguous["rand"]; ok {
		t.Error("rand should not be ambiguous")
	}
}

func TestResolveSeveralPackagesOneRound(t *testing.T) {
	out := resolveSnippet(t, `s := strings.Repeat("a", 3)
return strconv.Itoa(len(s))`)
	if !hasImport(out, "strings") || !hasImport(out, "strconv") {
		t.Fatalf("imports missing:\n%s", out.Source)
	}
	if out.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", out.Iterations)
	}
	if errs := out.Check.HardErrors(); len(errs) != 0 {
		t.Errorf("errors after fix: %v", errs)
	}
}

type Circle struct{ R float64 }

func (c Circle) Area() float64 { return 3 * c.R * c.R }

type Point struct{ X, Y int }

func geoSet(t *testing.T) *refs.Set {
	t.Helper()
	reg := inventory.Default()
	tables := map[string]map[string]map[string]reflect.Value{
		"example.com/geo": {"example.com/geo/geo": {
			"Circle": reflect.ValueOf((*Circle)(nil)),
			"Point":  reflect.ValueOf((*Point)(nil)),
		}},
		"example.com/plot": {"example.com/plot/plot": {
			"Point": reflect.ValueOf((*Point)(nil)),
		}},
	}
	for name, table := range tables {
		if err := reg.RegisterTable(model.KindProject, "test", "v1.0.0", table); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	set, err := refs.NewResolver(reg, policy.Default(), nil).Build(context.Background(), model.Restricted)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return set
}

func resolveWith(t *testing.T, set *refs.Set, body string) *Outcome {
	t.Helper()
	w := normalize.Wrap(body, model.DefaultNamespace, model.DefaultTypeName)
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "snippet.go", w.Source, parser.ParseComments)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := Resolve(context.Background(), w.Source, fset, file, set, Checker(set, w.Package))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return out
}

func TestResolveBarePascalType(t *testing.T) {
	out := resolveWith(t, geoSet(t), `c := Circle{R: 2}
return c.Area()`)
	if !hasImport(out, "example.com/geo") {
		t.Fatalf("geo not imported:\n%s", out.Source)
	}
	if !strings.Contains(out.Source, "geo.Circle{R: 2}") {
		t.Errorf("Circle not qualified:\n%s", out.Source)
	}
	if errs := out.Check.HardErrors(); len(errs) != 0 {
		t.Errorf("errors after fix: %v", errs)
	}
}

func TestResolveBarePascalAmbiguous(t *testing.T) {
	out := resolveWith(t, geoSet(t), `p := Point{X: 1}
return p.X`)
	cands := out.Ambiguous["Point"]
	for _, want := range []string{"example.com/geo", "example.com/plot"} {
		if !slices.Contains(cands, want) {
			t.Errorf("candidates %v missing %s", cands, want)
		}
	}
}

func TestResolveUnknownNameLeftAlone(t *testing.T) {
	out := resolveSnippet(t, `return nosuchpkg.Value`)
	if len(out.Inserted) != 0 {
		t.Errorf("inserted = %v", out.Inserted)
	}
	if len(out.Ambiguous) != 0 {
		t.Errorf("ambiguous = %v", out.Ambiguous)
	}
	if len(out.Check.HardErrors()) == 0 {
		t.Error("expected undefined error")
	}
}

func TestResolveLowercaseBareNotResolved(t *testing.T) {
	out := resolveSnippet(t, `return undefinedThing`)
	if len(out.Inserted) != 0 || len(out.Ambiguous) != 0 {
		t.Errorf("inserted=%v ambiguous=%v", out.Inserted, out.Ambiguous)
	}
}

func TestResolveRestrictedHidesLoaded(t *testing.T) {
	// os/exec is a loaded module and not visible under restricted.
	out := resolveSnippet(t, `return exec.Command("ls")`)
	if hasImport(out, "os/exec") {
		t.Fatal("restricted set must not import os/exec")
	}
}

func TestResolveCancelled(t *testing.T) {
	set := restrictedSet(t)
	w := normalize.Wrap(`return strings.ToUpper("x")`, "snippet", "Run")
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "snippet.go", w.Source, parser.ParseComments)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Resolve(ctx, w.Source, fset, file, set, Checker(set, w.Package)); err == nil {
		t.Fatal("expected context error")
	}
}

func TestCandidatesFilterInternal(t *testing.T) {
	got := filterImportable([]string{"internal/x", "a/internal/b", "vendor/c", "strings"})
	if !slices.Equal(got, []string{"strings"}) {
		t.Errorf("filterImportable = %v", got)
	}
}

func TestImportNameAliasesOnCollision(t *testing.T) {
	fset := token.NewFileSet()
	src := "package p\n\nimport strings \"example.com/strings\"\n\nvar _ = strings.X\n"
	file, err := parser.ParseFile(fset, "p.go", src, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := importName(file, "strings", "strings"); got != "strings2" {
		t.Errorf("importName = %q, want strings2", got)
	}
	if got := importName(file, "strings", "example.com/strings"); got != "strings" {
		t.Errorf("importName existing = %q", got)
	}
}

func TestResolveKeepsUserImportOrder(t *testing.T) {
	out := resolveSnippet(t, "import (\n\t\"strings\"\n\t\"fmt\"\n)\n_ = fmt.Sprint(1)\nreturn strings.ToUpper(strconv.Itoa(1))")
	if !hasImport(out, "strconv") {
		t.Fatalf("expected strconv to be imported:\n%s", out.Source)
	}
	if strings.Index(out.Source, `"strings"`) > strings.Index(out.Source, `"fmt"`) {
		t.Errorf("user imports were reordered:\n%s", out.Source)
	}
}
