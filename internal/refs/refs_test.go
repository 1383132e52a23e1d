package refs

import (
	"context"
	"errors"
	"go/ast"
	"go/constant"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/ppiankov/livecode/internal/inventory"
	"github.com/ppiankov/livecode/internal/model"
	"github.com/ppiankov/livecode/internal/policy"
)

const widgetsPath = "example.com/widgets"

// Widget is registered as a project module in tests.
type Widget struct {
	Name  string
	count int
}

func (w Widget) Label() string { return "widget:" + w.Name }
func (w *Widget) Inc()         { w.count++ }

type Limit int

func NewWidget(name string) *Widget { return &Widget{Name: name} }

var DefaultWidget = Widget{Name: "default"}

func widgetTable() map[string]map[string]reflect.Value {
	return map[string]map[string]reflect.Value{
		widgetsPath + "/widgets": {
			"Widget":        reflect.ValueOf((*Widget)(nil)),
			"NewWidget":     reflect.ValueOf(NewWidget),
			"DefaultWidget": reflect.ValueOf(&DefaultWidget).Elem(),
			"Answer":        reflect.ValueOf(constant.MakeInt64(42)),
			"MaxLimit":      reflect.ValueOf(Limit(10)),
			"_Hidden":       reflect.ValueOf(1),
		},
	}
}

// Chain is a self-referential generic type, like the internals of sync.Map.
type Chain[T any] struct {
	Value T
	next  *Chain[T]
}

func (c *Chain[T]) Next() *Chain[T] { return c.next }

func newTestResolver(t *testing.T) (*Resolver, *inventory.Registry) {
	t.Helper()
	reg := inventory.Default()
	if err := reg.RegisterTable(model.KindProject, "test", "v1.0.0", widgetTable()); err != nil {
		t.Fatalf("register widgets: %v", err)
	}
	return NewResolver(reg, policy.Default(), nil), reg
}

func typeCheck(t *testing.T, set *Set, src string) error {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "snippet.go", src, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	conf := types.Config{Importer: set}
	_, err = conf.Check("snippet", fset, []*ast.File{f}, nil)
	return err
}

func TestDisabledBuildsNothing(t *testing.T) {
	r, reg := newTestResolver(t)

	_, err := r.Build(context.Background(), model.Disabled)
	if !errors.Is(err, policy.ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if r.Builds() != 0 {
		t.Errorf("expected no builds, got %d", r.Builds())
	}
	if reg.Queries() != 0 {
		t.Errorf("expected no inventory queries, got %d", reg.Queries())
	}
}

func TestBuildCachedPerLevel(t *testing.T) {
	r, reg := newTestResolver(t)
	ctx := context.Background()

	a, err := r.Build(ctx, model.Restricted)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, err := r.Build(ctx, model.Restricted)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if a != b {
		t.Error("expected the same set for the same level")
	}
	if reg.Queries() != 1 {
		t.Errorf("expected 1 inventory query, got %d", reg.Queries())
	}

	if _, err := r.Build(ctx, model.FullAccess); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if r.Builds() != 2 {
		t.Errorf("expected 2 builds, got %d", r.Builds())
	}

	r.Reset()
	c, err := r.Build(ctx, model.Restricted)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if c == a {
		t.Error("expected a fresh set after Reset")
	}
}

func TestRestrictedAndFullAccessScope(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	restricted, err := r.Build(ctx, model.Restricted)
	if err != nil {
		t.Fatal(err)
	}
	full, err := r.Build(ctx, model.FullAccess)
	if err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{"fmt", "strings", "os", widgetsPath, "github.com/ppiankov/livecode/sdk/go/host"} {
		if !restricted.Has(p) {
			t.Errorf("expected restricted set to contain %s", p)
		}
		if !full.Has(p) {
			t.Errorf("expected full access set to contain %s", p)
		}
	}
	if restricted.Has("os/exec") {
		t.Error("expected restricted set to exclude loaded module os/exec")
	}
	if !full.Has("os/exec") {
		t.Error("expected full access set to include loaded module os/exec")
	}
	for _, p := range full.Paths() {
		if strings.Contains(p, "traefik/yaegi") {
			t.Errorf("expected interpreter package %s excluded", p)
		}
	}
}

func TestImportRefusesOutsideSet(t *testing.T) {
	r, _ := newTestResolver(t)
	set, err := r.Build(context.Background(), model.Restricted)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := set.Import("os/exec"); !errors.Is(err, ErrNotInReferenceSet) {
		t.Errorf("expected ErrNotInReferenceSet, got %v", err)
	}
	pkg, err := set.Import("strings")
	if err != nil {
		t.Fatalf("Import strings: %v", err)
	}
	if pkg.Name() != "strings" || !pkg.Complete() {
		t.Errorf("unexpected package %v", pkg)
	}
}

func TestConvertedStdlibTypeChecks(t *testing.T) {
	r, _ := newTestResolver(t)
	set, err := r.Build(context.Background(), model.Restricted)
	if err != nil {
		t.Fatal(err)
	}

	src := `package snippet

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"time"
)

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) add() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func Run() (any, error) {
	var r io.Reader = strings.NewReader("hello")
	buf := make([]byte, 5)
	n, err := r.Read(buf)
	if errors.Is(err, io.EOF) {
		return nil, err
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d %s", n, buf))
	d := 2 * time.Second
	var big int64 = math.MaxInt64
	_, statErr := os.Stat("/nonexistent")
	if os.IsNotExist(statErr) || errors.Is(statErr, os.ErrNotExist) {
		big--
	}
	c := &counter{}
	c.add()
	return fmt.Sprint(b.String(), d.Seconds(), big, c.n), nil
}
`
	if err := typeCheck(t, set, src); err != nil {
		t.Fatalf("expected stdlib snippet to type check, got %v", err)
	}
}

func TestConvertedProjectModule(t *testing.T) {
	r, _ := newTestResolver(t)
	set, err := r.Build(context.Background(), model.Restricted)
	if err != nil {
		t.Fatal(err)
	}

	src := `package snippet

import "example.com/widgets"

func Run() any {
	w := widgets.NewWidget("a")
	w.Inc()
	var copy widgets.Widget = widgets.DefaultWidget
	var limit widgets.MaxLimitType
	_ = limit
	return copy.Label() + w.Name
}
`
	// MaxLimitType does not exist; the error proves lookups are real.
	if err := typeCheck(t, set, src); err == nil {
		t.Fatal("expected unknown type to fail")
	}

	src = strings.Replace(src, "var limit widgets.MaxLimitType\n\t_ = limit\n", "const a = widgets.Answer + 1\n\t_ = widgets.MaxLimit * 2\n", 1)
	if err := typeCheck(t, set, src); err != nil {
		t.Fatalf("expected project snippet to type check, got %v", err)
	}

	if set.Lookup(widgetsPath, "_Hidden") != nil {
		t.Error("expected wrapper entries to be skipped")
	}
	if _, ok := set.Lookup(widgetsPath, "Answer").(*types.Const); !ok {
		t.Error("expected Answer to be a constant")
	}
	if _, ok := set.Lookup(widgetsPath, "DefaultWidget").(*types.Var); !ok {
		t.Error("expected DefaultWidget to be a variable")
	}
}

func TestConvertedTypesMatchCompiler(t *testing.T) {
	r, _ := newTestResolver(t)
	set, err := r.Build(context.Background(), model.Restricted)
	if err != nil {
		t.Fatal(err)
	}

	// Compare method sets against the toolchain's export data where available.
	std, err := importer.ForCompiler(token.NewFileSet(), "source", nil).Import("strings")
	if err != nil {
		t.Skipf("source importer unavailable: %v", err)
	}
	want := types.NewMethodSet(types.NewPointer(std.Scope().Lookup("Builder").Type()))

	got, _ := set.Import("strings")
	have := types.NewMethodSet(types.NewPointer(got.Scope().Lookup("Builder").Type()))

	for i := 0; i < want.Len(); i++ {
		name := want.At(i).Obj().Name()
		if !want.At(i).Obj().Exported() {
			continue
		}
		if have.Lookup(got, name) == nil {
			t.Errorf("missing method (*strings.Builder).%s", name)
		}
	}
}

func TestWithExtraAndAllLoaded(t *testing.T) {
	r, _ := newTestResolver(t)
	set, err := r.Build(context.Background(), model.Restricted)
	if err != nil {
		t.Fatal(err)
	}

	same, missing := set.With([]string{"strings", "example.com/nope"}, model.ModeProject)
	if same != set {
		t.Error("expected unchanged set when nothing is added")
	}
	if len(missing) != 1 || missing[0] != "example.com/nope" {
		t.Errorf("expected missing example.com/nope, got %v", missing)
	}

	withExec, _ := set.With([]string{"os/exec"}, model.ModeProject)
	if !withExec.Has("os/exec") || set.Has("os/exec") {
		t.Error("expected extra reference to add os/exec without mutating the base set")
	}

	all, _ := set.With(nil, model.ModeAllLoaded)
	if !all.Has("os/exec") {
		t.Error("expected all_loaded mode to add loaded modules")
	}
}

func TestExportsMatchSet(t *testing.T) {
	r, _ := newTestResolver(t)
	set, err := r.Build(context.Background(), model.Restricted)
	if err != nil {
		t.Fatal(err)
	}

	exports := set.Exports()
	if len(exports) != set.Len() {
		t.Errorf("expected %d export tables, got %d", set.Len(), len(exports))
	}
	if _, ok := exports["fmt/fmt"]; !ok {
		t.Error("expected fmt/fmt key")
	}
	if _, ok := exports[widgetsPath+"/widgets"]; !ok {
		t.Error("expected project module key")
	}
	if _, ok := exports["os/exec/exec"]; ok {
		t.Error("expected os/exec absent from restricted exports")
	}
}

func TestIndexes(t *testing.T) {
	r, _ := newTestResolver(t)
	set, err := r.Build(context.Background(), model.Restricted)
	if err != nil {
		t.Fatal(err)
	}

	rands := set.PackagesNamed("rand")
	if !contains(rands, "crypto/rand") || !contains(rands, "math/rand") {
		t.Errorf("expected crypto/rand and math/rand, got %v", rands)
	}

	if got := set.Exporting("ToUpper"); !contains(got, "strings") || !contains(got, "bytes") {
		t.Errorf("expected strings and bytes to export ToUpper, got %v", got)
	}

	if got := set.TypesWithMember("Builder", "WriteString"); !contains(got, "strings") {
		t.Errorf("expected strings.Builder.WriteString, got %v", got)
	}
	if got := set.TypesWithMember("Builder", "Nope"); len(got) != 0 {
		t.Errorf("expected no candidates, got %v", got)
	}
}

func TestDedupe(t *testing.T) {
	sym := func(name string) map[string]reflect.Value {
		return map[string]reflect.Value{name: reflect.ValueOf(1)}
	}
	mods := []inventory.Module{
		{Path: "example.com/a", Name: "a", Version: "v1.2.0", Location: "old", Kind: model.KindProject, Symbols: sym("Old")},
		{Path: "example.com/a", Name: "a", Version: "v1.10.0", Location: "new", Kind: model.KindProject, Symbols: sym("New")},
		{Path: "example.com/b", Name: "b", Location: "one", Kind: model.KindLoaded, Symbols: sym("One")},
		{Path: "example.com/b", Name: "b", Location: "two", Kind: model.KindProject, Symbols: sym("Two")},
		{Path: "example.com/native", Name: "native", Location: "lib", Kind: model.KindLoaded},
		{Path: "golang.org/x/tools/go/analysis", Name: "analysis", Kind: model.KindLoaded, Symbols: sym("Analyzer")},
	}

	units, skipped := Dedupe(mods)
	if skipped != 2 {
		t.Errorf("expected 2 skipped modules, got %d", skipped)
	}
	a := units["example.com/a"]
	if a == nil || a.Version != "v1.10.0" || !a.Symbols["New"].IsValid() || a.Symbols["Old"].IsValid() {
		t.Errorf("expected highest version to win, got %+v", a)
	}
	b := units["example.com/b"]
	if b == nil || len(b.Symbols) != 2 || len(b.Locations) != 2 {
		t.Errorf("expected equal versions to merge, got %+v", b)
	}
	if b.Kind != model.KindProject {
		t.Errorf("expected merged kind project, got %s", b.Kind)
	}
	if _, ok := units["example.com/native"]; ok {
		t.Error("expected opaque module skipped")
	}
}

func TestIsTooling(t *testing.T) {
	tests := []struct {
		path, location string
		want           bool
	}{
		{"golang.org/x/tools/go/ast/astutil", "", true},
		{"example.com/lint/analyzer", "", true},
		{"example.com/thing_test", "", true},
		{"example.com/thing", "/src/internal/tools/thing", true},
		{"strings", inventory.LocationStdlib, false},
		{"example.com/widgets", "project", false},
	}
	for _, tt := range tests {
		if got := IsTooling(tt.path, tt.location); got != tt.want {
			t.Errorf("IsTooling(%q, %q) = %v, want %v", tt.path, tt.location, got, tt.want)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestConvertSelfReferentialGenerics(t *testing.T) {
	reg := inventory.NewRegistry()
	err := reg.RegisterTable(model.KindProject, "test", "v1.0.0", map[string]map[string]reflect.Value{
		"example.com/syncwrap/syncwrap": {
			"Map":      reflect.ValueOf((*sync.Map)(nil)),
			"IntChain": reflect.ValueOf((*Chain[int])(nil)),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	set, err := NewResolver(reg, nil, nil).Build(context.Background(), model.Restricted)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	src := `package snippet

import "example.com/syncwrap"

func Run() any {
	var m syncwrap.Map
	m.Store("k", 1)
	v, _ := m.Load("k")
	var c syncwrap.IntChain
	return []any{v, c.Value, c.Next()}
}
`
	if err := typeCheck(t, set, src); err != nil {
		t.Fatalf("expected generic-backed types to type check, got %v", err)
	}

	pkg, err := set.Import("example.com/syncwrap")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range pkg.Scope().Names() {
		if strings.Contains(name, "[") {
			t.Errorf("instantiated type %q leaked into package scope", name)
		}
	}
}
