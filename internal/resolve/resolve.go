// Package resolve repairs "undefined" type errors by inserting imports for
// names that resolve to exactly one package of the reference set.
package resolve

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/ppiankov/livecode/internal/normalize"
	"github.com/ppiankov/livecode/internal/refs"
)

// MaxIterations bounds the fix-and-recheck loop.
const MaxIterations = 3

var undefinedRe = regexp.MustCompile(`undefined: ([\p{L}_][\p{L}\p{N}_]*)`)

// CheckResult is one type-check pass over a file.
type CheckResult struct {
	Pkg    *types.Package
	Info   *types.Info
	Errors []types.Error
}

// HardErrors returns errors that are not soft.
func (r *CheckResult) HardErrors() []types.Error {
	var out []types.Error
	for _, e := range r.Errors {
		if !e.Soft {
			out = append(out, e)
		}
	}
	return out
}

// CheckFunc type-checks file against the reference set.
type CheckFunc func(fset *token.FileSet, file *ast.File) *CheckResult

// Outcome is the state after the last check.
type Outcome struct {
	Source     string
	Fset       *token.FileSet
	File       *ast.File
	Check      *CheckResult
	Ambiguous  map[string][]string
	Inserted   []string
	Iterations int
}

// unresolved is one undefined name at a use site.
type unresolved struct {
	ident     *ast.Ident
	qualifier bool   // ident is X in X.Member
	member    string // Member when qualifier
}

// Resolve type-checks file and, for up to MaxIterations rounds, inserts
// imports for undefined names with exactly one candidate package.
// Names with several candidates are reported in Outcome.Ambiguous.
func Resolve(ctx context.Context, src string, fset *token.FileSet, file *ast.File, set *refs.Set, check CheckFunc) (*Outcome, error) {
	out := &Outcome{
		Source:    src,
		Fset:      fset,
		File:      file,
		Check:     check(fset, file),
		Ambiguous: make(map[string][]string),
	}

	for out.Iterations < MaxIterations {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		names := collect(out.File, out.Check)
		if len(names) == 0 {
			break
		}
		out.Iterations++

		fixed := 0
		done := make(map[string]bool)
		for _, u := range names {
			key := u.ident.Name
			if done[key] {
				continue
			}
			done[key] = true

			cands := candidates(u, set)
			switch len(cands) {
			case 0:
			case 1:
				if path := apply(out.Fset, out.File, u, cands[0], set, out.Check.Info); path != "" {
					out.Inserted = append(out.Inserted, path)
					fixed++
				}
			default:
				out.Ambiguous[key] = cands
			}
		}
		if fixed == 0 {
			break
		}

		src, err := normalize.Print(out.Fset, out.File)
		if err != nil {
			return out, err
		}
		nfset := token.NewFileSet()
		nfile, err := parser.ParseFile(nfset, "snippet.go", src, parser.ParseComments)
		if err != nil {
			return out, err
		}
		out.Source = src
		out.Fset = nfset
		out.File = nfile
		out.Check = check(nfset, nfile)
	}

	// Fixed names are no longer ambiguous.
	for key := range out.Ambiguous {
		if !stillUndefined(out.File, out.Check, key) {
			delete(out.Ambiguous, key)
		}
	}
	return out, nil
}

// collect finds the undefined names behind the check errors, preferring
// the identifier at the error position over parsing the message.
func collect(file *ast.File, res *CheckResult) []unresolved {
	var out []unresolved
	seen := make(map[*ast.Ident]bool)
	for _, e := range res.Errors {
		if e.Soft {
			continue
		}
		path, _ := astutil.PathEnclosingInterval(file, e.Pos, e.Pos)
		var id *ast.Ident
		if len(path) > 0 {
			if x, ok := path[0].(*ast.Ident); ok && x.Pos() == e.Pos && isUnresolved(x, res.Info) {
				id = x
			}
		}
		if id == nil {
			m := undefinedRe.FindStringSubmatch(e.Msg)
			if m == nil {
				continue
			}
			id = firstUnresolved(file, res.Info, m[1])
			if id == nil {
				continue
			}
			path, _ = astutil.PathEnclosingInterval(file, id.Pos(), id.End())
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		u := unresolved{ident: id}
		if len(path) > 1 {
			if sel, ok := path[1].(*ast.SelectorExpr); ok && sel.X == id {
				u.qualifier = true
				u.member = sel.Sel.Name
			}
		}
		out = append(out, u)
	}
	return out
}

func isUnresolved(id *ast.Ident, info *types.Info) bool {
	if id.Name == "_" {
		return false
	}
	return info.Uses[id] == nil && info.Defs[id] == nil
}

func firstUnresolved(file *ast.File, info *types.Info, name string) *ast.Ident {
	var found *ast.Ident
	ast.Inspect(file, func(n ast.Node) bool {
		if found != nil {
			return false
		}
		if id, ok := n.(*ast.Ident); ok && id.Name == name && isUnresolved(id, info) {
			found = id
		}
		return true
	})
	return found
}

func stillUndefined(file *ast.File, res *CheckResult, name string) bool {
	for _, u := range collect(file, res) {
		if u.ident.Name == name {
			return true
		}
	}
	return false
}

// candidates returns the sorted import paths that could define u.
// Lowercase bare identifiers are never candidates.
func candidates(u unresolved, set *refs.Set) []string {
	name := u.ident.Name
	var cands []string
	switch {
	case u.qualifier && !isPascal(name):
		for _, p := range set.PackagesNamed(name) {
			if obj := set.Lookup(p, u.member); obj != nil && obj.Exported() {
				cands = append(cands, p)
			}
		}
	case u.qualifier:
		cands = set.TypesWithMember(name, u.member)
	case isPascal(name):
		cands = set.Exporting(name)
	}
	cands = filterImportable(cands)
	sort.Strings(cands)
	return cands
}

func filterImportable(paths []string) []string {
	var out []string
	for _, p := range paths {
		if p == "internal" || strings.HasPrefix(p, "internal/") || strings.Contains(p, "/internal/") || strings.HasPrefix(p, "vendor/") {
			continue
		}
		out = append(out, p)
	}
	return out
}

func isPascal(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

// apply imports path and, for Pascal-case names, qualifies every
// unresolved use of the name. Returns the inserted path or "".
func apply(fset *token.FileSet, file *ast.File, u unresolved, path string, set *refs.Set, info *types.Info) string {
	unit, ok := set.Unit(path)
	if !ok {
		return ""
	}

	if u.qualifier && !isPascal(u.ident.Name) {
		// rand.Int: the qualifier already is the package name.
		if lastElem(path) == u.ident.Name {
			astutil.AddImport(fset, file, path)
		} else {
			astutil.AddNamedImport(fset, file, u.ident.Name, path)
		}
		return path
	}

	name := importName(file, unit.Name, path)
	if name == unit.Name && lastElem(path) == name {
		astutil.AddImport(fset, file, path)
	} else {
		astutil.AddNamedImport(fset, file, name, path)
	}
	qualify(file, info, u.ident.Name, name)
	return path
}

// importName returns the name to import path under: the package name, or
// an alias when that name is already taken in the file.
func importName(file *ast.File, pkgName, path string) string {
	taken := make(map[string]bool)
	for _, imp := range file.Imports {
		ipath, _ := strconv.Unquote(imp.Path.Value)
		if ipath == path {
			if imp.Name != nil {
				return imp.Name.Name
			}
			return pkgName
		}
		if imp.Name != nil {
			taken[imp.Name.Name] = true
		} else {
			taken[lastElem(ipath)] = true
		}
	}
	for _, obj := range file.Scope.Objects {
		taken[obj.Name] = true
	}
	for _, d := range file.Decls {
		if fd, ok := d.(*ast.FuncDecl); ok && fd.Recv == nil {
			taken[fd.Name.Name] = true
		}
	}

	if !taken[pkgName] {
		return pkgName
	}
	for i := 2; ; i++ {
		alias := pkgName + strconv.Itoa(i)
		if !taken[alias] {
			return alias
		}
	}
}

// qualify rewrites unresolved uses of name into pkg.name.
func qualify(file *ast.File, info *types.Info, name, pkg string) {
	astutil.Apply(file, func(c *astutil.Cursor) bool {
		id, ok := c.Node().(*ast.Ident)
		if !ok || id.Name != name || !isUnresolved(id, info) {
			return true
		}
		switch c.Name() {
		case "Sel", "Name", "Names", "Label":
			return true
		}
		if _, isField := c.Parent().(*ast.Field); isField && c.Name() != "Type" {
			return true
		}
		c.Replace(&ast.SelectorExpr{
			X:   &ast.Ident{NamePos: id.NamePos, Name: pkg},
			Sel: &ast.Ident{NamePos: id.NamePos, Name: name},
		})
		return false
	}, nil)
}

func lastElem(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
