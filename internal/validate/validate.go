// Package validate inspects type-checked snippets for references to
// denied APIs and forbidden namespaces.
package validate

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/ppiankov/livecode/internal/model"
	"github.com/ppiankov/livecode/internal/policy"
)

const maxFragment = 120

// Unit is a type-checked snippet.
type Unit struct {
	Source string
	Fset   *token.FileSet
	File   *ast.File
	Pkg    *types.Package
	Info   *types.Info
}

// Validator applies a policy to type-checked units.
type Validator struct {
	policy *policy.Policy
}

// New creates a Validator. A nil policy uses the default denylist.
func New(p *policy.Policy) *Validator {
	if p == nil {
		p = policy.Default()
	}
	return &Validator{policy: p}
}

// Validate returns the violations in u, ordered by position. Levels that
// do not inspect APIs yield none.
func (v *Validator) Validate(u Unit, level model.SecurityLevel) []model.SecurityViolation {
	if !v.policy.InspectsAPIs(level) || u.File == nil || u.Info == nil {
		return nil
	}
	dl := v.policy.Denylist()

	var out []model.SecurityViolation
	type siteKey struct {
		pos    token.Pos
		symbol string
	}
	seen := make(map[siteKey]bool)

	report := func(kind model.ViolationKind, desc, symbol string, node ast.Node) {
		key := siteKey{node.Pos(), symbol}
		if seen[key] {
			return
		}
		seen[key] = true
		pos := u.Fset.Position(node.Pos())
		out = append(out, model.SecurityViolation{
			Kind:        kind,
			Description: desc,
			Line:        pos.Line,
			Column:      pos.Column,
			Fragment:    fragment(u, node),
			Symbol:      symbol,
		})
	}

	// Blank imports run package init without any use site.
	for _, imp := range u.File.Imports {
		if imp.Name == nil || imp.Name.Name != "_" {
			continue
		}
		path, _ := strconv.Unquote(imp.Path.Value)
		if blocked, ns := dl.IsNamespaceForbidden(path); blocked {
			report(model.ViolationForbiddenNamespace,
				fmt.Sprintf("import of forbidden namespace %q (%s)", path, ns), path, imp)
		}
	}

	ast.Inspect(u.File, func(n ast.Node) bool {
		id, ok := n.(*ast.Ident)
		if !ok {
			return true
		}
		obj := u.Info.Uses[id]
		if obj == nil || obj.Pkg() == nil || obj.Pkg() == u.Pkg {
			return true
		}
		if _, isPkg := obj.(*types.PkgName); isPkg {
			return true
		}

		name := qualifiedName(obj, id, u.Info)
		site := enclosingSite(u.File, id)
		if blocked, pattern := dl.IsAPIDangerous(name); blocked {
			report(model.ViolationDangerousCall,
				fmt.Sprintf("call to dangerous API %s (matches %s)", name, pattern), name, site)
			return true
		}
		if blocked, ns := dl.IsNamespaceForbidden(obj.Pkg().Path()); blocked {
			report(model.ViolationForbiddenNamespace,
				fmt.Sprintf("reference to %s in forbidden namespace %s", name, ns), name, site)
		}
		return true
	})

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Column < out[j].Column
	})
	return out
}

// QualifiedName returns the denylist form of obj: "path.Name" for package
// members and "path.Type.Member" for methods and fields.
func QualifiedName(obj types.Object) string {
	return qualifiedName(obj, nil, nil)
}

func qualifiedName(obj types.Object, id *ast.Ident, info *types.Info) string {
	path := obj.Pkg().Path()
	switch o := obj.(type) {
	case *types.Func:
		o = o.Origin()
		sig, _ := o.Type().(*types.Signature)
		if sig != nil && sig.Recv() != nil {
			if tn := typeNameOf(sig.Recv().Type()); tn != nil && tn.Pkg() != nil {
				return tn.Pkg().Path() + "." + tn.Name() + "." + o.Name()
			}
		}
		return path + "." + o.Name()
	case *types.Var:
		if o.IsField() && id != nil && info != nil {
			for sel, s := range info.Selections {
				if sel.Sel != id {
					continue
				}
				if tn := typeNameOf(s.Recv()); tn != nil && tn.Pkg() != nil {
					return tn.Pkg().Path() + "." + tn.Name() + "." + o.Name()
				}
			}
		}
	}
	return path + "." + obj.Name()
}

func typeNameOf(t types.Type) *types.TypeName {
	t = types.Unalias(t)
	if p, ok := t.(*types.Pointer); ok {
		t = types.Unalias(p.Elem())
	}
	if n, ok := t.(*types.Named); ok {
		return n.Origin().Obj()
	}
	return nil
}

// enclosingSite widens id to the selector and call it belongs to.
func enclosingSite(file *ast.File, id *ast.Ident) ast.Node {
	path, _ := astutil.PathEnclosingInterval(file, id.Pos(), id.End())
	var node ast.Node = id
	for _, parent := range path[1:] {
		switch p := parent.(type) {
		case *ast.SelectorExpr:
			if p.Sel != node {
				return node
			}
			node = p
			continue
		case *ast.CallExpr:
			if p.Fun == node {
				return p
			}
		}
		return node
	}
	return node
}

func fragment(u Unit, n ast.Node) string {
	start := u.Fset.Position(n.Pos()).Offset
	end := u.Fset.Position(n.End()).Offset
	if start < 0 || end > len(u.Source) || start >= end {
		return ""
	}
	s := strings.Join(strings.Fields(u.Source[start:end]), " ")
	if len(s) > maxFragment {
		s = s[:maxFragment-3] + "..."
	}
	return s
}
