package resolve

import (
	"go/ast"
	"go/token"
	"go/types"
)

// Checker returns a CheckFunc that type-checks a single file as package
// pkgPath, importing only from imp. Every error is collected.
func Checker(imp types.Importer, pkgPath string) CheckFunc {
	return func(fset *token.FileSet, file *ast.File) *CheckResult {
		res := &CheckResult{
			Info: &types.Info{
				Types:      make(map[ast.Expr]types.TypeAndValue),
				Defs:       make(map[*ast.Ident]types.Object),
				Uses:       make(map[*ast.Ident]types.Object),
				Implicits:  make(map[ast.Node]types.Object),
				Selections: make(map[*ast.SelectorExpr]*types.Selection),
				Scopes:     make(map[ast.Node]*types.Scope),
			},
		}
		conf := types.Config{
			Importer: imp,
			Error: func(err error) {
				if te, ok := err.(types.Error); ok {
					res.Errors = append(res.Errors, te)
				}
			},
		}
		// Errors are delivered through conf.Error.
		res.Pkg, _ = conf.Check(pkgPath, fset, []*ast.File{file}, res.Info)
		return res
	}
}
