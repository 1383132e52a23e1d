// Package compiler runs the compilation pipeline: normalize, build the
// reference set, type-check with import repair, validate against policy,
// and cache the verified module.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"go/types"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/ppiankov/livecode/internal/cache"
	"github.com/ppiankov/livecode/internal/model"
	"github.com/ppiankov/livecode/internal/normalize"
	"github.com/ppiankov/livecode/internal/policy"
	"github.com/ppiankov/livecode/internal/refs"
	"github.com/ppiankov/livecode/internal/resolve"
	"github.com/ppiankov/livecode/internal/validate"
)

const (
	fileName = "snippet.go"

	// pathPrefix keeps the snippet's package path apart from reference paths.
	pathPrefix = "livecode.snippet/"
)

// Compiler compiles snippets at one security level. The level is fixed for
// the lifetime of the instance.
type Compiler struct {
	level     model.SecurityLevel
	policy    *policy.Policy
	refs      *refs.Resolver
	validator *validate.Validator
	cache     *cache.Cache
	logger    *slog.Logger
}

// New creates a Compiler. A nil policy uses the default denylist and a nil
// logger discards.
func New(level model.SecurityLevel, pol *policy.Policy, resolver *refs.Resolver, logger *slog.Logger) *Compiler {
	if pol == nil {
		pol = policy.Default()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compiler{
		level:     level,
		policy:    pol,
		refs:      resolver,
		validator: validate.New(pol),
		cache:     cache.New(),
		logger:    logger,
	}
}

// Level returns the compiler's security level.
func (c *Compiler) Level() model.SecurityLevel {
	return c.level
}

// Cache returns the compiler's module cache.
func (c *Compiler) Cache() *cache.Cache {
	return c.cache
}

// References returns the reference set the compiler would use for req.
func (c *Compiler) References(ctx context.Context, req model.CompilationRequest) (*refs.Set, []string, error) {
	if err := c.policy.Check(c.level); err != nil {
		return nil, nil, err
	}
	set, err := c.refs.Build(ctx, c.level)
	if err != nil {
		return nil, nil, err
	}
	req = req.WithDefaults()
	set, missing := set.With(req.ExtraReferences, req.Mode)
	return set, missing, nil
}

// Compile compiles req, serving repeated requests from the cache. Disabled
// levels are rejected before any reference set is built. Cancellation of
// ctx does not interrupt compilation.
func (c *Compiler) Compile(ctx context.Context, req model.CompilationRequest) model.CompilationResult {
	req = req.WithDefaults()
	if err := c.policy.Check(c.level); err != nil {
		return rejected(err)
	}
	key := cache.Key(req)
	ctx = context.WithoutCancel(ctx)
	return c.cache.Do(key, func() model.CompilationResult {
		start := time.Now()
		res := c.compile(ctx, key, req)
		c.logger.Debug("compiled snippet",
			"key", shortKey(key),
			"level", c.level.String(),
			"success", res.Success,
			"failure", string(res.FailureReason),
			"diagnostics", len(res.Diagnostics),
			"duration", time.Since(start))
		return res
	})
}

// shortKey abbreviates a cache key for logs.
func shortKey(key string) string {
	const n = 12
	return key[:min(n, len(key))]
}

// ClearCache drops every cached module.
func (c *Compiler) ClearCache() {
	c.cache.Clear()
}

func rejected(err error) model.CompilationResult {
	return model.CompilationResult{
		FailureReason: model.FailurePolicyRejection,
		Diagnostics: []model.Diagnostic{{
			Severity: model.SeverityError,
			Code:     model.CodePolicy,
			Message:  err.Error(),
		}},
	}
}

// CompilationContext carries the request-scoped state of one compilation.
type CompilationContext struct {
	Request   model.CompilationRequest
	Key       string
	Wrapped   normalize.Wrapped
	Fset      *token.FileSet
	File      *ast.File
	Set       *refs.Set
	Check     *resolve.CheckResult
	Ambiguous map[string][]string

	diags []model.Diagnostic
}

func (cc *CompilationContext) add(sev model.Severity, code, msg string, pos token.Position) {
	cc.diags = append(cc.diags, model.Diagnostic{
		Severity: sev,
		Code:     code,
		Message:  msg,
		Line:     pos.Line,
		Column:   pos.Column,
	})
}

func (cc *CompilationContext) failed(reason model.FailureReason, code string) model.CompilationResult {
	return model.CompilationResult{
		FailureReason:           reason,
		Diagnostics:             cc.diags,
		UpdatedCode:             code,
		AmbiguousTypeCandidates: cc.Ambiguous,
	}
}

func (c *Compiler) compile(ctx context.Context, key string, req model.CompilationRequest) model.CompilationResult {
	cc := &CompilationContext{Request: req, Key: key}

	base, err := c.refs.Build(ctx, c.level)
	if err != nil {
		if errors.Is(err, policy.ErrDisabled) {
			return rejected(err)
		}
		cc.add(model.SeverityError, model.CodeReference, fmt.Sprintf("build reference set: %v", err), token.Position{})
		return cc.failed(model.FailureCompilationError, "")
	}
	set, missing := base.With(req.ExtraReferences, req.Mode)
	cc.Set = set
	for _, p := range missing {
		cc.add(model.SeverityWarning, model.CodeReference, fmt.Sprintf("unknown reference %q ignored", p), token.Position{})
	}

	cc.Wrapped = normalize.Wrap(req.Source, req.Namespace, req.TypeName)
	if len(cc.Wrapped.Errors) > 0 {
		c.syntax(cc, cc.Wrapped.Errors)
		return cc.failed(model.FailureCompilationError, req.Source)
	}

	cc.Fset = token.NewFileSet()
	cc.File, err = parser.ParseFile(cc.Fset, fileName, cc.Wrapped.Source, parser.ParseComments|parser.AllErrors)
	if err != nil {
		var list scanner.ErrorList
		if errors.As(err, &list) {
			c.syntax(cc, list)
		} else {
			cc.add(model.SeverityError, model.CodeSyntax, err.Error(), token.Position{})
		}
		return cc.failed(model.FailureCompilationError, cc.Wrapped.Source)
	}

	out, err := resolve.Resolve(ctx, cc.Wrapped.Source, cc.Fset, cc.File, set, resolve.Checker(set, pathPrefix+req.Namespace))
	if err != nil {
		cc.add(model.SeverityError, model.CodeType, err.Error(), token.Position{})
		return cc.failed(model.FailureCompilationError, cc.Wrapped.Source)
	}
	cc.Fset, cc.File, cc.Check = out.Fset, out.File, out.Check
	if len(out.Ambiguous) > 0 {
		cc.Ambiguous = out.Ambiguous
	}

	if hard := c.typeErrors(cc); hard > 0 {
		return cc.failed(model.FailureCompilationError, out.Source)
	}

	entry, syncEntry := c.entries(cc)
	if entry == "" {
		return cc.failed(model.FailureCompilationError, out.Source)
	}

	violations := c.validator.Validate(validate.Unit{
		Source: out.Source,
		Fset:   cc.Fset,
		File:   cc.File,
		Pkg:    cc.Check.Pkg,
		Info:   cc.Check.Info,
	}, c.level)
	if len(violations) > 0 {
		res := cc.failed(model.FailureSecurityViolation, out.Source)
		res.Violations = violations
		return res
	}

	source, imports, err := prune(cc)
	if err != nil {
		cc.add(model.SeverityError, model.CodeSyntax, err.Error(), token.Position{})
		return cc.failed(model.FailureCompilationError, out.Source)
	}

	return model.CompilationResult{
		Success:     true,
		Diagnostics: cc.diags,
		UpdatedCode: out.Source,
		Module: &model.Module{
			Key:       key,
			Source:    source,
			Package:   cc.File.Name.Name,
			Entry:     entry,
			SyncEntry: syncEntry,
			Level:     c.level,
			Imports:   imports,
			Exports:   set.Exports(),
		},
	}
}

func (c *Compiler) syntax(cc *CompilationContext, list scanner.ErrorList) {
	for _, e := range list {
		cc.add(model.SeverityError, model.CodeSyntax, e.Msg, e.Pos)
	}
}

// typeErrors converts check errors into diagnostics and returns the number
// of errors. Unused variables and imports are warnings.
func (c *Compiler) typeErrors(cc *CompilationContext) int {
	hard := 0
	for _, e := range cc.Check.Errors {
		pos := cc.Fset.Position(e.Pos)
		if e.Soft && isUnused(e.Msg) {
			cc.add(model.SeverityWarning, model.CodeUnused, e.Msg, pos)
			continue
		}
		hard++
		code, msg := classify(e.Msg, cc.Ambiguous)
		cc.add(model.SeverityError, code, msg, pos)
	}
	return hard
}

func isUnused(msg string) bool {
	return strings.Contains(msg, "declared and not used") ||
		strings.Contains(msg, "imported and not used") ||
		strings.Contains(msg, "defined and not used")
}

func classify(msg string, ambiguous map[string][]string) (string, string) {
	if name, ok := strings.CutPrefix(msg, "undefined: "); ok {
		if cands, ok := ambiguous[name]; ok {
			return model.CodeAmbiguous, fmt.Sprintf("%s is ambiguous between %s; add an import to choose one", name, strings.Join(cands, ", "))
		}
		return model.CodeUndefined, msg
	}
	if strings.Contains(msg, "could not import") {
		return model.CodeImport, msg
	}
	return model.CodeType, msg
}

// entries checks that the entry function exists with a callable shape and
// returns its name and the synchronous adapter, if any.
func (c *Compiler) entries(cc *CompilationContext) (string, string) {
	name := cc.Wrapped.Entry
	scope := cc.Check.Pkg.Scope()
	fn, ok := scope.Lookup(name).(*types.Func)
	if !ok {
		cc.add(model.SeverityError, model.CodeEntry,
			fmt.Sprintf("entry function %s not found in package %s", name, cc.File.Name.Name), token.Position{})
		return "", ""
	}
	if err := EntryShape(fn.Type().(*types.Signature)); err != nil {
		cc.add(model.SeverityError, model.CodeEntry,
			fmt.Sprintf("entry function %s: %v", name, err), cc.Fset.Position(fn.Pos()))
		return "", ""
	}

	syncName := cc.Wrapped.SyncEntry
	if syncName != "" {
		if _, ok := scope.Lookup(syncName).(*types.Func); !ok {
			syncName = ""
		}
	}
	return name, syncName
}

// EntryShape reports whether sig can be invoked by the executor: parameters
// drawn from context.Context and map[string]any, at most two results with
// the second an error.
func EntryShape(sig *types.Signature) error {
	if sig.TypeParams().Len() > 0 {
		return errors.New("generic entry functions are not supported")
	}
	if sig.Variadic() {
		return errors.New("variadic entry functions are not supported")
	}
	params := sig.Params()
	if params.Len() > 2 {
		return fmt.Errorf("takes %d parameters, want at most (ctx context.Context, params map[string]any)", params.Len())
	}
	for i := 0; i < params.Len(); i++ {
		t := params.At(i).Type()
		if !isContext(t) && !isParams(t) {
			return fmt.Errorf("parameter %d has type %s, want context.Context or map[string]any", i+1, t)
		}
	}
	results := sig.Results()
	switch results.Len() {
	case 0, 1:
	case 2:
		if !isError(results.At(1).Type()) {
			return fmt.Errorf("second result has type %s, want error", results.At(1).Type())
		}
	default:
		return fmt.Errorf("returns %d values, want at most 2", results.Len())
	}
	return nil
}

func isContext(t types.Type) bool {
	n, ok := types.Unalias(t).(*types.Named)
	return ok && n.Obj().Pkg() != nil && n.Obj().Pkg().Path() == "context" && n.Obj().Name() == "Context"
}

func isParams(t types.Type) bool {
	m, ok := types.Unalias(t).Underlying().(*types.Map)
	if !ok {
		return false
	}
	k, ok := m.Key().(*types.Basic)
	if !ok || k.Kind() != types.String {
		return false
	}
	it, ok := types.Unalias(m.Elem()).(*types.Interface)
	return ok && it.Empty()
}

func isError(t types.Type) bool {
	return types.Identical(t, types.Universe.Lookup("error").Type())
}

// prune drops unused imports, which the interpreter rejects, and returns
// the final source with its sorted import paths.
func prune(cc *CompilationContext) (string, []string, error) {
	used := make(map[*types.PkgName]bool)
	for _, obj := range cc.Check.Info.Uses {
		if pn, ok := obj.(*types.PkgName); ok {
			used[pn] = true
		}
	}

	type spec struct{ name, path string }
	var unused []spec
	for _, imp := range cc.File.Imports {
		path, _ := strconv.Unquote(imp.Path.Value)
		var obj types.Object
		if imp.Name != nil {
			if imp.Name.Name == "_" || imp.Name.Name == "." {
				continue
			}
			obj = cc.Check.Info.Defs[imp.Name]
		} else {
			obj = cc.Check.Info.Implicits[imp]
		}
		pn, ok := obj.(*types.PkgName)
		if !ok || used[pn] {
			continue
		}
		name := ""
		if imp.Name != nil {
			name = imp.Name.Name
		}
		unused = append(unused, spec{name, path})
	}

	for _, u := range unused {
		astutil.DeleteNamedImport(cc.Fset, cc.File, u.name, u.path)
	}
	src, err := normalize.Print(cc.Fset, cc.File)
	if err != nil {
		return "", nil, fmt.Errorf("format module: %w", err)
	}

	var imports []string
	for _, imp := range cc.File.Imports {
		path, _ := strconv.Unquote(imp.Path.Value)
		imports = append(imports, path)
	}
	sort.Strings(imports)
	return src, imports, nil
}
