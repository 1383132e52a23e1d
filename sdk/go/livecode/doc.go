// Package livecode compiles and runs Go snippets inside the host process.
// Snippets are wrapped into an entry point, their missing imports are
// resolved, their API usage is checked against a security level, and the
// verified module is cached and run by an embedded interpreter.
//
// Usage:
//
//	lc, err := livecode.New(livecode.WithLevel(livecode.Restricted))
//	v, err := lc.Execute(ctx, `return strings.ToUpper(params["name"].(string))`,
//	    livecode.RunWithParams(map[string]any{"name": "gopher"}))
//
// Failed executions are returned as *ExecutionError carrying the full
// ExecutionResult. Use ExecuteCode for the structured result directly.
package livecode
