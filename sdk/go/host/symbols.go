package host

import (
	"context"
	"reflect"
)

// ImportPath is the import path snippets use for this package.
const ImportPath = "github.com/ppiankov/livecode/sdk/go/host"

// Symbols is the interpreter symbol table for this package, keyed the way
// yaegi's extract tool keys generated tables.
var Symbols = map[string]map[string]reflect.Value{
	ImportPath + "/host": {
		// functions
		"Delay":    reflect.ValueOf(Delay),
		"Failed":   reflect.ValueOf(Failed),
		"Go":       reflect.ValueOf(Go),
		"Info":     reflect.ValueOf(Info),
		"Log":      reflect.ValueOf(Log),
		"Logf":     reflect.ValueOf(Logf),
		"Param":    reflect.ValueOf(Param),
		"Resolved": reflect.ValueOf(Resolved),

		// variables
		"Version": reflect.ValueOf(&Version).Elem(),

		// types
		"Future":     reflect.ValueOf((*Future)(nil)),
		"PanicError": reflect.ValueOf((*PanicError)(nil)),

		// interface wrapper definitions
		"_Future": reflect.ValueOf((*_github_com_ppiankov_livecode_sdk_go_host_Future)(nil)),
	},
}

// _github_com_ppiankov_livecode_sdk_go_host_Future lets interpreted types
// satisfy Future.
type _github_com_ppiankov_livecode_sdk_go_host_Future struct {
	IValue interface{}
	WAwait func(ctx context.Context) (any, error)
}

func (W _github_com_ppiankov_livecode_sdk_go_host_Future) Await(ctx context.Context) (any, error) {
	return W.WAwait(ctx)
}
