package executor

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"

	"github.com/traefik/yaegi/interp"

	"github.com/ppiankov/livecode/internal/model"
	"github.com/ppiankov/livecode/sdk/go/host"
)

// maxBridgeDepth bounds how many deferred layers a result may carry.
const maxBridgeDepth = 8

var (
	contextType = reflect.TypeFor[context.Context]()
	paramsType  = reflect.TypeFor[map[string]any]()
	errorType   = reflect.TypeFor[error]()
)

// FaultError is a runtime fault raised by a snippet.
type FaultError struct {
	Err error
}

func (e *FaultError) Error() string { return e.Err.Error() }
func (e *FaultError) Unwrap() error { return e.Err }

// load creates a fresh interpreter over the module's reference set and
// evaluates its source. Output goes to logs.
func load(ctx context.Context, mod *model.Module, logs *logBuffer) (reflect.Value, error) {
	i := interp.New(interp.Options{
		Stdout:       logs,
		Stderr:       logs,
		Unrestricted: mod.Level == model.FullAccess,
	})
	if err := i.Use(cloneExports(mod.Exports)); err != nil {
		return reflect.Value{}, fmt.Errorf("load references: %w", err)
	}
	if _, err := i.EvalWithContext(ctx, mod.Source); err != nil {
		return reflect.Value{}, fmt.Errorf("load module: %w", err)
	}
	fn, err := i.Eval(mod.Package + "." + mod.Entry)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("lookup entry %s: %w", mod.Entry, err)
	}
	if fn.Kind() != reflect.Func {
		return reflect.Value{}, fmt.Errorf("entry %s is %s, not a function", mod.Entry, fn.Kind())
	}
	return fn, nil
}

// cloneExports copies the symbol tables so the interpreter may rebind
// entries (stdout capture) without touching the shared module.
func cloneExports(src map[string]map[string]reflect.Value) interp.Exports {
	out := make(interp.Exports, len(src))
	for k, v := range src {
		out[k] = maps.Clone(v)
	}
	return out
}

// call invokes fn, supplying ctx and params by parameter type, and bridges
// the result. Panics are recovered into FaultError.
func call(ctx context.Context, fn reflect.Value, params map[string]any) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &FaultError{Err: panicError(r)}
		}
	}()

	ft := fn.Type()
	args := make([]reflect.Value, ft.NumIn())
	for i := range args {
		switch in := ft.In(i); {
		case in == contextType || contextType.AssignableTo(in) && in.Kind() == reflect.Interface:
			args[i] = reflect.ValueOf(&ctx).Elem()
		case paramsType.AssignableTo(in):
			args[i] = reflect.ValueOf(params).Convert(in)
		default:
			return nil, fmt.Errorf("entry parameter %d has unsupported type %s", i+1, in)
		}
	}

	out := fn.Call(args)
	switch len(out) {
	case 0:
	case 1:
		v = valueOf(out[0])
	default:
		v = valueOf(out[0])
		if e, ok := valueOf(out[len(out)-1]).(error); ok && e != nil {
			return nil, &FaultError{Err: e}
		}
	}
	return bridge(ctx, v)
}

// bridge unwraps up to maxBridgeDepth deferred layers: futures, receive
// channels and parameterless or context-taking funcs. An error as the
// final value is a fault.
func bridge(ctx context.Context, v any) (any, error) {
	for depth := 0; depth < maxBridgeDepth; depth++ {
		var err error
		switch x := v.(type) {
		case nil:
			return nil, nil
		case error:
			return nil, &FaultError{Err: x}
		case host.Future:
			v, err = x.Await(ctx)
		case func() any:
			v = x()
		case func() (any, error):
			v, err = x()
		case func(context.Context) any:
			v = x(ctx)
		case func(context.Context) (any, error):
			v, err = x(ctx)
		default:
			rv := reflect.ValueOf(v)
			if rv.Kind() != reflect.Chan || rv.Type().ChanDir()&reflect.RecvDir == 0 {
				return v, nil
			}
			chosen, recv, ok := reflect.Select([]reflect.SelectCase{
				{Dir: reflect.SelectRecv, Chan: rv},
				{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
			})
			switch {
			case chosen == 1:
				err = ctx.Err()
			case !ok:
				v = nil
			default:
				v = valueOf(recv)
			}
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, &FaultError{Err: err}
		}
	}
	if e, ok := v.(error); ok {
		return nil, &FaultError{Err: e}
	}
	return v, nil
}

func valueOf(rv reflect.Value) any {
	if !rv.IsValid() {
		return nil
	}
	if (rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer ||
		rv.Kind() == reflect.Func || rv.Kind() == reflect.Chan ||
		rv.Kind() == reflect.Map || rv.Kind() == reflect.Slice) && rv.IsNil() {
		return nil
	}
	if !rv.CanInterface() {
		return nil
	}
	return rv.Interface()
}

// panicError returns the innermost error carried by a recovered value.
func panicError(r any) error {
	for {
		switch p := r.(type) {
		case interp.Panic:
			r = p.Value
			continue
		case *interp.Panic:
			r = p.Value
			continue
		case *host.PanicError:
			r = p.Value
			continue
		case error:
			return p
		default:
			return fmt.Errorf("panic: %v", p)
		}
	}
}

// faultMessage unwraps interpreter and panic wrappers for display.
func faultMessage(err error) string {
	var fe *FaultError
	if errors.As(err, &fe) {
		err = fe.Err
	}
	var pe *host.PanicError
	if errors.As(err, &pe) {
		return panicError(pe).Error()
	}
	return err.Error()
}
