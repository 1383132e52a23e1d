package refs

import (
	"go/constant"
	"go/token"
	"go/types"
	"reflect"
	"sort"
	"strings"

	"github.com/ppiankov/livecode/internal/inventory"
)

var (
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
	constantType = reflect.TypeOf((*constant.Value)(nil)).Elem()
)

// universe converts reflect-based symbol tables into go/types packages.
// A universe is filled once, under the resolver lock, and is read-only
// after it is published.
type universe struct {
	pkgs  map[string]*types.Package
	named map[reflect.Type]*types.Named
}

func newUniverse() *universe {
	return &universe{
		pkgs:  make(map[string]*types.Package),
		named: make(map[reflect.Type]*types.Named),
	}
}

// declare creates the package for path ahead of conversion so that types
// reached through other packages get the right package name.
func (u *universe) declare(path, name string) *types.Package {
	if path == "unsafe" {
		return types.Unsafe
	}
	if p, ok := u.pkgs[path]; ok {
		return p
	}
	if name == "" {
		name = inventory.PackageName(path)
	}
	p := types.NewPackage(path, name)
	u.pkgs[path] = p
	return p
}

// convert fills the package for path from symbols.
func (u *universe) convert(path, name string, symbols map[string]reflect.Value) *types.Package {
	pkg := u.declare(path, name)
	if pkg == types.Unsafe {
		return pkg
	}

	names := make([]string, 0, len(symbols))
	for n := range symbols {
		if strings.HasPrefix(n, "_") || !token.IsExported(n) {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		if pkg.Scope().Lookup(n) != nil {
			continue
		}
		if obj := u.object(pkg, n, symbols[n]); obj != nil {
			pkg.Scope().Insert(obj)
		}
	}
	pkg.MarkComplete()
	return pkg
}

// object maps one symbol table entry to a go/types object, following the
// conventions of yaegi's extract tool:
//
//	variables          reflect.ValueOf(&v).Elem()  (addressable)
//	types              reflect.ValueOf((*T)(nil))
//	functions          reflect.ValueOf(f)
//	untyped constants  reflect.ValueOf(constant.Value)
//	typed constants    reflect.ValueOf(c)
func (u *universe) object(pkg *types.Package, name string, v reflect.Value) types.Object {
	if !v.IsValid() {
		return nil
	}

	switch {
	case v.CanAddr():
		return types.NewVar(token.NoPos, pkg, name, u.typeOf(v.Type(), pkg))

	case v.Kind() == reflect.Func:
		sig, ok := u.typeOf(v.Type(), pkg).(*types.Signature)
		if !ok {
			return nil
		}
		return types.NewFunc(token.NoPos, pkg, name, sig)

	case v.Kind() == reflect.Pointer && v.IsNil():
		typ := u.typeOf(v.Type().Elem(), pkg)
		if n, ok := typ.(*types.Named); ok && n.Obj().Pkg() == pkg && n.Obj().Name() == name {
			return n.Obj()
		}
		// Re-exported or instantiated type.
		alias := types.NewAlias(types.NewTypeName(token.NoPos, pkg, name, nil), typ)
		return alias.Obj()

	case v.Type().Implements(constantType):
		cv, _ := v.Interface().(constant.Value)
		if cv == nil {
			return nil
		}
		typ := untypedFor(cv.Kind())
		if typ == nil {
			return nil
		}
		return types.NewConst(token.NoPos, pkg, name, typ, cv)
	}

	if cv, ok := constantOf(v); ok {
		return types.NewConst(token.NoPos, pkg, name, u.typeOf(v.Type(), pkg), cv)
	}
	return types.NewVar(token.NoPos, pkg, name, u.typeOf(v.Type(), pkg))
}

// typeOf converts t. owner is the package of the enclosing declaration and
// is used for exported struct fields of unnamed types.
func (u *universe) typeOf(t reflect.Type, owner *types.Package) types.Type {
	if t == errorType {
		return types.Universe.Lookup("error").Type()
	}
	if t.Name() != "" && t.PkgPath() == "" {
		if b := basicOf(t.Kind()); b != nil {
			return b
		}
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return u.namedOf(t)
	}
	return u.structural(t, owner)
}

func (u *universe) namedOf(t reflect.Type) *types.Named {
	if n, ok := u.named[t]; ok {
		return n
	}

	pkg := u.declare(t.PkgPath(), "")
	obj := types.NewTypeName(token.NoPos, pkg, t.Name(), nil)
	named := types.NewNamed(obj, nil, nil)
	u.named[t] = named
	// Instantiations such as "Pointer[int]" are memoized but never declared.
	if obj.Exported() && !instantiated(t) && pkg != types.Unsafe && pkg.Scope().Lookup(obj.Name()) == nil {
		pkg.Scope().Insert(obj)
	}

	if t.Kind() == reflect.Interface {
		named.SetUnderlying(u.iface(t, pkg, named))
		return named
	}

	named.SetUnderlying(u.structural(t, pkg))

	if t.Kind() == reflect.Pointer {
		return named
	}

	valueMethods := make(map[string]bool, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		valueMethods[m.Name] = true
		recv := types.NewVar(token.NoPos, pkg, "", named)
		named.AddMethod(types.NewFunc(token.NoPos, pkg, m.Name, u.method(recv, m.Type, pkg)))
	}

	pt := reflect.PointerTo(t)
	for i := 0; i < pt.NumMethod(); i++ {
		m := pt.Method(i)
		if valueMethods[m.Name] {
			continue
		}
		recv := types.NewVar(token.NoPos, pkg, "", types.NewPointer(named))
		named.AddMethod(types.NewFunc(token.NoPos, pkg, m.Name, u.method(recv, m.Type, pkg)))
	}
	return named
}

func instantiated(t reflect.Type) bool {
	return strings.Contains(t.Name(), "[")
}

// structural converts the shape of t, ignoring its name.
func (u *universe) structural(t reflect.Type, owner *types.Package) types.Type {
	if b := basicOf(t.Kind()); b != nil {
		return b
	}

	switch t.Kind() {
	case reflect.Array:
		return types.NewArray(u.typeOf(t.Elem(), owner), int64(t.Len()))
	case reflect.Slice:
		return types.NewSlice(u.typeOf(t.Elem(), owner))
	case reflect.Map:
		return types.NewMap(u.typeOf(t.Key(), owner), u.typeOf(t.Elem(), owner))
	case reflect.Pointer:
		return types.NewPointer(u.typeOf(t.Elem(), owner))
	case reflect.Chan:
		return types.NewChan(chanDir(t.ChanDir()), u.typeOf(t.Elem(), owner))
	case reflect.Func:
		return u.signature(nil, t, 0, owner)
	case reflect.Interface:
		return u.iface(t, owner, nil)
	case reflect.Struct:
		return u.structOf(t, owner)
	}
	return types.Typ[types.Invalid]
}

func (u *universe) structOf(t reflect.Type, owner *types.Package) *types.Struct {
	fields := make([]*types.Var, 0, t.NumField())
	tags := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		pkg := owner
		if f.PkgPath != "" {
			pkg = u.declare(f.PkgPath, "")
		}
		fields = append(fields, types.NewField(token.NoPos, pkg, f.Name, u.typeOf(f.Type, owner), f.Anonymous))
		tags = append(tags, string(f.Tag))
	}
	return types.NewStruct(fields, tags)
}

// iface converts an interface type. When named is set the methods get it
// as their receiver, like go/types does for declared interfaces.
func (u *universe) iface(t reflect.Type, owner *types.Package, named *types.Named) *types.Interface {
	methods := make([]*types.Func, 0, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		pkg := owner
		if m.PkgPath != "" {
			pkg = u.declare(m.PkgPath, "")
		}
		var recv *types.Var
		if named != nil {
			recv = types.NewVar(token.NoPos, pkg, "", named)
		}
		methods = append(methods, types.NewFunc(token.NoPos, pkg, m.Name, u.signature(recv, m.Type, 0, owner)))
	}
	return types.NewInterfaceType(methods, nil).Complete()
}

// method converts a method type whose first input is the receiver.
func (u *universe) method(recv *types.Var, ft reflect.Type, owner *types.Package) *types.Signature {
	return u.signature(recv, ft, 1, owner)
}

// signature converts a func type, skipping the first skip inputs.
func (u *universe) signature(recv *types.Var, ft reflect.Type, skip int, owner *types.Package) *types.Signature {
	var params []*types.Var
	for i := skip; i < ft.NumIn(); i++ {
		params = append(params, types.NewParam(token.NoPos, owner, "", u.typeOf(ft.In(i), owner)))
	}
	var results []*types.Var
	for i := 0; i < ft.NumOut(); i++ {
		results = append(results, types.NewParam(token.NoPos, owner, "", u.typeOf(ft.Out(i), owner)))
	}
	variadic := ft.IsVariadic() && len(params) > 0
	return types.NewSignatureType(recv, nil, nil, types.NewTuple(params...), types.NewTuple(results...), variadic)
}

func chanDir(d reflect.ChanDir) types.ChanDir {
	switch d {
	case reflect.RecvDir:
		return types.RecvOnly
	case reflect.SendDir:
		return types.SendOnly
	default:
		return types.SendRecv
	}
}

func basicOf(k reflect.Kind) types.Type {
	switch k {
	case reflect.Bool:
		return types.Typ[types.Bool]
	case reflect.Int:
		return types.Typ[types.Int]
	case reflect.Int8:
		return types.Typ[types.Int8]
	case reflect.Int16:
		return types.Typ[types.Int16]
	case reflect.Int32:
		return types.Typ[types.Int32]
	case reflect.Int64:
		return types.Typ[types.Int64]
	case reflect.Uint:
		return types.Typ[types.Uint]
	case reflect.Uint8:
		return types.Typ[types.Uint8]
	case reflect.Uint16:
		return types.Typ[types.Uint16]
	case reflect.Uint32:
		return types.Typ[types.Uint32]
	case reflect.Uint64:
		return types.Typ[types.Uint64]
	case reflect.Uintptr:
		return types.Typ[types.Uintptr]
	case reflect.Float32:
		return types.Typ[types.Float32]
	case reflect.Float64:
		return types.Typ[types.Float64]
	case reflect.Complex64:
		return types.Typ[types.Complex64]
	case reflect.Complex128:
		return types.Typ[types.Complex128]
	case reflect.String:
		return types.Typ[types.String]
	case reflect.UnsafePointer:
		return types.Typ[types.UnsafePointer]
	}
	return nil
}

func untypedFor(k constant.Kind) types.Type {
	switch k {
	case constant.Bool:
		return types.Typ[types.UntypedBool]
	case constant.String:
		return types.Typ[types.UntypedString]
	case constant.Int:
		return types.Typ[types.UntypedInt]
	case constant.Float:
		return types.Typ[types.UntypedFloat]
	case constant.Complex:
		return types.Typ[types.UntypedComplex]
	}
	return nil
}

// constantOf returns the value of a typed constant of basic kind.
func constantOf(v reflect.Value) (constant.Value, bool) {
	switch v.Kind() {
	case reflect.Bool:
		return constant.MakeBool(v.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return constant.MakeInt64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return constant.MakeUint64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return constant.MakeFloat64(v.Float()), true
	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		re := constant.MakeFloat64(real(c))
		im := constant.MakeImag(constant.MakeFloat64(imag(c)))
		return constant.BinaryOp(re, token.ADD, im), true
	case reflect.String:
		return constant.MakeString(v.String()), true
	}
	return nil, false
}
