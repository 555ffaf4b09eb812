package vm

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"sort"
)

// ---------------------------------------------------------------------------
// Go <-> value marshalling
// ---------------------------------------------------------------------------

// ErrCyclic is returned by ToGo for values that contain themselves.
var ErrCyclic = errors.New("vm: cyclic value")

// maxGoSlice bounds the length of arrays converted to Go slices.
const maxGoSlice = 1 << 24

var (
	valueType   = reflect.TypeOf(Value(0))
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*NativeContext)(nil))
	bigIntType  = reflect.TypeOf((*big.Int)(nil))
)

// FromGo converts a Go value into a language value.
//
//   - nil becomes null; a Value is returned unchanged
//   - booleans, numbers and strings become primitives; *big.Int a BigInt
//   - slices and arrays become arrays
//   - maps with string keys and structs become ordinary objects
//   - functions become native functions (see below)
//   - anything else, including pointers, becomes a host object
//
// A Go function may take a leading *NativeContext; its remaining
// parameters are converted from the arguments, and it may return nothing,
// a value, an error, or a value and an error.
func (vm *VM) FromGo(x any) (Value, error) {
	if x == nil {
		return Null, nil
	}
	if v, ok := x.(Value); ok {
		return v, nil
	}
	if n, ok := x.(*big.Int); ok {
		return vm.NewBigInt(n), nil
	}
	return vm.fromReflect(reflect.ValueOf(x))
}

func (vm *VM) fromReflect(rv reflect.Value) (Value, error) {
	if !rv.IsValid() {
		return Null, nil
	}
	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return Null, nil
		}
		return vm.FromGo(rv.Elem().Interface())
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Number(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Number(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float()), nil
	case reflect.String:
		return vm.str(rv.String()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null, nil
		}
		elems := make([]Value, rv.Len())
		for i := range elems {
			v, err := vm.fromReflect(rv.Index(i))
			if err != nil {
				return Undefined, fmt.Errorf("index %d: %w", i, err)
			}
			elems[i] = v
		}
		return vm.newArray(elems), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		if rv.IsNil() {
			return Null, nil
		}
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		obj := vm.newOrdinary()
		o := vm.object(obj)
		for _, k := range keys {
			v, err := vm.fromReflect(rv.MapIndex(k))
			if err != nil {
				return Undefined, fmt.Errorf("key %q: %w", k.String(), err)
			}
			vm.createDataProperty(o, vm.str(k.String()), v)
		}
		return obj, nil
	case reflect.Struct:
		obj := vm.newOrdinary()
		o := vm.object(obj)
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := f.Name
			if tag := f.Tag.Get("kestrel"); tag == "-" {
				continue
			} else if tag != "" {
				name = tag
			}
			v, err := vm.fromReflect(rv.Field(i))
			if err != nil {
				return Undefined, fmt.Errorf("field %s: %w", f.Name, err)
			}
			vm.createDataProperty(o, vm.str(name), v)
		}
		return obj, nil
	case reflect.Func:
		if rv.IsNil() {
			return Null, nil
		}
		return vm.wrapFunc(rv)
	}
	return vm.NewHostObject(rv.Interface(), nil), nil
}

// wrapFunc exposes a Go function as a native function.
func (vm *VM) wrapFunc(fn reflect.Value) (Value, error) {
	t := fn.Type()
	withCtx := t.NumIn() > 0 && t.In(0) == contextType
	first := 0
	if withCtx {
		first = 1
	}
	switch t.NumOut() {
	case 0, 1:
	case 2:
		if t.Out(1) != errorType {
			return Undefined, fmt.Errorf("func %s: second result must be error", t)
		}
	default:
		return Undefined, fmt.Errorf("func %s: too many results", t)
	}
	name := t.String()
	arity := t.NumIn() - first
	if t.IsVariadic() {
		arity--
	}

	return vm.newNative(name, arity, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		in := make([]reflect.Value, 0, t.NumIn())
		if withCtx {
			in = append(in, reflect.ValueOf(ctx))
		}
		params := t.NumIn() - first
		n := params
		if t.IsVariadic() {
			n = max(params-1, len(args))
		}
		for i := 0; i < n; i++ {
			var pt reflect.Type
			if t.IsVariadic() && i >= params-1 {
				pt = t.In(t.NumIn() - 1).Elem()
			} else {
				pt = t.In(first + i)
			}
			arg, err := vm.toGoType(Arg(args, i), pt)
			if err != nil {
				return Undefined, fmt.Errorf("argument %d: %w", i, err)
			}
			in = append(in, arg)
		}

		out := fn.Call(in)
		if len(out) > 0 && t.Out(len(out)-1) == errorType {
			if err, _ := out[len(out)-1].Interface().(error); err != nil {
				return Undefined, err
			}
			out = out[:len(out)-1]
		}
		if len(out) == 0 {
			return Undefined, nil
		}
		return vm.fromReflect(out[0])
	}), nil
}

// ToGo converts a language value to plain Go data: nil, bool, float64,
// string, *big.Int, []any for arrays and Sets, []any of [key, value]
// pairs for Maps, map[string]any for other objects (enumerable own string
// keys), and the wrapped value for host objects.
// Functions and symbols are not convertible.
func (vm *VM) ToGo(v Value) (any, error) {
	return vm.toGo(v, nil)
}

func (vm *VM) toGo(v Value, path []Value) (any, error) {
	switch v.Type() {
	case TypeUndefined, TypeNull:
		return nil, nil
	case TypeBoolean:
		return v == True, nil
	case TypeNumber:
		return v.Float64(), nil
	case TypeString:
		return vm.goString(v), nil
	case TypeBigInt:
		return new(big.Int).Set(vm.bigInt(v)), nil
	case TypeSymbol:
		return nil, fmt.Errorf("vm: cannot convert %s to a Go value", vm.symbolDescriptiveString(v))
	}

	o := vm.object(v)
	switch d := o.internal.(type) {
	case *hostData:
		return d.value, nil
	}
	if o.isCallable() {
		return nil, fmt.Errorf("vm: cannot convert %s to a Go value", vm.safeString(v))
	}
	for _, p := range path {
		if p == v {
			return nil, ErrCyclic
		}
	}
	path = append(path, v)

	if o.kind == ObjectArray {
		if o.length > maxGoSlice {
			return nil, fmt.Errorf("vm: array of length %d is too long to convert", o.length)
		}
		out := make([]any, o.length)
		var err error
		vm.eachElement(o, func(i uint32, e Value) bool {
			out[i], err = vm.toGo(e, path)
			return err == nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	if c, ok := o.internal.(*collectionData); ok {
		out := make([]any, 0, c.len())
		for _, e := range c.entries {
			if e.key == hole {
				continue
			}
			k, err := vm.toGo(e.key, path)
			if err != nil {
				return nil, err
			}
			if o.kind == ObjectSet {
				out = append(out, k)
				continue
			}
			x, err := vm.toGo(e.value, path)
			if err != nil {
				return nil, err
			}
			out = append(out, []any{k, x})
		}
		return out, nil
	}
	out := make(map[string]any)
	var err error
	o.props.each(func(p *property) bool {
		if !p.enumerable() || !p.key.IsString() {
			return true
		}
		var x any
		if x, err = vm.toGo(p.value, path); err != nil {
			return false
		}
		out[vm.goString(p.key)] = x
		return true
	})
	return out, err
}

// toGoType converts v to a value of Go type t.
func (vm *VM) toGoType(v Value, t reflect.Type) (reflect.Value, error) {
	if t == valueType {
		return reflect.ValueOf(v), nil
	}
	if t == bigIntType {
		if !v.IsBigInt() {
			return reflect.Value{}, fmt.Errorf("expected BigInt, got %s", v.Type())
		}
		return reflect.ValueOf(new(big.Int).Set(vm.bigInt(v))), nil
	}
	if hv, ok := vm.HostValue(v); ok {
		rv := reflect.ValueOf(hv)
		if rv.IsValid() && rv.Type().AssignableTo(t) {
			return rv, nil
		}
	}

	switch t.Kind() {
	case reflect.Bool:
		return reflect.ValueOf(vm.toBoolean(v)).Convert(t), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if !v.IsNumber() {
			return reflect.Value{}, fmt.Errorf("expected number, got %s", v.Type())
		}
		return reflect.ValueOf(v.Float64()).Convert(t), nil
	case reflect.String:
		if !v.IsString() {
			return reflect.Value{}, fmt.Errorf("expected string, got %s", v.Type())
		}
		return reflect.ValueOf(vm.goString(v)).Convert(t), nil
	case reflect.Slice:
		o := vm.asObject(v)
		if o == nil || o.kind != ObjectArray {
			if v.IsNullish() {
				return reflect.Zero(t), nil
			}
			return reflect.Value{}, fmt.Errorf("expected array, got %s", v.Type())
		}
		if o.length > maxGoSlice {
			return reflect.Value{}, fmt.Errorf("array of length %d is too long to convert", o.length)
		}
		n := int(o.length)
		out := reflect.MakeSlice(t, n, n)
		for i := range n {
			e, ok := o.element(uint32(i))
			if !ok {
				e = Undefined
			}
			ev, err := vm.toGoType(e, t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	case reflect.Interface:
		x, err := vm.ToGo(v)
		if err != nil {
			return reflect.Value{}, err
		}
		if x == nil {
			return reflect.Zero(t), nil
		}
		rv := reflect.ValueOf(x)
		if !rv.Type().AssignableTo(t) {
			return reflect.Value{}, fmt.Errorf("%s does not implement %s", rv.Type(), t)
		}
		return rv, nil
	}

	x, err := vm.ToGo(v)
	if err != nil {
		return reflect.Value{}, err
	}
	if x == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(x)
	switch {
	case rv.Type().AssignableTo(t):
		return rv, nil
	case rv.Type().ConvertibleTo(t):
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", rv.Type(), t)
}
