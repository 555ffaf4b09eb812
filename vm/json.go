package vm

import (
	"bytes"
	"errors"
	"io"
	"math"
	"strings"

	"github.com/goccy/go-json"
)

// ---------------------------------------------------------------------------
// JSON object
// ---------------------------------------------------------------------------

func (vm *VM) initJSON() {
	obj := vm.newOrdinary()
	vm.defineGlobalValue("JSON", obj)

	vm.defineMethod(obj, "stringify", 3, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		indent := vm.jsonIndent(Arg(args, 2))
		s, ok := vm.stringify(Arg(args, 0), indent)
		if !ok {
			return Undefined, nil
		}
		return vm.str(s), nil
	})
	vm.defineMethod(obj, "parse", 2, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		text := vm.goString(vm.toString(Arg(args, 0)))
		return vm.parseJSON([]byte(text)), nil
	})
}

// jsonIndent interprets the space argument of JSON.stringify.
func (vm *VM) jsonIndent(space Value) string {
	switch {
	case space.IsNumber():
		n := int(min(10, vm.toIntegerOrInfinity(space)))
		if n > 0 {
			return strings.Repeat(" ", n)
		}
	case space.IsString():
		s := vm.goString(space)
		if len(s) > 10 {
			s = s[:10]
		}
		return s
	}
	return ""
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

type jsonWriter struct {
	vm    *VM
	buf   bytes.Buffer
	stack []Value // objects being serialized
}

// stringify serializes v. ok is false when v itself is not serializable
// (undefined, a function or a symbol).
func (vm *VM) stringify(v Value, indent string) (string, bool) {
	w := &jsonWriter{vm: vm}
	if !w.value(vm.names.empty, v) {
		return "", false
	}
	if indent == "" {
		return w.buf.String(), true
	}
	var out bytes.Buffer
	if err := json.Indent(&out, w.buf.Bytes(), "", indent); err != nil {
		vm.throwError(errPlain, "JSON.stringify: %v", err)
	}
	return out.String(), true
}

// prepare applies toJSON and reports whether v produces output.
func (w *jsonWriter) prepare(key, v Value) (Value, bool) {
	vm := w.vm
	if v.IsObject() || v.IsBigInt() {
		fn := vm.getProperty(v, vm.names.toJSON)
		if o := vm.asObject(fn); o != nil && o.isCallable() {
			v = vm.callValue(fn, v, []Value{key}, false)
		}
	}
	switch v.Type() {
	case TypeUndefined, TypeSymbol:
		return v, false
	case TypeObject:
		if vm.object(v).isCallable() {
			return v, false
		}
	}
	return v, true
}

func (w *jsonWriter) value(key, v Value) bool {
	vm := w.vm
	v, ok := w.prepare(key, v)
	if !ok {
		return false
	}
	switch v.Type() {
	case TypeNull:
		w.buf.WriteString("null")
	case TypeBoolean:
		w.buf.WriteString(vm.goString(vm.primitiveToString(v)))
	case TypeNumber:
		if f := v.Float64(); math.IsInf(f, 0) || f != f {
			w.buf.WriteString("null")
		} else {
			w.buf.WriteString(formatNumber(f))
		}
	case TypeString:
		w.quote(vm.goString(v))
	case TypeBigInt:
		vm.throwError(errType, "Do not know how to serialize a BigInt")
	case TypeObject:
		w.object(v)
	}
	return true
}

func (w *jsonWriter) quote(s string) {
	b, err := json.MarshalWithOption(s, json.DisableHTMLEscape())
	if err != nil {
		w.vm.throwError(errPlain, "JSON.stringify: %v", err)
	}
	w.buf.Write(b)
}

func (w *jsonWriter) object(v Value) {
	vm := w.vm
	for _, s := range w.stack {
		if s == v {
			vm.throwError(errType, "Converting circular structure to JSON")
		}
	}
	w.stack = append(w.stack, v)
	defer func() { w.stack = w.stack[:len(w.stack)-1] }()

	o := vm.object(v)
	if o.kind == ObjectArray {
		if int(o.length) > maxStringLength/len("null,") {
			vm.throwError(errRange, "Invalid string length")
		}
		w.buf.WriteByte('[')
		for i := 0; i < int(o.length); i++ {
			if i > 0 {
				w.buf.WriteByte(',')
			}
			if !w.value(vm.indexKey(i), vm.getFrom(v, o, vm.indexKey(i))) {
				w.buf.WriteString("null")
			}
		}
		w.buf.WriteByte(']')
		return
	}

	w.buf.WriteByte('{')
	first := true
	for _, k := range vm.ownKeys(o, true, false) {
		mark := w.buf.Len()
		if !first {
			w.buf.WriteByte(',')
		}
		w.quote(vm.goString(k))
		w.buf.WriteByte(':')
		if !w.value(k, vm.getFrom(v, o, k)) {
			w.buf.Truncate(mark)
			continue
		}
		first = false
	}
	w.buf.WriteByte('}')
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// parseJSON decodes text into values, preserving object key order.
// Malformed input throws a SyntaxError.
func (vm *VM) parseJSON(text []byte) Value {
	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()
	v := vm.parseJSONValue(dec)
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		vm.throwError(errSyntax, "Unexpected non-whitespace character after JSON")
	}
	return v
}

func (vm *VM) jsonToken(dec *json.Decoder) json.Token {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			vm.throwError(errSyntax, "Unexpected end of JSON input")
		}
		vm.throwError(errSyntax, "%v", err)
	}
	return tok
}

func (vm *VM) parseJSONValue(dec *json.Decoder) Value {
	switch t := vm.jsonToken(dec).(type) {
	case nil:
		return Null
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case json.Number:
		return Number(parseNumber(string(t)))
	case string:
		return vm.str(t)
	case json.Delim:
		switch t {
		case '[':
			arr := vm.newArray(nil)
			o := vm.object(arr)
			for dec.More() {
				vm.setElement(o, o.length, vm.parseJSONValue(dec))
			}
			vm.jsonToken(dec)
			return arr
		case '{':
			obj := vm.newOrdinary()
			o := vm.object(obj)
			for dec.More() {
				key, ok := vm.jsonToken(dec).(string)
				if !ok {
					vm.throwError(errSyntax, "Expected property name in JSON")
				}
				vm.createDataProperty(o, vm.str(key), vm.parseJSONValue(dec))
			}
			vm.jsonToken(dec)
			return obj
		}
	}
	vm.throwError(errSyntax, "Unexpected token in JSON")
	return Undefined
}

// createDataProperty defines or replaces an enumerable, writable own
// property, as object literals and JSON.parse do.
func (vm *VM) createDataProperty(o *Object, key, v Value) {
	if p := o.props.get(key); p != nil {
		p.value = v
		return
	}
	vm.defineOwn(o, key, v, attrDefault)
}

// ---------------------------------------------------------------------------
// Host conversion
// ---------------------------------------------------------------------------

// ToJSON serializes v like JSON.stringify. Values with no JSON form
// (undefined, functions, symbols) render as "undefined".
func (vm *VM) ToJSON(v Value, indent string) (s string, err error) {
	err = vm.host(func() {
		vm.rooted(func() {
			vm.keepAlive(v)
			var ok bool
			if s, ok = vm.stringify(v, indent); !ok {
				s = "undefined"
			}
		})
	})
	return s, err
}

// FromJSON parses JSON text into a value. Object keys keep their order.
func (vm *VM) FromJSON(data []byte) (result Value, err error) {
	result = Undefined
	err = vm.host(func() {
		result = vm.parseJSON(data)
	})
	return result, err
}
