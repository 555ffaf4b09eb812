package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Fatal conditions
// ---------------------------------------------------------------------------

// ErrFatal is the root of conditions that terminate the current top-level
// execution. Fatal errors cannot be caught by interpreted code and pass
// through native function boundaries unchanged.
var ErrFatal = errors.New("fatal")

var (
	ErrStackOverflow = fmt.Errorf("%w: maximum call stack size exceeded", ErrFatal)
	ErrOutOfMemory   = fmt.Errorf("%w: heap limit exceeded", ErrFatal)
	ErrTerminated    = fmt.Errorf("%w: execution terminated", ErrFatal)
)

// ErrClosed is returned by operations on a VM after Shutdown.
var ErrClosed = errors.New("vm: closed")

// fatalSignal carries a fatal error through panics inside the interpreter.
type fatalSignal struct {
	err error
}

// ---------------------------------------------------------------------------
// Thrown values
// ---------------------------------------------------------------------------

// Throw is a language value that was raised and not caught. For Error
// objects, Name, Message and Stack are rendered when the throw reaches
// the host.
type Throw struct {
	Value   Value
	Name    string
	Message string
	Stack   string
	cause   error
}

func (t *Throw) Error() string {
	if t.Name != "" {
		if t.Message == "" {
			return "Uncaught " + t.Name
		}
		return "Uncaught " + t.Name + ": " + t.Message
	}
	return "Uncaught " + t.Message
}

// Unwrap returns the host error that produced this throw, if any.
func (t *Throw) Unwrap() error {
	return t.cause
}

// HostError wraps the failure of a native function. Inside interpreted
// code it is visible as a thrown Error object.
type HostError struct {
	Function string
	Err      error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("%s: %v", e.Function, e.Err)
}

func (e *HostError) Unwrap() error {
	return e.Err
}

func errNotObject(op string, v Value) error {
	return fmt.Errorf("%s: %s is not an object", op, v.Type())
}

// IsFatal reports whether err terminates execution.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// ---------------------------------------------------------------------------
// Error objects
// ---------------------------------------------------------------------------

// ErrorKind selects the constructor of a created Error object.
type ErrorKind uint8

const (
	errPlain ErrorKind = iota
	errType
	errRange
	errReference
	errSyntax
	numErrorKinds
)

// Exported aliases for hosts creating errors.
const (
	PlainError     = errPlain
	TypeError      = errType
	RangeError     = errRange
	ReferenceError = errReference
	SyntaxError    = errSyntax
)

var errorNames = [numErrorKinds]string{
	errPlain:     "Error",
	errType:      "TypeError",
	errRange:     "RangeError",
	errReference: "ReferenceError",
	errSyntax:    "SyntaxError",
}

func (k ErrorKind) String() string {
	if k < numErrorKinds {
		return errorNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", k)
}

// newError creates an Error object of the given kind with a captured stack.
func (vm *VM) newError(kind ErrorKind, message string) Value {
	v := vm.newObjectKind(ObjectError, vm.intrinsics.errorProtos[kind], nil)
	o := vm.object(v)
	vm.defineOwn(o, vm.names.message, vm.str(message), attrHidden)
	vm.defineOwn(o, vm.names.stack, vm.str(vm.captureStack(kind.String(), message)), attrHidden)
	return v
}

// captureStack renders the active frames, innermost first.
func (vm *VM) captureStack(name, message string) string {
	var sb strings.Builder
	sb.WriteString(name)
	if message != "" {
		sb.WriteString(": ")
		sb.WriteString(message)
	}
	for i := len(vm.frames) - 1; i >= 0; i-- {
		sb.WriteString("\n    at ")
		sb.WriteString(displayName(vm.frames[i].fn.Name))
	}
	return sb.String()
}

func displayName(name string) string {
	if name == "" {
		return "<anonymous>"
	}
	return name
}

// throwError raises a new Error object inside the interpreter.
func (vm *VM) throwError(kind ErrorKind, format string, args ...any) {
	panic(&Throw{Value: vm.newError(kind, fmt.Sprintf(format, args...))})
}

// throwValue raises an arbitrary value inside the interpreter.
func (vm *VM) throwValue(v Value) {
	panic(&Throw{Value: v})
}

// raise re-raises an error returned from a nested execution or a native
// function inside the interpreter: fatal errors stay fatal, throws keep
// their value, and anything else becomes a HostError.
func (vm *VM) raise(err error, function string) {
	if errors.Is(err, ErrFatal) {
		panic(fatalSignal{err: err})
	}
	var t *Throw
	if errors.As(err, &t) {
		panic(t)
	}
	hostErr := &HostError{Function: function, Err: err}
	v := vm.newError(errPlain, hostErr.Error())
	panic(&Throw{Value: v, cause: hostErr})
}

// describeThrow fills the rendered fields of a throw escaping to the host.
func (vm *VM) describeThrow(t *Throw) {
	if t.Name != "" || t.Message != "" {
		return
	}
	if o := vm.asObject(t.Value); o != nil && o.kind == ObjectError {
		t.Name = vm.safeString(vm.getFrom(t.Value, o, vm.names.name))
		t.Message = vm.safeString(vm.getFrom(t.Value, o, vm.names.message))
		if p := o.props.get(vm.names.stack); p != nil && p.value.IsString() {
			t.Stack = vm.goString(p.value)
		}
		return
	}
	t.Message = vm.safeString(t.Value)
}

// safeString renders v for diagnostics without running user code.
func (vm *VM) safeString(v Value) string {
	switch v.Type() {
	case TypeString:
		return vm.goString(v)
	case TypeObject:
		o := vm.object(v)
		if o.isCallable() {
			return "function " + vm.functionName(o)
		}
		return "[object " + vm.classOf(o) + "]"
	case TypeSymbol:
		return vm.symbolDescriptiveString(v)
	}
	return vm.goString(vm.primitiveToString(v))
}
