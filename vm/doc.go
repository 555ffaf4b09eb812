// Package vm is the Kestrel execution engine: NaN-boxed values, a
// mark-and-sweep heap with finalizers and weak references, lexical
// environments, and a bytecode interpreter with exception handler tables
// and resumable generator frames.
//
// A VM owns one heap and one global object. Programs produced by
// pkg/bytecode (directly, or through pkg/asm) are linked with Load and
// executed with Run:
//
//	machine := vm.NewVM()
//	script, err := machine.Load(program)
//	if err != nil {
//		return err
//	}
//	result, err := machine.Run(script)
//
// An uncaught throw comes back as a *Throw. Stack overflow, heap
// exhaustion and interruption come back as errors matching ErrFatal; the
// VM stays usable after either.
//
// Values are plain uint64s and are invisible to the collector while held
// in Go variables. Hosts keep values across executions with Pin, and
// native functions may hold the values they allocate only until they
// return.
package vm
