// Package bytecode defines the compiled program format executed by the
// kestrel virtual machine.
//
// The format is designed for:
//   - Compact representation (one opcode byte plus 0-4 operand bytes)
//   - Fast decoding (fixed-width opcodes, little-endian operands)
//   - Easy serialization (canonical CBOR behind the "KBC1" magic)
//
// # Architecture Overview
//
//   - Opcodes: stack-based instructions grouped by hex range, covering
//     stack shuffling, constants, locals, lexical environments, property
//     access, arithmetic, comparison, control flow, calls and suspension.
//
//   - Program: a constant pool plus the index of the entry function.
//     Function bodies, scope descriptors, strings, numbers and big integer
//     literals all live in the pool and are referenced by u16 index.
//
//   - Function: code bytes, exception handler table, local slot count and
//     the maximum operand stack depth the body can reach.
//
//   - Builder: assembles a Function with forward-referenced labels and
//     computes the operand stack bound by walking the control flow graph.
//
// # Handler Tables
//
// Each handler covers the half-open byte range [Start, End). When an
// instruction at offset pc throws, the narrowest range containing pc wins.
// A handler whose Target lies inside its own range only protects
// [Start, Target), so handler code is never covered by itself.
//
// # Operand Stack Contract
//
// Calls lay out the stack as callee, receiver, then arguments. The loader
// trusts MaxStack and NumLocals; Validate checks structure, not semantics.
package bytecode
