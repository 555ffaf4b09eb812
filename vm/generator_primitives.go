package vm

// ---------------------------------------------------------------------------
// Generator.prototype
// ---------------------------------------------------------------------------

func (vm *VM) initGenerators() {
	in := &vm.intrinsics
	in.generatorProto = vm.newObjectKind(ObjectOrdinary, in.objectProto, nil)
	in.coroutineProto = vm.newObjectKind(ObjectOrdinary, in.objectProto, nil)

	for _, m := range []struct {
		name string
		mode ResumeMode
	}{{"next", ResumeNext}, {"return", ResumeReturn}, {"throw", ResumeThrow}} {
		vm.defineMethod(in.generatorProto, m.name, 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
			if g := vm.generator(this); g.async {
				vm.throwError(errType, "%s method called on a coroutine", m.name)
			}
			v, done := vm.resume(this, m.mode, Arg(args, 0))
			return vm.iterResult(v, done), nil
		})
	}
}
