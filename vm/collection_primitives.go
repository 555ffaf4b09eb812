package vm

// ---------------------------------------------------------------------------
// Set and Map
// ---------------------------------------------------------------------------

// There are no accessor properties, so size is an own read-only data
// property that every mutation refreshes.

func (vm *VM) initCollections() {
	in := &vm.intrinsics
	in.setProto = vm.newObjectKind(ObjectOrdinary, in.objectProto, nil)
	in.mapProto = vm.newObjectKind(ObjectOrdinary, in.objectProto, nil)

	setCtor := vm.newConstructor("Set", 0, in.setProto, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		if !ctx.IsConstruct() {
			vm.throwError(errType, "Constructor Set requires 'new'")
		}
		set := vm.newCollection(ObjectSet, vm.object(this).proto)
		if src := Arg(args, 0); !src.IsNullish() {
			adder := vm.getIndex(set, vm.str("add"))
			vm.iterate(src, func(v Value) bool {
				vm.callValue(adder, set, []Value{v}, false)
				return true
			})
		}
		return set, nil
	})
	vm.defineGlobalValue("Set", setCtor)

	mapCtor := vm.newConstructor("Map", 0, in.mapProto, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		if !ctx.IsConstruct() {
			vm.throwError(errType, "Constructor Map requires 'new'")
		}
		m := vm.newCollection(ObjectMap, vm.object(this).proto)
		if src := Arg(args, 0); !src.IsNullish() {
			setter := vm.getIndex(m, vm.str("set"))
			vm.iterate(src, func(entry Value) bool {
				if !entry.IsObject() {
					vm.throwError(errType, "Iterator value %s is not an entry object", vm.safeString(entry))
				}
				k := vm.getIndex(entry, Number(0))
				v := vm.getIndex(entry, Number(1))
				vm.callValue(setter, m, []Value{k, v}, false)
				return true
			})
		}
		return m, nil
	})
	vm.defineGlobalValue("Map", mapCtor)

	// Set.prototype

	vm.defineMethod(in.setProto, "add", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		c := vm.thisCollection(this, ObjectSet, "Set.prototype.add")
		v := normalizeZero(Arg(args, 0))
		if c.set(vm.collectionKey(v), v, v) {
			vm.heap.reserve(48)
			vm.updateSize(this, c)
		}
		return this, nil
	})
	vm.defineMethod(in.setProto, "has", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		c := vm.thisCollection(this, ObjectSet, "Set.prototype.has")
		_, ok := c.get(vm.collectionKey(Arg(args, 0)))
		return Bool(ok), nil
	})
	vm.defineMethod(in.setProto, "delete", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		c := vm.thisCollection(this, ObjectSet, "Set.prototype.delete")
		ok := c.remove(vm.collectionKey(Arg(args, 0)))
		vm.updateSize(this, c)
		return Bool(ok), nil
	})
	vm.defineMethod(in.setProto, "clear", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		c := vm.thisCollection(this, ObjectSet, "Set.prototype.clear")
		c.clear()
		vm.updateSize(this, c)
		return Undefined, nil
	})
	vm.defineMethod(in.setProto, "forEach", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		c := vm.thisCollection(this, ObjectSet, "Set.prototype.forEach")
		fn := vm.collectionCallback(args, "Set")
		vm.eachEntry(c, func(k, v Value) {
			vm.callValue(fn, Arg(args, 1), []Value{v, k, this}, false)
		})
		return Undefined, nil
	})
	vm.defineCollectionIterators(in.setProto, ObjectSet, "Set", iterValues)

	// Map.prototype

	vm.defineMethod(in.mapProto, "get", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		c := vm.thisCollection(this, ObjectMap, "Map.prototype.get")
		v, _ := c.get(vm.collectionKey(Arg(args, 0)))
		return v, nil
	})
	vm.defineMethod(in.mapProto, "set", 2, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		c := vm.thisCollection(this, ObjectMap, "Map.prototype.set")
		k := normalizeZero(Arg(args, 0))
		if c.set(vm.collectionKey(k), k, Arg(args, 1)) {
			vm.heap.reserve(48)
			vm.updateSize(this, c)
		}
		return this, nil
	})
	vm.defineMethod(in.mapProto, "has", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		c := vm.thisCollection(this, ObjectMap, "Map.prototype.has")
		_, ok := c.get(vm.collectionKey(Arg(args, 0)))
		return Bool(ok), nil
	})
	vm.defineMethod(in.mapProto, "delete", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		c := vm.thisCollection(this, ObjectMap, "Map.prototype.delete")
		ok := c.remove(vm.collectionKey(Arg(args, 0)))
		vm.updateSize(this, c)
		return Bool(ok), nil
	})
	vm.defineMethod(in.mapProto, "clear", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		c := vm.thisCollection(this, ObjectMap, "Map.prototype.clear")
		c.clear()
		vm.updateSize(this, c)
		return Undefined, nil
	})
	vm.defineMethod(in.mapProto, "forEach", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		c := vm.thisCollection(this, ObjectMap, "Map.prototype.forEach")
		fn := vm.collectionCallback(args, "Map")
		vm.eachEntry(c, func(k, v Value) {
			vm.callValue(fn, Arg(args, 1), []Value{v, k, this}, false)
		})
		return Undefined, nil
	})
	vm.defineCollectionIterators(in.mapProto, ObjectMap, "Map", iterEntries)
}

// defineCollectionIterators installs keys, values and entries on proto and
// aliases Symbol.iterator to the method yielding def.
func (vm *VM) defineCollectionIterators(proto Value, kind ObjectKind, typeName string, def iterationKind) {
	for _, m := range []struct {
		name string
		kind iterationKind
	}{{"keys", iterKeys}, {"values", iterValues}, {"entries", iterEntries}} {
		method := typeName + ".prototype." + m.name
		vm.defineMethod(proto, m.name, 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
			vm.thisCollection(this, kind, method)
			return vm.newIterator(this, m.kind), nil
		})
		if m.kind == def {
			fn, _ := vm.ownValue(vm.object(proto), vm.str(m.name))
			vm.defineOwn(vm.object(proto), vm.intrinsics.iteratorSymbol, fn, attrHidden)
		}
	}
}

// newCollection creates an empty Set or Map.
func (vm *VM) newCollection(kind ObjectKind, proto Value) Value {
	if !proto.IsObject() {
		proto = vm.intrinsics.setProto
		if kind == ObjectMap {
			proto = vm.intrinsics.mapProto
		}
	}
	v := vm.newObjectKind(kind, proto, newCollectionData())
	vm.defineOwn(vm.object(v), vm.names.size, Number(0), attrConfigurable)
	return v
}

func (vm *VM) updateSize(obj Value, c *collectionData) {
	if p := vm.object(obj).props.get(vm.names.size); p != nil {
		p.value = Number(float64(c.len()))
	}
}

func (vm *VM) thisCollection(this Value, kind ObjectKind, method string) *collectionData {
	if o := vm.asObject(this); o != nil && o.kind == kind {
		return o.internal.(*collectionData)
	}
	vm.throwError(errType, "Method %s called on incompatible receiver %s", method, vm.safeString(this))
	return nil
}

func (vm *VM) collectionCallback(args []Value, typeName string) Value {
	fn := Arg(args, 0)
	if o := vm.asObject(fn); o == nil || !o.isCallable() {
		vm.throwError(errType, "%s is not a function (in %s.prototype.forEach)", vm.safeString(fn), typeName)
	}
	return fn
}

// eachEntry visits the live entries of c in insertion order, including
// entries added while visiting. Tombstones keep positions stable for the
// duration.
func (vm *VM) eachEntry(c *collectionData, fn func(k, v Value)) {
	c.locks++
	defer func() {
		c.locks--
		c.maybeCompact()
	}()
	for i := 0; i < len(c.entries); i++ {
		if e := c.entries[i]; e.key != hole {
			fn(e.key, e.value)
		}
	}
}

// normalizeZero turns -0 into +0, as Set and Map do for stored keys.
func normalizeZero(v Value) Value {
	if v.IsNumber() && v.Float64() == 0 {
		return Number(0)
	}
	return v
}
