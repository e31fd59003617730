package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Native functions
// ---------------------------------------------------------------------------

// FirstNativeAddress is the address of the first registered native. Later
// natives get successively smaller addresses.
const FirstNativeAddress = -1000

// StackView gives a native access to its arguments, which are still on the
// stack while it runs. Argument 0 is on top.
type StackView struct {
	in   *Interpreter
	argc int
}

// Arg returns argument i.
func (v StackView) Arg(i int) int64 {
	if i >= v.argc {
		v.in.fail("native argument %d out of range (%d arguments)", i, v.argc)
	}
	return v.in.Stack.Peek(i)
}

// Argc returns the number of arguments passed.
func (v StackView) Argc() int { return v.argc }

// Interpreter returns the running interpreter.
func (v StackView) Interpreter() *Interpreter { return v.in }

// NativeFunction is a host implementation the compiler treats as an extern.
// Parameter and return types are spelled in yo type syntax.
type NativeFunction struct {
	Name      string
	Address   int64
	Params    []string
	Returns   string
	Variadic  bool
	Unchecked bool
	Impl      func(v StackView) int64
}

// Argc returns the number of declared parameters.
func (fn *NativeFunction) Argc() int {
	return len(fn.Params)
}

// ownedParams lists the parameters declared with a struct type. The
// interpreter balances their reference counts after the call, since a
// native never retains or releases its arguments.
func (fn *NativeFunction) ownedParams() []int {
	var owned []int
	for i, p := range fn.Params {
		if !primitiveTypeNames[p] && p[0] != '*' && !strings.HasPrefix(p, "fn(") {
			owned = append(owned, i)
		}
	}
	return owned
}

var primitiveTypeNames = map[string]bool{
	"int": true, "i8": true, "i16": true, "i32": true, "i64": true,
	"double": true, "bool": true, "any": true, "id": true, "void": true,
}

type nativeTable struct {
	fns  []*NativeFunction
	next int64
}

func (t *nativeTable) register(namespace, name, returns string, params []string, impl func(v StackView) int64) *NativeFunction {
	fn := &NativeFunction{
		Name:    namespace + "_S" + name,
		Address: t.next,
		Params:  params,
		Returns: returns,
		Impl:    impl,
	}
	t.next--
	t.fns = append(t.fns, fn)
	return fn
}

var natives = buildNatives()

// Natives returns the native function table. Addresses are stable for a
// given build of the runtime.
func Natives() []*NativeFunction {
	return natives
}

// LookupNative finds a native by mangled name.
func LookupNative(name string) (*NativeFunction, bool) {
	for _, fn := range natives {
		if fn.Name == name {
			return fn, true
		}
	}
	return nil, false
}

// stringDataOffset is the offset of String.data, the first attribute.
const stringDataOffset = HeaderSize

func buildNatives() []*NativeFunction {
	t := &nativeTable{next: FirstNativeAddress}

	// Memory management

	// Allocations are zeroed so that a fresh object has no header until its
	// initializer writes one.
	t.register("runtime", "alloc", "any", []string{"int"}, func(v StackView) int64 {
		size := int(v.Arg(0))
		addr := v.in.Heap.Alloc(size)
		v.in.Heap.Clear(addr, size)
		return int64(addr)
	})
	t.register("runtime", "free", "void", []string{"any"}, func(v StackView) int64 {
		v.in.Heap.Free(int(v.Arg(0)))
		return 0
	})

	// Reference counting

	t.register("runtime", "retain", "any", []string{"any"}, func(v StackView) int64 {
		return v.in.ARC.Retain(v.Arg(0))
	})
	t.register("runtime", "release", "any", []string{"any"}, func(v StackView) int64 {
		return v.in.ARC.Release(v.Arg(0))
	})
	t.register("runtime", "getRetainCount", "i64", []string{"any"}, func(v StackView) int64 {
		return v.in.ARC.RetainCount(v.Arg(0))
	})
	t.register("runtime", "markForRelease", "i64", []string{"any"}, func(v StackView) int64 {
		v.in.ARC.MarkForRelease(v.Arg(0))
		return 0
	})
	t.register("runtime", "isObject", "bool", []string{"any"}, func(v StackView) int64 {
		return b2i(v.in.ARC.IsObject(v.Arg(0)))
	})
	t.register("runtime", "typeof", "int", []string{"any"}, func(v StackView) int64 {
		return v.in.ARC.TypeID(v.Arg(0))
	})

	// Dynamic dispatch: msgSend(target, selector, argc, args)

	msgSend := t.register("runtime", "msgSend", "id", []string{"id", "*i8", "int", "*any"}, func(v StackView) int64 {
		in := v.in
		target := v.Arg(0)
		selector := in.Heap.CString(int(v.Arg(1)))
		argc := int(v.Arg(2))
		argv := v.Arg(3)

		mt, ok := in.program.Metatype(in.ARC.TypeID(target))
		if !ok {
			in.fail("msgSend %q to non-object %#x", selector, target)
		}
		method, ok := mt.Methods[selector]
		if !ok {
			in.fail("%s does not respond to %q", mt.Name, selector)
		}

		args := make([]int64, 0, argc+1)
		args = append(args, target)
		for i := 0; i < argc; i++ {
			args = append(args, in.Heap.Read64(int(argv)+8*i))
		}
		// variadic buffers are heap copies unless every argument was a
		// literal, in which case argv points into a constant blob
		if argv != 0 && !in.reserved[int(argv)] {
			in.Heap.Free(int(argv))
		}
		return in.Call(method, args...)
	})
	msgSend.Variadic = true
	msgSend.Unchecked = true

	// Console output

	t.register("io", "print", "void", []string{"String"}, func(v StackView) int64 {
		s := v.Arg(0)
		if s == 0 {
			fmt.Fprintln(v.in.stdout, "nil")
			return 0
		}
		data := v.in.Heap.Read64(int(s) + stringDataOffset)
		fmt.Fprintln(v.in.stdout, v.in.Heap.CString(int(data)))
		return 0
	})
	t.register("io", "printi", "void", []string{"int"}, func(v StackView) int64 {
		fmt.Fprintln(v.in.stdout, strconv.FormatInt(v.Arg(0), 10))
		return 0
	})
	t.register("io", "printd", "void", []string{"double"}, func(v StackView) int64 {
		fmt.Fprintln(v.in.stdout, strconv.FormatFloat(f64(v.Arg(0)), 'g', -1, 64))
		return 0
	})
	t.register("io", "printc", "void", []string{"*i8"}, func(v StackView) int64 {
		fmt.Fprintln(v.in.stdout, v.in.Heap.CString(int(v.Arg(0))))
		return 0
	})

	return t.fns
}
