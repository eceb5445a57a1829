package testutil

// Hand-assembled guest modules for runtime tests. Each guest imports from the
// "env" module and exports:
//
//	memory                     one page, unbounded
//	__indirect_function_table  table 0, entry 0 = double
//	double(x i32) i32          returns x*2
//	make(x i32) i32            returns val_make_int(x)
//	throw(h i32)               calls val_throw(h)
//	malloc(n i32) i32          bump allocator starting at 1024 (WithGuestAllocator)
//	free(p i32)                no-op (WithGuestAllocator)
//	call_back(h i32) i32       returns val_func_call(h, val_new_array())

const (
	wasmI32      = 0x7f
	wasmFuncType = 0x60
	wasmFuncRef  = 0x70
	wasmEnd      = 0x0b
)

// GuestOption configures a guest module built by GuestModule.
type GuestOption func(*guestConfig)

type guestConfig struct {
	exportAllocator bool
}

// WithGuestAllocator makes the guest export its malloc and free.
func WithGuestAllocator() GuestOption {
	return func(c *guestConfig) {
		c.exportAllocator = true
	}
}

// GuestModule returns the binary of a small test guest.
func GuestModule(opts ...GuestOption) []byte {
	var cfg guestConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	// Function index space: imports first, then defined functions.
	const (
		fnMakeInt = iota
		fnThrow
		fnFuncCall
		fnNewArray
		fnDouble
		fnMalloc
		fnFree
		fnMake
		fnThrowExport
		fnCallBack
	)
	// Type indices.
	const (
		tI32ToI32 = iota
		tI32ToNone
		tI32x2ToI32
		tNoneToI32
	)

	types := vec(
		[]byte{wasmFuncType, 1, wasmI32, 1, wasmI32},
		[]byte{wasmFuncType, 1, wasmI32, 0},
		[]byte{wasmFuncType, 2, wasmI32, wasmI32, 1, wasmI32},
		[]byte{wasmFuncType, 0, 1, wasmI32},
	)

	imports := vec(
		importFunc("env", "val_make_int", tI32ToI32),
		importFunc("env", "val_throw", tI32ToNone),
		importFunc("env", "val_func_call", tI32x2ToI32),
		importFunc("env", "val_new_array", tNoneToI32),
	)

	functions := vec(
		[]byte{tI32ToI32},  // double
		[]byte{tI32ToI32},  // malloc
		[]byte{tI32ToNone}, // free
		[]byte{tI32ToI32},  // make
		[]byte{tI32ToNone}, // throw
		[]byte{tI32ToI32},  // call_back
	)

	tables := vec([]byte{wasmFuncRef, 0x00, 0x01})
	memories := vec([]byte{0x00, 0x01})
	// global 0: mutable i32 bump pointer = 1024
	globals := vec([]byte{wasmI32, 0x01, 0x41, 0x80, 0x08, wasmEnd})

	exports := [][]byte{
		export("memory", 0x02, 0),
		export("__indirect_function_table", 0x01, 0),
		export("double", 0x00, fnDouble),
		export("make", 0x00, fnMake),
		export("throw", 0x00, fnThrowExport),
		export("call_back", 0x00, fnCallBack),
	}
	if cfg.exportAllocator {
		exports = append(exports,
			export("malloc", 0x00, fnMalloc),
			export("free", 0x00, fnFree),
		)
	}

	// active segment for table 0 at offset 0: [double]
	elements := vec([]byte{0x00, 0x41, 0x00, wasmEnd, 0x01, fnDouble})

	code := vec(
		body(0x20, 0x00, 0x41, 0x02, 0x6c),                         // local.get 0; i32.const 2; i32.mul
		body(0x23, 0x00, 0x23, 0x00, 0x20, 0x00, 0x6a, 0x24, 0x00), // global.get 0; global.get 0; local.get 0; i32.add; global.set 0
		body(),                                      // free
		body(0x20, 0x00, 0x10, fnMakeInt),           // local.get 0; call val_make_int
		body(0x20, 0x00, 0x10, fnThrow),             // local.get 0; call val_throw
		body(0x20, 0x00, 0x10, fnNewArray, 0x10, fnFuncCall), // local.get 0; call val_new_array; call val_func_call
	)

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = append(out, section(1, types)...)
	out = append(out, section(2, imports)...)
	out = append(out, section(3, functions)...)
	out = append(out, section(4, tables)...)
	out = append(out, section(5, memories)...)
	out = append(out, section(6, globals)...)
	out = append(out, section(7, vec(exports...))...)
	out = append(out, section(9, elements)...)
	out = append(out, section(10, code)...)
	return out
}

// The helpers below only handle sizes below 128, which keeps every LEB128
// length a single byte.

func section(id byte, content []byte) []byte {
	return append([]byte{id, byte(len(content))}, content...)
}

func vec(items ...[]byte) []byte {
	out := []byte{byte(len(items))}
	for _, item := range items {
		out = append(out, item...)
	}
	return out
}

func name(s string) []byte {
	return append([]byte{byte(len(s))}, s...)
}

func importFunc(module, field string, typeIndex byte) []byte {
	out := append(name(module), name(field)...)
	return append(out, 0x00, typeIndex)
}

func export(field string, kind, index byte) []byte {
	return append(name(field), kind, index)
}

func body(instrs ...byte) []byte {
	fn := append([]byte{0x00}, instrs...) // no locals
	fn = append(fn, wasmEnd)
	return append([]byte{byte(len(fn))}, fn...)
}
