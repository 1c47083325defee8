// Package fakeproj assembles small WebAssembly modules standing in for the
// PROJ engine in tests. The stand-in exports a bump allocator, a context, a
// constant errno, a string list of authorities ("EPSG", "ESRI") and
// transformation stubs that succeed without touching coordinates.
// proj_create_crs_to_crs always returns null.
package fakeproj

import projwasm "github.com/aperturerobotics/go-proj-wasm"

// Minimal WebAssembly binary encoding.

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func wasmVec(items ...[]byte) []byte {
	out := uleb(uint32(len(items)))
	for _, item := range items {
		out = append(out, item...)
	}
	return out
}

func wasmName(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func wasmSection(id byte, content []byte) []byte {
	out := append([]byte{id}, uleb(uint32(len(content)))...)
	return append(out, content...)
}

// I32 is the i32 value type.
const I32 = 0x7f

func funcType(params, results []byte) []byte {
	out := []byte{0x60}
	out = append(out, uleb(uint32(len(params)))...)
	out = append(out, params...)
	out = append(out, uleb(uint32(len(results)))...)
	return append(out, results...)
}

// i32Const encodes a small non-negative i32.const.
func i32Const(v uint32) []byte {
	// Signed LEB128: values below 64 fit in one byte without the sign bit.
	out := uleb(v)
	if out[len(out)-1]&0x40 != 0 {
		out[len(out)-1] |= 0x80
		out = append(out, 0x00)
	}
	return append([]byte{0x41}, out...)
}

// Func is one exported function of a test module.
type Func struct {
	Name   string
	Params []byte
	Result []byte
	Body   []byte // instructions without the trailing end
}

// Static data layout of the fake engine.
const (
	Context   = 16
	Errno     = 1027
	ListPtr   = 256
	StringPtr = 512
)

// EngineFuncs are the exports of a stand-in engine: a bump allocator and
// stubs of the PROJ entry points used by the wrapper.
func EngineFuncs() []Func {
	malloc := []byte{
		0x23, 0x00, // global.get 0 (result)
		0x23, 0x00, 0x20, 0x00, 0x6a, // global.get 0; local.get 0; i32.add
		0x24, 0x00, // global.set 0
	}
	return []Func{
		{Name: projwasm.ExportInitialize},
		{Name: projwasm.ExportMalloc, Params: []byte{I32}, Result: []byte{I32}, Body: malloc},
		{Name: projwasm.ExportFree, Params: []byte{I32}},
		{Name: projwasm.ExportContextCreate, Result: []byte{I32}, Body: i32Const(Context)},
		{Name: projwasm.ExportContextDestroy, Params: []byte{I32}},
		{Name: projwasm.ExportContextErrno, Params: []byte{I32}, Result: []byte{I32}, Body: i32Const(Errno)},
		{Name: projwasm.ExportCreateCRSToCRS, Params: []byte{I32, I32, I32, I32}, Result: []byte{I32}, Body: i32Const(0)},
		{Name: projwasm.ExportTransArray, Params: []byte{I32, I32, I32, I32}, Result: []byte{I32}, Body: i32Const(0)},
		{Name: projwasm.ExportDestroy, Params: []byte{I32}, Result: []byte{I32}, Body: i32Const(0)},
		{Name: projwasm.ExportGetAuthoritiesFromDatabase, Params: []byte{I32}, Result: []byte{I32}, Body: i32Const(ListPtr)},
		{Name: projwasm.ExportStringListDestroy, Params: []byte{I32}},
	}
}

// Build assembles a module with one page of exported memory, a mutable
// heap pointer starting at 1024 and a string list at ListPtr.
func Build(funcs []Func) []byte {
	var types, funcIdx, exports, bodies [][]byte
	exports = append(exports, append(wasmName("memory"), 0x02, 0x00))
	for i, f := range funcs {
		types = append(types, funcType(f.Params, f.Result))
		funcIdx = append(funcIdx, uleb(uint32(i)))
		exports = append(exports, append(append(wasmName(f.Name), 0x00), uleb(uint32(i))...))
		code := append([]byte{0x00}, f.Body...)
		code = append(code, 0x0b)
		bodies = append(bodies, append(uleb(uint32(len(code))), code...))
	}

	list := []byte{
		0x00, 0x02, 0x00, 0x00, // 512
		0x08, 0x02, 0x00, 0x00, // 520
		0x00, 0x00, 0x00, 0x00,
	}
	strs := []byte("EPSG\x00\x00\x00\x00ESRI\x00")
	segment := func(offset uint32, data []byte) []byte {
		out := []byte{0x00}
		out = append(out, i32Const(offset)...)
		out = append(out, 0x0b)
		return append(out, append(uleb(uint32(len(data))), data...)...)
	}

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = append(out, wasmSection(1, wasmVec(types...))...)
	out = append(out, wasmSection(3, wasmVec(funcIdx...))...)
	out = append(out, wasmSection(5, wasmVec([]byte{0x00, 0x01}))...)
	out = append(out, wasmSection(6, wasmVec(append([]byte{I32, 0x01}, append(i32Const(1024), 0x0b)...)))...)
	out = append(out, wasmSection(7, wasmVec(exports...))...)
	out = append(out, wasmSection(10, wasmVec(bodies...))...)
	out = append(out, wasmSection(11, wasmVec(segment(ListPtr, list), segment(StringPtr, strs)))...)
	return out
}

// Module is the stand-in engine with every export of EngineFuncs.
func Module() []byte {
	return Build(EngineFuncs())
}

// Without returns EngineFuncs minus the named export.
func Without(name string) []Func {
	var funcs []Func
	for _, f := range EngineFuncs() {
		if f.Name != name {
			funcs = append(funcs, f)
		}
	}
	return funcs
}
