// Package proj provides a high-level Go API for the PROJ cartographic
// projection engine compiled as a WASI reactor and run with wazero.
//
// The engine reads proj.db, proj.ini and grid files from a private in-memory
// filesystem mounted at the guest root. The Loader fills that filesystem after
// the reactor signals readiness and caches one engine per process.
//
// Binaries built with Emscripten import helpers from the "env" module; those
// are provided by wazero's emscripten package when present.
package proj

import (
	"context"
	"errors"
	"sync"

	projwasm "github.com/aperturerobotics/go-proj-wasm"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/emscripten"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Context is a PJ_CONTEXT pointer in guest memory.
type Context uint32

// PJ is a PJ object pointer in guest memory: a CRS or a transformation.
type PJ uint32

// Proj wraps a PROJ WASI reactor module providing a high-level API for
// coordinate transformation.
type Proj struct {
	mu sync.Mutex

	runtime wazero.Runtime
	mod     api.Module
	vfs     *VirtualFS

	malloc api.Function
	free   api.Function

	contextCreate          api.Function
	contextDestroy         api.Function
	contextSetDatabasePath api.Function
	contextGetDatabasePath api.Function
	contextErrno           api.Function
	contextErrnoString     api.Function

	create                    api.Function
	createCRSToCRS            api.Function
	createCRSToCRSFromPJ      api.Function
	createFromDatabase        api.Function
	normalizeForVisualization api.Function
	destroy                   api.Function

	asWKT        api.Function
	asPROJString api.Function
	transArray   api.Function

	getAuthorities    api.Function
	getCodes          api.Function
	stringListDestroy api.Function

	closed bool
}

// CompileProj compiles an engine binary.
// The compiled module can be reused across multiple Proj instances.
func CompileProj(ctx context.Context, r wazero.Runtime, wasm []byte) (wazero.CompiledModule, error) {
	return r.CompileModule(ctx, wasm)
}

// NewProj instantiates the engine with vfs mounted at the guest root and runs
// its reactor initialization. The filesystem stays writable from the host, so
// resources can be installed after NewProj returns and before first use.
// Call Close() when done to release resources.
func NewProj(ctx context.Context, r wazero.Runtime, wasm []byte, config wazero.ModuleConfig, vfs *VirtualFS) (*Proj, error) {
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		return nil, err
	}

	compiled, err := CompileProj(ctx, r, wasm)
	if err != nil {
		return nil, err
	}

	if importsModule(compiled, "env") {
		if _, err := emscripten.InstantiateForModule(ctx, r, compiled); err != nil {
			return nil, err
		}
	}

	return newProjFromCompiled(ctx, r, compiled, config, vfs)
}

// importsModule reports whether the guest imports any function from module.
func importsModule(compiled wazero.CompiledModule, module string) bool {
	for _, fn := range compiled.ImportedFunctions() {
		if mod, _, _ := fn.Import(); mod == module {
			return true
		}
	}
	return false
}

// newProjFromCompiled instantiates the engine from a pre-compiled module.
func newProjFromCompiled(ctx context.Context, r wazero.Runtime, compiled wazero.CompiledModule, config wazero.ModuleConfig, vfs *VirtualFS) (*Proj, error) {
	if vfs == nil {
		vfs = NewVirtualFS()
	}
	config = config.
		WithName(projwasm.WASMFilename).
		WithFSConfig(wazero.NewFSConfig().WithFSMount(vfs.FS(), "/")).
		WithEnv("PROJ_DATA", projwasm.GuestDataDir+":"+projwasm.GuestGridDir).
		WithEnv("PROJ_NETWORK", "OFF").
		WithStartFunctions()

	mod, err := r.InstantiateModule(ctx, compiled, config)
	if err != nil {
		return nil, err
	}

	// Call _initialize for WASI reactor startup.
	initFn := mod.ExportedFunction(projwasm.ExportInitialize)
	if initFn != nil {
		if _, err := initFn.Call(ctx); err != nil {
			_ = mod.Close(ctx)
			return nil, errors.New("_initialize failed: " + err.Error())
		}
	}

	p := bindProj(mod)
	p.runtime = r
	p.vfs = vfs

	if err := p.checkExports(); err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}
	return p, nil
}

// bindProj looks up the engine exports of mod.
func bindProj(mod api.Module) *Proj {
	return &Proj{
		mod: mod,

		malloc: mod.ExportedFunction(projwasm.ExportMalloc),
		free:   mod.ExportedFunction(projwasm.ExportFree),

		contextCreate:          mod.ExportedFunction(projwasm.ExportContextCreate),
		contextDestroy:         mod.ExportedFunction(projwasm.ExportContextDestroy),
		contextSetDatabasePath: mod.ExportedFunction(projwasm.ExportContextSetDatabasePath),
		contextGetDatabasePath: mod.ExportedFunction(projwasm.ExportContextGetDatabasePath),
		contextErrno:           mod.ExportedFunction(projwasm.ExportContextErrno),
		contextErrnoString:     mod.ExportedFunction(projwasm.ExportContextErrnoString),

		create:                    mod.ExportedFunction(projwasm.ExportCreate),
		createCRSToCRS:            mod.ExportedFunction(projwasm.ExportCreateCRSToCRS),
		createCRSToCRSFromPJ:      mod.ExportedFunction(projwasm.ExportCreateCRSToCRSFromPJ),
		createFromDatabase:        mod.ExportedFunction(projwasm.ExportCreateFromDatabase),
		normalizeForVisualization: mod.ExportedFunction(projwasm.ExportNormalizeForVisualization),
		destroy:                   mod.ExportedFunction(projwasm.ExportDestroy),

		asWKT:        mod.ExportedFunction(projwasm.ExportAsWKT),
		asPROJString: mod.ExportedFunction(projwasm.ExportAsPROJString),
		transArray:   mod.ExportedFunction(projwasm.ExportTransArray),

		getAuthorities:    mod.ExportedFunction(projwasm.ExportGetAuthoritiesFromDatabase),
		getCodes:          mod.ExportedFunction(projwasm.ExportGetCodesFromDatabase),
		stringListDestroy: mod.ExportedFunction(projwasm.ExportStringListDestroy),
	}
}

// checkExports fails on the first missing required export.
// Optional exports are checked at call time.
func (p *Proj) checkExports() error {
	required := []struct {
		name string
		fn   api.Function
	}{
		{projwasm.ExportMalloc, p.malloc},
		{projwasm.ExportFree, p.free},
		{projwasm.ExportContextCreate, p.contextCreate},
		{projwasm.ExportContextDestroy, p.contextDestroy},
		{projwasm.ExportContextErrno, p.contextErrno},
		{projwasm.ExportCreateCRSToCRS, p.createCRSToCRS},
		{projwasm.ExportTransArray, p.transArray},
		{projwasm.ExportDestroy, p.destroy},
	}
	for _, exp := range required {
		if exp.fn == nil {
			return missingExportError(exp.name)
		}
	}
	return nil
}

// FS returns the engine's virtual filesystem.
func (p *Proj) FS() *VirtualFS {
	return p.vfs
}

// Module returns the underlying wazero module.
func (p *Proj) Module() api.Module {
	return p.mod
}

// allocString allocates a null-terminated string in WASM memory.
func (p *Proj) allocString(ctx context.Context, s string) (uint32, error) {
	b := []byte(s)
	results, err := p.malloc.Call(ctx, uint64(len(b)+1))
	if err != nil {
		return 0, err
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, errors.New("malloc returned null")
	}
	if !p.mod.Memory().Write(ptr, append(b, 0)) {
		_, _ = p.free.Call(ctx, uint64(ptr))
		return 0, errors.New("failed to write string to memory")
	}
	return ptr, nil
}

// allocStrings allocates each string, freeing all on failure.
func (p *Proj) allocStrings(ctx context.Context, ss ...string) ([]uint32, error) {
	ptrs := make([]uint32, 0, len(ss))
	for _, s := range ss {
		ptr, err := p.allocString(ctx, s)
		if err != nil {
			p.freePtrs(ctx, ptrs...)
			return nil, err
		}
		ptrs = append(ptrs, ptr)
	}
	return ptrs, nil
}

// freePtr frees a pointer in WASM memory.
func (p *Proj) freePtr(ctx context.Context, ptr uint32) {
	if ptr != 0 {
		_, _ = p.free.Call(ctx, uint64(ptr))
	}
}

func (p *Proj) freePtrs(ctx context.Context, ptrs ...uint32) {
	for _, ptr := range ptrs {
		p.freePtr(ctx, ptr)
	}
}

// readCString reads a null-terminated string from WASM memory.
func (p *Proj) readCString(ptr uint32) string {
	mem := p.mod.Memory()
	var buf []byte
	for i := uint32(0); ; i++ {
		b, ok := mem.ReadByte(ptr + i)
		if !ok || b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf)
}

// readStringList reads a NULL-terminated array of C string pointers.
func (p *Proj) readStringList(ptr uint32) []string {
	mem := p.mod.Memory()
	var out []string
	for off := ptr; ; off += 4 {
		sp, ok := mem.ReadUint32Le(off)
		if !ok || sp == 0 {
			break
		}
		out = append(out, p.readCString(sp))
	}
	return out
}

// lock serializes calls into the module. It fails once the engine is closed.
func (p *Proj) lock() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	return nil
}

// Close releases the module and its runtime.
// The Loader never calls Close on a cached engine.
func (p *Proj) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	err := p.mod.Close(ctx)
	if p.runtime != nil {
		if rerr := p.runtime.Close(ctx); err == nil {
			err = rerr
		}
	}
	return err
}
