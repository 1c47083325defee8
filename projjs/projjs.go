// Package projjs exposes the PROJ engine to goja scripts as a native module.
//
//	const proj = require("@proj/wasm");
//	proj.initialize({
//	    projDb: db,
//	    onSuccess: (p) => { ... },
//	    onError: (err) => { ... },
//	});
//
// Continuations run on the event loop that owns the runtime.
package projjs

import (
	"context"
	"time"

	projwasm "github.com/aperturerobotics/go-proj-wasm"
	proj "github.com/aperturerobotics/go-proj-wasm/wazero-proj"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"
)

// ModuleName is the require() name of the module.
const ModuleName = "@proj/wasm"

// Binding connects a Loader to the scripts of one event loop.
type Binding struct {
	ctx    context.Context
	loop   *eventloop.EventLoop
	loader *proj.Loader
}

// New creates a Binding. A nil loader selects proj.DefaultLoader.
func New(ctx context.Context, loop *eventloop.EventLoop, loader *proj.Loader) *Binding {
	if loader == nil {
		loader = proj.DefaultLoader()
	}
	return &Binding{ctx: ctx, loop: loop, loader: loader}
}

// Register makes the module available to require() under ModuleName.
func (b *Binding) Register(reg *require.Registry) {
	reg.RegisterNativeModule(ModuleName, b.Module)
}

// Module is a require.ModuleLoader.
func (b *Binding) Module(rt *goja.Runtime, module *goja.Object) {
	m := module.Get("exports").(*goja.Object)
	m.Set("initialize", b.initialize(rt))
	m.Set("VERSION", projwasm.Version)
}

func (b *Binding) initialize(rt *goja.Runtime) func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var obj *goja.Object
		if arg := call.Argument(0); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			obj = arg.ToObject(rt)
		}
		if obj == nil {
			panic(rt.NewTypeError(proj.ErrMissingCallback.Error()))
		}
		onSuccess, okSuccess := goja.AssertFunction(obj.Get("onSuccess"))
		onError, okError := goja.AssertFunction(obj.Get("onError"))
		if !okSuccess || !okError {
			panic(rt.NewTypeError(proj.ErrMissingCallback.Error()))
		}

		opts := proj.Options{
			WASMBinary: exportValue(obj.Get("wasmBinary")),
			ProjDB:     exportValue(obj.Get("projDb")),
			ProjINI:    exportValue(obj.Get("projIni")),
			ProjGrids:  exportGrids(rt, obj.Get("projGrids")),
		}
		if v := obj.Get("baseUrl"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
			opts.BaseURL = v.String()
		}
		if locate, ok := goja.AssertFunction(obj.Get("locateFile")); ok {
			// Loading runs off the loop, so names are resolved now.
			opts.LocateFile = resolveLocations(rt, locate)
		}

		// The loop must not exit while loading is in flight.
		keepAlive := b.loop.SetInterval(func(*goja.Runtime) {}, time.Hour)
		opts.OnSuccess = func(p *proj.Proj) {
			b.loop.RunOnLoop(func(rt *goja.Runtime) {
				defer b.loop.ClearInterval(keepAlive)
				if _, err := onSuccess(goja.Undefined(), newHandle(b.ctx, rt, p)); err != nil {
					proj.Logger().Warn("onSuccess threw", zap.Error(err))
				}
			})
		}
		opts.OnError = func(err error) {
			b.loop.RunOnLoop(func(rt *goja.Runtime) {
				defer b.loop.ClearInterval(keepAlive)
				if _, jsErr := onError(goja.Undefined(), rt.NewGoError(err)); jsErr != nil {
					proj.Logger().Warn("onError threw", zap.Error(jsErr))
				}
			})
		}

		if err := b.loader.Initialize(b.ctx, opts); err != nil {
			b.loop.ClearInterval(keepAlive)
			panic(rt.NewGoError(err))
		}
		return goja.Undefined()
	}
}

// exportValue returns the Go form of a buffer-like option, nil when absent.
func exportValue(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

func exportGrids(rt *goja.Runtime, v goja.Value) map[string]any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	obj := v.ToObject(rt)
	keys := obj.Keys()
	if len(keys) == 0 {
		return nil
	}
	grids := make(map[string]any, len(keys))
	for _, k := range keys {
		grids[k] = exportValue(obj.Get(k))
	}
	return grids
}

// resolveLocations calls locate for each co-located asset.
func resolveLocations(rt *goja.Runtime, locate goja.Callable) func(string) string {
	urls := map[string]string{}
	for _, name := range []string{projwasm.WASMFilename, projwasm.DatabaseFilename, projwasm.ConfigFilename} {
		v, err := locate(goja.Undefined(), rt.ToValue(name))
		if err != nil {
			panic(err)
		}
		urls[name] = v.String()
	}
	return func(name string) string {
		if u, ok := urls[name]; ok {
			return u
		}
		return name
	}
}
