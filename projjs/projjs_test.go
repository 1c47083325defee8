package projjs

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	projwasm "github.com/aperturerobotics/go-proj-wasm"
	"github.com/aperturerobotics/go-proj-wasm/internal/fakeproj"
	proj "github.com/aperturerobotics/go-proj-wasm/wazero-proj"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	testify "github.com/stretchr/testify/require"
)

type fakeEngine struct {
	acquired     atomic.Int32
	instantiated atomic.Int32
	acquireErr   error
	seen         chan *proj.Options
}

func (f *fakeEngine) loader() *proj.Loader {
	return proj.NewLoader(
		proj.WithAcquire(func(ctx context.Context, opts *proj.Options) (*proj.Resources, error) {
			f.acquired.Add(1)
			if f.seen != nil {
				f.seen <- opts
			}
			if f.acquireErr != nil {
				return nil, f.acquireErr
			}
			return &proj.Resources{WASM: []byte{0}}, nil
		}),
		proj.WithInstantiate(func(ctx context.Context, res *proj.Resources, opts *proj.Options) (*proj.Proj, error) {
			f.instantiated.Add(1)
			return &proj.Proj{}, nil
		}),
	)
}

// runScript runs script on a started loop with report(value) wired to the
// returned channel.
func runScript(t *testing.T, loader *proj.Loader, script string) <-chan goja.Value {
	t.Helper()
	reg := require.NewRegistry()
	loop := eventloop.NewEventLoop(eventloop.WithRegistry(reg), eventloop.EnableConsole(false))
	New(context.Background(), loop, loader).Register(reg)

	results := make(chan goja.Value, 8)
	loop.Start()
	t.Cleanup(func() { loop.Stop() })

	loop.RunOnLoop(func(rt *goja.Runtime) {
		rt.Set("report", func(v goja.Value) { results <- v })
		if _, err := rt.RunString(script); err != nil {
			results <- rt.ToValue("script error: " + err.Error())
		}
	})
	return results
}

func next(t *testing.T, ch <-chan goja.Value) goja.Value {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the script")
		return nil
	}
}

func TestInitializeSuccess(t *testing.T) {
	f := &fakeEngine{seen: make(chan *proj.Options, 1)}
	results := runScript(t, f.loader(), `
		const proj = require("@proj/wasm");
		proj.initialize({
			projDb: new Uint8Array([83, 81, 76]),
			projGrids: {"us_noaa_conus.tif": [1, -1, 255]},
			locateFile: (name) => "https://cdn.example.com/assets/" + name,
			onSuccess: (p) => report([p.PJ_FWD, p.PJ_INV, p.PJ_IDENT, typeof p.createCrsToCrs, typeof p.transArray].join(",")),
			onError: (err) => report("error: " + err),
		});
	`)

	testify.Equal(t, "1,-1,0,function,function", next(t, results).String())

	opts := <-f.seen
	db, err := proj.ToBytes(opts.ProjDB)
	testify.NoError(t, err)
	testify.Equal(t, []byte("SQL"), db)

	grid, err := proj.ToBytes(opts.ProjGrids["us_noaa_conus.tif"])
	testify.NoError(t, err)
	testify.Equal(t, []byte{1, 255, 255}, grid)

	testify.NotNil(t, opts.LocateFile)
	testify.Equal(t, "https://cdn.example.com/assets/proj.db", opts.LocateFile("proj.db"))
	testify.Equal(t, "other.bin", opts.LocateFile("other.bin"))
}

func TestInitializeMissingCallbacks(t *testing.T) {
	f := &fakeEngine{}
	results := runScript(t, f.loader(), `
		const proj = require("@proj/wasm");
		for (const opts of [undefined, {onSuccess: () => {}}, {onError: () => {}}]) {
			try {
				proj.initialize(opts);
				report("no error");
			} catch (e) {
				report(e instanceof TypeError);
			}
		}
	`)

	for i := 0; i < 3; i++ {
		testify.True(t, next(t, results).ToBoolean(), "case %d", i)
	}
	testify.Zero(t, f.acquired.Load())
}

func TestInitializeError(t *testing.T) {
	f := &fakeEngine{acquireErr: errors.New("proj.db unreachable")}
	results := runScript(t, f.loader(), `
		const proj = require("@proj/wasm");
		proj.initialize({
			onSuccess: () => report("unexpected success"),
			onError: (err) => report(String(err)),
		});
	`)

	testify.Contains(t, next(t, results).String(), "proj.db unreachable")
}

func TestInitializeCached(t *testing.T) {
	f := &fakeEngine{}
	loader := f.loader()
	script := `
		require("@proj/wasm").initialize({
			projDb: "db",
			onSuccess: () => report("ok"),
			onError: (err) => report("error: " + err),
		});
	`
	// Separate loops share one loader and so one engine.
	for i := 0; i < 2; i++ {
		testify.Equal(t, "ok", next(t, runScript(t, loader, script)).String())
	}
	testify.Equal(t, int32(1), f.acquired.Load())
	testify.Equal(t, int32(1), f.instantiated.Load())
	testify.Equal(t, proj.StateReady, loader.State())
}

func TestHandleMethods(t *testing.T) {
	ctx := context.Background()
	loader := proj.NewLoader(proj.WithAcquire(func(ctx context.Context, opts *proj.Options) (*proj.Resources, error) {
		return &proj.Resources{
			WASM:     fakeproj.Module(),
			Database: []byte("SQLite format 3\x00"),
			Config:   projwasm.DefaultConfig,
		}, nil
	}))
	t.Cleanup(func() {
		if p, err := loader.Load(ctx, proj.Options{}); err == nil {
			_ = p.Close(ctx)
		}
	})

	results := runScript(t, loader, `
		require("@proj/wasm").initialize({
			onSuccess: (p) => {
				const out = [];
				const c = p.contextCreate();
				out.push(String(c));
				out.push(p.getAuthoritiesFromDatabase(c)[0]);
				try {
					p.createCrsToCrs(c, "INVALID:999999", "EPSG:4326");
					out.push("created");
				} catch (e) {
					out.push(String(e));
				}

				const arr = p.coordArray(2);
				p.setCoords(arr, [[42.5, -71.25], [1, 2, 3, 4]]);
				p.transArray(7, p.PJ_FWD, arr);
				const coords = p.getCoords(arr);
				out.push([coords[0][0], coords[0][1], coords[0][2], coords[1][3]].join(","));

				p.destroy(7);
				p.destroy(arr);
				try {
					p.getCoords(arr);
					out.push("still readable");
				} catch (e) {
					out.push(String(e));
				}
				p.contextDestroy(c);
				report(out.join("|"));
			},
			onError: (err) => report("error: " + err),
		});
	`)

	parts := strings.Split(next(t, results).String(), "|")
	testify.Len(t, parts, 5, "got %v", parts)
	testify.Equal(t, "16", parts[0])
	testify.Equal(t, "EPSG", parts[1])
	testify.Contains(t, parts[2], "INVALID:999999")
	testify.Equal(t, "42.5,-71.25,0,4", parts[3])
	testify.Contains(t, parts[4], "freed")
}
