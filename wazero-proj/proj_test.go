package proj

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"

	projwasm "github.com/aperturerobotics/go-proj-wasm"
	"github.com/aperturerobotics/go-proj-wasm/internal/fakeproj"
	"github.com/tetratelabs/wazero"
)

func newFakeProj(t *testing.T, ctx context.Context) *Proj {
	t.Helper()
	r := wazero.NewRuntime(ctx)
	p, err := NewProj(ctx, r, fakeproj.Module(), wazero.NewModuleConfig(), nil)
	if err != nil {
		_ = r.Close(ctx)
		t.Fatal("NewProj:", err)
	}
	t.Cleanup(func() { _ = p.Close(ctx) })
	return p
}

func TestProjMemoryHelpers(t *testing.T) {
	ctx := context.Background()
	p := newFakeProj(t, ctx)

	ptr, err := p.allocString(ctx, "EPSG:4326")
	if err != nil {
		t.Fatal("allocString:", err)
	}
	if got := p.readCString(ptr); got != "EPSG:4326" {
		t.Fatalf("expected EPSG:4326, got %q", got)
	}
	p.freePtr(ctx, ptr)

	list := p.readStringList(fakeproj.ListPtr)
	if len(list) != 2 || list[0] != "EPSG" || list[1] != "ESRI" {
		t.Fatalf("unexpected string list %v", list)
	}
}

func TestProjCalls(t *testing.T) {
	ctx := context.Background()
	p := newFakeProj(t, ctx)

	c, err := p.ContextCreate(ctx)
	if err != nil {
		t.Fatal("ContextCreate:", err)
	}
	if c != fakeproj.Context {
		t.Fatalf("expected context %d, got %d", fakeproj.Context, c)
	}

	authorities, err := p.Authorities(ctx, c)
	if err != nil {
		t.Fatal("Authorities:", err)
	}
	if len(authorities) == 0 || authorities[0] != "EPSG" {
		t.Fatalf("expected EPSG first, got %v", authorities)
	}

	// The stub returns a null PJ for every pair.
	pj, err := p.CreateCRSToCRS(ctx, c, "INVALID:999999", "EPSG:4326")
	if pj != 0 {
		t.Fatalf("expected a null handle, got %d", pj)
	}
	var crsErr *CRSError
	if !errors.As(err, &crsErr) {
		t.Fatalf("expected *CRSError, got %v", err)
	}
	if crsErr.Errno != fakeproj.Errno {
		t.Fatalf("expected errno %d, got %d", fakeproj.Errno, crsErr.Errno)
	}
	if !strings.Contains(err.Error(), "INVALID:999999") {
		t.Fatalf("expected the error to name the identifier, got %q", err)
	}

	// Optional exports missing from the binary fail by name.
	if _, err := p.Codes(ctx, c, "EPSG", TypeCRS, false); err == nil || !strings.Contains(err.Error(), projwasm.ExportGetCodesFromDatabase) {
		t.Fatalf("expected a missing export error, got %v", err)
	}

	if err := p.ContextDestroy(ctx, c); err != nil {
		t.Fatal("ContextDestroy:", err)
	}
}

func TestCoordArray(t *testing.T) {
	ctx := context.Background()
	p := newFakeProj(t, ctx)

	arr, err := p.NewCoordArray(ctx, 2)
	if err != nil {
		t.Fatal("NewCoordArray:", err)
	}
	if err := arr.SetCoords([][]float64{{42.3603222, -71.0579667}, {1, 2, 3, 4}}); err != nil {
		t.Fatal("SetCoords:", err)
	}
	if err := arr.SetCol(2, []float64{10}); err != nil {
		t.Fatal("SetCol:", err)
	}
	if err := p.TransArray(ctx, 1, DirectionForward, arr); err != nil {
		t.Fatal("TransArray:", err)
	}
	coords, err := arr.Coords()
	if err != nil {
		t.Fatal("Coords:", err)
	}
	want := []Coord{{42.3603222, -71.0579667, 10, 0}, {1, 2, 3, 4}}
	for i := range want {
		if coords[i] != want[i] {
			t.Fatalf("coordinate %d: expected %v, got %v", i, want[i], coords[i])
		}
	}

	if err := arr.SetCoords(make([][]float64, 3)); err == nil {
		t.Fatal("expected too many coordinates to fail")
	}
	if err := arr.SetCoord(0, []float64{1, 2, 3, 4, 5}); err == nil {
		t.Fatal("expected five values to fail")
	}

	arr.Free(ctx)
	if _, err := arr.Coords(); err == nil {
		t.Fatal("expected use after free to fail")
	}
}

func TestCoordArrayTooLarge(t *testing.T) {
	ctx := context.Background()
	p := newFakeProj(t, ctx)

	ptr, err := p.allocString(ctx, "EPSG:4326")
	if err != nil {
		t.Fatal("allocString:", err)
	}

	// 1<<27 coordinates of 32 bytes wrap a 32-bit size to zero.
	for _, n := range []int{1 << 27, maxCoords + 1} {
		if arr, err := p.NewCoordArray(ctx, n); err == nil {
			_ = arr.SetCoord(0, []float64{1, 2, 3, 4})
			t.Fatalf("expected %d coordinates to be rejected", n)
		}
	}
	if got := p.readCString(ptr); got != "EPSG:4326" {
		t.Fatalf("neighbouring allocation changed to %q", got)
	}
}

func TestReleasingScope(t *testing.T) {
	ctx := context.Background()
	p := newFakeProj(t, ctx)

	var arr *CoordArray
	err := p.Releasing(ctx, func(s *Scope) error {
		c, err := s.ContextCreate()
		if err != nil {
			return err
		}
		if _, err := s.CreateCRSToCRS(c, "INVALID:1", "EPSG:4326"); err == nil {
			t.Error("expected the stub to reject the pair")
		}
		arr, err = s.NewCoordArray(1)
		return err
	})
	if err != nil {
		t.Fatal("Releasing:", err)
	}
	if arr.Pointer() != 0 {
		t.Fatal("expected the scope to free the coordinate array")
	}

	_, err = p.Transform(ctx, "INVALID:1", "EPSG:4326", DirectionForward, [][]float64{{0, 0}})
	var crsErr *CRSError
	if !errors.As(err, &crsErr) {
		t.Fatalf("expected Transform to surface *CRSError, got %v", err)
	}
}

func TestNewProjMissingExport(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	_, err := NewProj(ctx, r, fakeproj.Build(fakeproj.Without(projwasm.ExportTransArray)), wazero.NewModuleConfig(), nil)
	if err == nil || err.Error() != "missing export: "+projwasm.ExportTransArray {
		t.Fatalf("expected missing export error, got %v", err)
	}
}

func TestProjClosed(t *testing.T) {
	ctx := context.Background()
	p := newFakeProj(t, ctx)
	if err := p.Close(ctx); err != nil {
		t.Fatal("Close:", err)
	}
	if _, err := p.ContextCreate(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := p.Close(ctx); err != nil {
		t.Fatal("second Close:", err)
	}
}

func TestInstantiateInstallsResources(t *testing.T) {
	ctx := context.Background()
	l := NewLoader(WithAcquire(func(ctx context.Context, opts *Options) (*Resources, error) {
		return &Resources{
			WASM:     fakeproj.Module(),
			Database: []byte("SQLite format 3\x00"),
			Config:   projwasm.DefaultConfig,
			Grids: map[string][]byte{
				"us_noaa_conus.tif": {1, 2, 3},
				"../escape.tif":     {4},
			},
		}, nil
	}))

	p, err := l.Load(ctx, Options{})
	if err != nil {
		t.Fatal("Load:", err)
	}
	defer p.Close(ctx)

	guest := p.FS().FS()
	db, err := fs.ReadFile(guest, "proj/proj.db")
	if err != nil {
		t.Fatal("read proj.db:", err)
	}
	if string(db) != "SQLite format 3\x00" {
		t.Fatalf("unexpected proj.db contents %q", db)
	}
	ini, err := fs.ReadFile(guest, "proj/proj.ini")
	if err != nil {
		t.Fatal("read proj.ini:", err)
	}
	if string(ini) != projwasm.DefaultConfig {
		t.Fatal("unexpected proj.ini contents")
	}

	entries, err := fs.ReadDir(guest, "proj/grids")
	if err != nil {
		t.Fatal("read grids:", err)
	}
	if len(entries) != 1 || entries[0].Name() != "us_noaa_conus.tif" {
		t.Fatalf("expected only the valid grid, got %v", entries)
	}

	f, err := guest.Open("proj/grids/us_noaa_conus.tif")
	if err != nil {
		t.Fatal("open grid:", err)
	}
	defer f.Close()
	ra, ok := f.(io.ReaderAt)
	if !ok {
		t.Fatal("expected mounted files to implement io.ReaderAt")
	}
	buf := make([]byte, 2)
	if _, err := ra.ReadAt(buf, 1); err != nil {
		t.Fatal("ReadAt:", err)
	}
	if buf[0] != 2 || buf[1] != 3 {
		t.Fatalf("unexpected ReadAt result %v", buf)
	}

	if _, err := guest.Open("proj/missing.db"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestInstallGridPolicy(t *testing.T) {
	res := &Resources{
		Database: []byte{1},
		Grids: map[string][]byte{
			"good.tif":   {1},
			"nested/bad": {2},
			"empty.tif":  nil,
		},
	}

	vfs := NewVirtualFS()
	if err := vfs.Install(res, GridBestEffort); err != nil {
		t.Fatal("best effort Install:", err)
	}
	if _, err := vfs.ReadFile("proj/grids/good.tif"); err != nil {
		t.Fatal("expected good.tif to be written:", err)
	}

	if err := NewVirtualFS().Install(res, GridStrict); err == nil {
		t.Fatal("expected strict Install to fail on a bad grid")
	}
}
