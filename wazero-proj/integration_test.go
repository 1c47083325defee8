package proj

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"
	"time"
)

// realEngine loads proj.wasm, proj.db and proj.ini from $PROJ_WASM_DIR.
func realEngine(t *testing.T) *Proj {
	t.Helper()
	dir := os.Getenv("PROJ_WASM_DIR")
	if dir == "" {
		t.Skip("PROJ_WASM_DIR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	l := NewLoader()
	p, err := l.Load(ctx, Options{Environment: EnvironmentServer, ResourceDir: dir})
	if err != nil {
		t.Fatal("Load:", err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	again, err := l.Load(ctx, Options{Environment: EnvironmentServer, ResourceDir: dir})
	if err != nil {
		t.Fatal("second Load:", err)
	}
	if again != p {
		t.Fatal("expected the cached engine")
	}
	return p
}

func TestRealEngineTransform(t *testing.T) {
	p := realEngine(t)
	ctx := context.Background()

	// Boston City Hall, WGS 84 to Massachusetts State Plane (US ft).
	coords, err := p.Transform(ctx, "EPSG:4326", "EPSG:2249", DirectionForward, [][]float64{{42.3603222, -71.0579667}})
	if err != nil {
		t.Fatal("Transform:", err)
	}
	x, y := coords[0][0], coords[0][1]
	if x < 775000 || x > 776000 || y < 2956000 || y > 2957000 {
		t.Fatalf("unexpected projected coordinate %f, %f", x, y)
	}
}

func TestRealEngineInvalidCRS(t *testing.T) {
	p := realEngine(t)
	ctx := context.Background()

	_, err := p.Transform(ctx, "INVALID:999999", "EPSG:4326", DirectionForward, [][]float64{{0, 0}})
	var crsErr *CRSError
	if !errors.As(err, &crsErr) {
		t.Fatalf("expected *CRSError, got %v", err)
	}
	if !slices.Contains(crsErr.Identifiers, "INVALID:999999") {
		t.Fatalf("expected the identifier in the error, got %v", crsErr.Identifiers)
	}
}

func TestRealEngineDatabase(t *testing.T) {
	p := realEngine(t)
	ctx := context.Background()

	err := p.Releasing(ctx, func(s *Scope) error {
		c, err := s.ContextCreate()
		if err != nil {
			return err
		}
		authorities, err := p.Authorities(ctx, c)
		if err != nil {
			return err
		}
		if !slices.Contains(authorities, "EPSG") {
			t.Errorf("expected EPSG among %v", authorities)
		}
		codes, err := p.Codes(ctx, c, "EPSG", TypeGeographic2DCRS, false)
		if err != nil {
			return err
		}
		if !slices.Contains(codes, "4326") {
			t.Error("expected EPSG:4326 among geographic 2D codes")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
