package projjs

import (
	"context"

	proj "github.com/aperturerobotics/go-proj-wasm/wazero-proj"
	"github.com/dop251/goja"
)

// newHandle builds the object passed to onSuccess.
// Contexts and PJ objects cross into scripts as numbers.
func newHandle(ctx context.Context, rt *goja.Runtime, p *proj.Proj) *goja.Object {
	h := rt.NewObject()

	h.Set("PJ_FWD", int(proj.DirectionForward))
	h.Set("PJ_IDENT", int(proj.DirectionIdentity))
	h.Set("PJ_INV", int(proj.DirectionInverse))
	h.Set("PJ_CATEGORY_CRS", int(proj.CategoryCRS))
	h.Set("PJ_TYPE_CRS", int(proj.TypeCRS))

	h.Set("contextCreate", func() (uint32, error) {
		c, err := p.ContextCreate(ctx)
		return uint32(c), err
	})
	h.Set("contextDestroy", func(c uint32) error {
		return p.ContextDestroy(ctx, proj.Context(c))
	})
	h.Set("contextErrno", func(c uint32) (int, error) {
		return p.ContextErrno(ctx, proj.Context(c))
	})
	h.Set("createCrsToCrs", func(c uint32, source, target string) (uint32, error) {
		pj, err := p.CreateCRSToCRS(ctx, proj.Context(c), source, target)
		return uint32(pj), err
	})
	h.Set("createFromDatabase", func(c uint32, authority, code string, category int32) (uint32, error) {
		pj, err := p.CreateFromDatabase(ctx, proj.Context(c), authority, code, proj.Category(category))
		return uint32(pj), err
	})
	h.Set("coordArray", func(n int) (*proj.CoordArray, error) {
		return p.NewCoordArray(ctx, n)
	})
	h.Set("setCoords", func(arr *proj.CoordArray, coords [][]float64) error {
		return arr.SetCoords(coords)
	})
	h.Set("getCoords", func(arr *proj.CoordArray) ([][]float64, error) {
		coords, err := arr.Coords()
		if err != nil {
			return nil, err
		}
		out := make([][]float64, len(coords))
		for i, c := range coords {
			out[i] = []float64{c[0], c[1], c[2], c[3]}
		}
		return out, nil
	})
	h.Set("transArray", func(pj uint32, dir int32, arr *proj.CoordArray) error {
		return p.TransArray(ctx, proj.PJ(pj), proj.Direction(dir), arr)
	})
	h.Set("getAuthoritiesFromDatabase", func(c uint32) ([]string, error) {
		return p.Authorities(ctx, proj.Context(c))
	})
	h.Set("getCodesFromDatabase", func(c uint32, authority string, typ int32, allowDeprecated bool) ([]string, error) {
		return p.Codes(ctx, proj.Context(c), authority, proj.Type(typ), allowDeprecated)
	})
	// destroy frees a PJ number or a coordinate array.
	h.Set("destroy", func(v goja.Value) error {
		if arr, ok := v.Export().(*proj.CoordArray); ok {
			arr.Free(ctx)
			return nil
		}
		return p.Destroy(ctx, proj.PJ(uint32(v.ToInteger())))
	})
	return h
}
