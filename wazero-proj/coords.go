package proj

import (
	"context"
	"errors"
	"fmt"
	"math"

	projwasm "github.com/aperturerobotics/go-proj-wasm"
)

// Coord is a PJ_COORD: x, y, z, t.
type Coord [4]float64

// maxCoords is the largest coordinate count addressable by the engine.
const maxCoords = math.MaxUint32 / projwasm.CoordSize

// CoordArray is a buffer of N PJ_COORD values in guest memory.
type CoordArray struct {
	p   *Proj
	ptr uint32
	n   int
}

// NewCoordArray allocates a zeroed buffer for n coordinates.
func (p *Proj) NewCoordArray(ctx context.Context, n int) (*CoordArray, error) {
	if n <= 0 {
		return nil, fmt.Errorf("coordinate count must be positive, got %d", n)
	}
	// The byte size must fit the i32 argument of malloc.
	if uint64(n) > maxCoords {
		return nil, fmt.Errorf("coordinate count %d exceeds the 32-bit address space", n)
	}
	if err := p.lock(); err != nil {
		return nil, err
	}
	defer p.mu.Unlock()

	size := uint32(n * projwasm.CoordSize)
	results, err := p.malloc.Call(ctx, uint64(size))
	if err != nil {
		return nil, err
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return nil, errors.New("malloc returned null for coordinate array")
	}
	if !p.mod.Memory().Write(ptr, make([]byte, size)) {
		p.freePtr(ctx, ptr)
		return nil, errors.New("coordinate array out of memory range")
	}
	return &CoordArray{p: p, ptr: ptr, n: n}, nil
}

// Len returns the number of coordinates.
func (a *CoordArray) Len() int {
	return a.n
}

// Pointer returns the guest address of the first coordinate.
func (a *CoordArray) Pointer() uint32 {
	return a.ptr
}

// SetCoords writes coords starting at index 0.
// Each coordinate has 1 to 4 values; missing values are zero.
func (a *CoordArray) SetCoords(coords [][]float64) error {
	if len(coords) > a.n {
		return fmt.Errorf("%d coordinates do not fit in an array of %d", len(coords), a.n)
	}
	for i, c := range coords {
		if err := a.SetCoord(i, c); err != nil {
			return err
		}
	}
	return nil
}

// SetCoord writes one coordinate, padding to four values with zeros.
func (a *CoordArray) SetCoord(i int, values []float64) error {
	if len(values) > 4 {
		return fmt.Errorf("coordinate %d has %d values, at most 4 allowed", i, len(values))
	}
	var c Coord
	copy(c[:], values)
	for col, v := range c {
		if err := a.set(i, col, v); err != nil {
			return err
		}
	}
	return nil
}

// SetCol writes one column (0=x, 1=y, 2=z, 3=t) for the first len(values)
// coordinates.
func (a *CoordArray) SetCol(col int, values []float64) error {
	if col < 0 || col > 3 {
		return fmt.Errorf("column %d out of range", col)
	}
	if len(values) > a.n {
		return fmt.Errorf("%d values do not fit in an array of %d", len(values), a.n)
	}
	for i, v := range values {
		if err := a.set(i, col, v); err != nil {
			return err
		}
	}
	return nil
}

// Coords reads every coordinate back.
func (a *CoordArray) Coords() ([]Coord, error) {
	if err := a.p.lock(); err != nil {
		return nil, err
	}
	defer a.p.mu.Unlock()

	if a.ptr == 0 {
		return nil, errors.New("coordinate array is freed")
	}
	mem := a.p.mod.Memory()
	out := make([]Coord, a.n)
	for i := range out {
		for col := range out[i] {
			bits, ok := mem.ReadUint64Le(a.offset(i, col))
			if !ok {
				return nil, errors.New("coordinate array out of memory range")
			}
			out[i][col] = math.Float64frombits(bits)
		}
	}
	return out, nil
}

// Free releases the buffer. Further use fails.
func (a *CoordArray) Free(ctx context.Context) {
	if a.ptr == 0 {
		return
	}
	if err := a.p.lock(); err != nil {
		return
	}
	defer a.p.mu.Unlock()
	a.p.freePtr(ctx, a.ptr)
	a.ptr = 0
}

func (a *CoordArray) offset(i, col int) uint32 {
	return a.ptr + uint32(i*projwasm.CoordSize+col*8)
}

func (a *CoordArray) set(i, col int, v float64) error {
	if i < 0 || i >= a.n {
		return fmt.Errorf("coordinate index %d out of range", i)
	}
	if err := a.p.lock(); err != nil {
		return err
	}
	defer a.p.mu.Unlock()

	if a.ptr == 0 {
		return errors.New("coordinate array is freed")
	}
	if !a.p.mod.Memory().WriteUint64Le(a.offset(i, col), math.Float64bits(v)) {
		return errors.New("coordinate array out of memory range")
	}
	return nil
}
