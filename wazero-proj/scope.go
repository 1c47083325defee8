package proj

import (
	"context"

	"go.uber.org/zap"
)

// Scope tracks engine objects created through it so they can be released
// together. Objects are released in reverse creation order.
type Scope struct {
	p        *Proj
	ctx      context.Context
	releases []func()
}

// Releasing runs fn with a fresh Scope and releases everything created
// through it when fn returns, whether or not fn fails.
func (p *Proj) Releasing(ctx context.Context, fn func(s *Scope) error) error {
	s := &Scope{p: p, ctx: ctx}
	defer s.release()
	return fn(s)
}

func (s *Scope) track(release func()) {
	s.releases = append(s.releases, release)
}

func (s *Scope) release() {
	for i := len(s.releases) - 1; i >= 0; i-- {
		s.releases[i]()
	}
	s.releases = nil
}

// ContextCreate creates a context destroyed with the scope.
func (s *Scope) ContextCreate() (Context, error) {
	c, err := s.p.ContextCreate(s.ctx)
	if err != nil {
		return 0, err
	}
	s.track(func() {
		if err := s.p.ContextDestroy(s.ctx, c); err != nil {
			Logger().Debug("context destroy failed", zap.Uint32("context", uint32(c)), zap.Error(err))
		}
	})
	return c, nil
}

// trackPJ registers pj for destruction with the scope.
func (s *Scope) trackPJ(pj PJ, err error) (PJ, error) {
	if err != nil {
		return 0, err
	}
	s.track(func() {
		if err := s.p.Destroy(s.ctx, pj); err != nil {
			Logger().Debug("proj destroy failed", zap.Uint32("pj", uint32(pj)), zap.Error(err))
		}
	})
	return pj, nil
}

// Create is Proj.Create scoped.
func (s *Scope) Create(c Context, definition string) (PJ, error) {
	return s.trackPJ(s.p.Create(s.ctx, c, definition))
}

// CreateCRSToCRS is Proj.CreateCRSToCRS scoped.
func (s *Scope) CreateCRSToCRS(c Context, source, target string) (PJ, error) {
	return s.trackPJ(s.p.CreateCRSToCRS(s.ctx, c, source, target))
}

// CreateFromDatabase is Proj.CreateFromDatabase scoped.
func (s *Scope) CreateFromDatabase(c Context, authority, code string, category Category) (PJ, error) {
	return s.trackPJ(s.p.CreateFromDatabase(s.ctx, c, authority, code, category))
}

// NormalizeForVisualization is Proj.NormalizeForVisualization scoped.
func (s *Scope) NormalizeForVisualization(c Context, pj PJ) (PJ, error) {
	return s.trackPJ(s.p.NormalizeForVisualization(s.ctx, c, pj))
}

// NewCoordArray is Proj.NewCoordArray scoped.
func (s *Scope) NewCoordArray(n int) (*CoordArray, error) {
	arr, err := s.p.NewCoordArray(s.ctx, n)
	if err != nil {
		return nil, err
	}
	s.track(func() { arr.Free(s.ctx) })
	return arr, nil
}

// Transform converts coords from source to target in one call, creating and
// releasing every engine object it needs.
func (p *Proj) Transform(ctx context.Context, source, target string, dir Direction, coords [][]float64) ([]Coord, error) {
	var out []Coord
	err := p.Releasing(ctx, func(s *Scope) error {
		c, err := s.ContextCreate()
		if err != nil {
			return err
		}
		pj, err := s.CreateCRSToCRS(c, source, target)
		if err != nil {
			return err
		}
		arr, err := s.NewCoordArray(len(coords))
		if err != nil {
			return err
		}
		if err := arr.SetCoords(coords); err != nil {
			return err
		}
		if err := p.TransArray(ctx, pj, dir, arr); err != nil {
			return err
		}
		out, err = arr.Coords()
		return err
	})
	return out, err
}
