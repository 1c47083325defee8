package proj

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// State is the initialization state of a Loader.
type State int32

const (
	// StateUninitialized has no engine. Initialize starts loading.
	StateUninitialized State = iota
	// StateLoading is acquiring resources or instantiating.
	StateLoading
	// StateReady holds the cached engine. It is terminal.
	StateReady
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// AcquireFunc obtains resources for an initialization.
type AcquireFunc func(ctx context.Context, opts *Options) (*Resources, error)

// InstantiateFunc builds an engine from acquired resources.
type InstantiateFunc func(ctx context.Context, res *Resources, opts *Options) (*Proj, error)

// Loader initializes and caches a single engine.
//
// Concurrent initializations join the load in flight and receive the same
// engine. The options of the call that started the load are the ones used.
type Loader struct {
	mu     sync.Mutex
	state  State
	cached *Proj
	group  singleflight.Group

	acquire     AcquireFunc
	instantiate InstantiateFunc
}

// LoaderOption configures a Loader.
type LoaderOption func(l *Loader)

// WithAcquire replaces resource acquisition.
func WithAcquire(fn AcquireFunc) LoaderOption {
	return func(l *Loader) { l.acquire = fn }
}

// WithInstantiate replaces engine instantiation.
func WithInstantiate(fn InstantiateFunc) LoaderOption {
	return func(l *Loader) { l.instantiate = fn }
}

// NewLoader creates a Loader in StateUninitialized.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		acquire:     LoadResources,
		instantiate: Instantiate,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var defaultLoader = NewLoader()

// DefaultLoader returns the process-wide Loader.
func DefaultLoader() *Loader {
	return defaultLoader
}

// Initialize initializes the process-wide engine. See Loader.Initialize.
func Initialize(ctx context.Context, opts Options) error {
	return defaultLoader.Initialize(ctx, opts)
}

// Load initializes the process-wide engine and waits. See Loader.Load.
func Load(ctx context.Context, opts Options) (*Proj, error) {
	return defaultLoader.Load(ctx, opts)
}

// State returns the current state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Initialize starts loading the engine and reports the result to exactly one
// of opts.OnSuccess or opts.OnError.
//
// A missing continuation is returned synchronously before any work starts.
// When an engine is cached, OnSuccess runs before Initialize returns.
// Otherwise loading runs on its own goroutine. A failed load leaves the
// Loader uninitialized; there are no retries.
func (l *Loader) Initialize(ctx context.Context, opts Options) error {
	if opts.OnSuccess == nil || opts.OnError == nil {
		return ErrMissingCallback
	}

	l.mu.Lock()
	if l.state == StateReady {
		p := l.cached
		l.mu.Unlock()
		Logger().Debug("engine already initialized, using cached instance")
		opts.OnSuccess(p)
		return nil
	}
	l.state = StateLoading
	l.mu.Unlock()

	go func() {
		res := <-l.group.DoChan("engine", func() (any, error) {
			return l.load(ctx, &opts)
		})
		if res.Err != nil {
			opts.OnError(res.Err)
			return
		}
		opts.OnSuccess(res.Val.(*Proj))
	}()
	return nil
}

// Load is the blocking form of Initialize. OnSuccess and OnError in opts are
// replaced.
func (l *Loader) Load(ctx context.Context, opts Options) (*Proj, error) {
	type result struct {
		p   *Proj
		err error
	}
	ch := make(chan result, 1)
	opts.OnSuccess = func(p *Proj) { ch <- result{p: p} }
	opts.OnError = func(err error) { ch <- result{err: err} }

	if err := l.Initialize(ctx, opts); err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.p, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// load runs one loading sequence and updates the cache.
func (l *Loader) load(ctx context.Context, opts *Options) (p *Proj, err error) {
	l.mu.Lock()
	if l.state == StateReady {
		p = l.cached
		l.mu.Unlock()
		return p, nil
	}
	l.state = StateLoading
	l.mu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("proj initialization panicked: %v", r)
		}

		l.mu.Lock()
		defer l.mu.Unlock()
		if err != nil {
			if l.state != StateReady {
				l.state = StateUninitialized
			}
			Logger().Error("proj initialization failed", zap.Error(err))
			return
		}
		l.cached = p
		l.state = StateReady
		Logger().Info("proj engine ready", zap.Duration("elapsed", time.Since(start)))
	}()

	res, err := l.acquire(ctx, opts)
	if err != nil {
		return nil, err
	}
	return l.instantiate(ctx, res, opts)
}

// Instantiate creates a wazero runtime, instantiates the engine and, once the
// reactor is initialized, installs the resources into its filesystem.
// Everything is released on failure.
func Instantiate(ctx context.Context, res *Resources, opts *Options) (*Proj, error) {
	cfg := opts.RuntimeConfig
	if cfg == nil {
		cfg = wazero.NewRuntimeConfig()
	}
	if opts.CacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(opts.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("compilation cache: %w", err)
		}
		cfg = cfg.WithCompilationCache(cache)
	}
	r := wazero.NewRuntimeWithConfig(ctx, cfg)

	config := wazero.NewModuleConfig()
	if opts.Stdout != nil {
		config = config.WithStdout(opts.Stdout)
	}
	if opts.Stderr != nil {
		config = config.WithStderr(opts.Stderr)
	}

	vfs := NewVirtualFS()
	p, err := NewProj(ctx, r, res.WASM, config, vfs)
	if err != nil {
		_ = r.Close(ctx)
		return nil, err
	}
	Logger().Debug("engine instantiated, installing resources",
		zap.Int("database_size", len(res.Database)),
		zap.Int("grids", len(res.Grids)))

	if err := vfs.Install(res, opts.GridPolicy); err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	return p, nil
}
