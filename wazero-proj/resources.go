package proj

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	projwasm "github.com/aperturerobotics/go-proj-wasm"
	"go.uber.org/zap"
)

// Resources are the files the engine needs before first use.
type Resources struct {
	// WASM is the engine binary.
	WASM []byte
	// Database is the proj.db blob.
	Database []byte
	// Config is the proj.ini text.
	Config string
	// Grids maps grid file names to their contents.
	Grids map[string][]byte
}

// acquireFunc obtains resources for one host profile.
type acquireFunc func(ctx context.Context, opts *Options) (*Resources, error)

// wasmFunc obtains only the engine binary for one host profile.
type wasmFunc func(ctx context.Context, opts *Options) ([]byte, error)

// strategyFor returns the acquisition strategies of a host profile.
func strategyFor(env Environment) (acquireFunc, wasmFunc) {
	switch env {
	case EnvironmentServer:
		return acquireFromDisk, wasmFromDisk
	case EnvironmentBrowser:
		return acquireOverHTTP, wasmOverHTTP
	default:
		return acquireNothing, wasmNothing
	}
}

// LoadResources obtains the engine binary, database, config and grids.
//
// Caller-supplied ProjDB takes precedence over the environment, which then
// only supplies proj.wasm unless WASMBinary is set. Otherwise the environment
// in opts (or the detected one) selects the strategy. WASMBinary, ProjINI and
// ProjGrids from opts always apply.
func LoadResources(ctx context.Context, opts *Options) (*Resources, error) {
	env := opts.Environment
	if env == 0 {
		env = DetectEnvironment()
	}
	acquire, acquireWASM := strategyFor(env)
	Logger().Debug("acquiring resources",
		zap.Stringer("environment", env),
		zap.Bool("caller_database", opts.ProjDB != nil))

	var (
		res *Resources
		err error
	)
	if opts.ProjDB != nil {
		res, err = acquireFromOptions(ctx, opts)
		if err == nil && opts.WASMBinary == nil {
			res.WASM, err = acquireWASM(ctx, opts)
		}
	} else {
		res, err = acquire(ctx, opts)
	}
	if err != nil {
		return nil, err
	}

	if opts.WASMBinary != nil {
		res.WASM, err = ToBytes(opts.WASMBinary)
		if err != nil {
			return nil, fmt.Errorf("wasmBinary: %w", err)
		}
	}
	if len(res.WASM) == 0 {
		return nil, fmt.Errorf("no %s available", projwasm.WASMFilename)
	}

	if opts.ProjINI != nil {
		b, err := ToBytes(opts.ProjINI)
		if err != nil {
			return nil, fmt.Errorf("projIni: %w", err)
		}
		res.Config = string(b)
	}

	if len(opts.ProjGrids) != 0 {
		res.Grids = make(map[string][]byte, len(opts.ProjGrids))
		for name, v := range opts.ProjGrids {
			b, err := ToBytes(v)
			if err != nil {
				// Left nil: the grid policy decides at install time.
				Logger().Warn("grid file is not a buffer",
					zap.String("name", name),
					zap.Error(err))
				res.Grids[name] = nil
				continue
			}
			res.Grids[name] = b
		}
	}

	if opts.Validate != nil {
		if err := opts.Validate(res); err != nil {
			return nil, fmt.Errorf("validate resources: %w", err)
		}
	}
	return res, nil
}

// acquireFromOptions uses the database the caller passed in with the default
// config. ProjINI is applied by LoadResources.
func acquireFromOptions(_ context.Context, opts *Options) (*Resources, error) {
	db, err := ToBytes(opts.ProjDB)
	if err != nil {
		return nil, fmt.Errorf("projDb: %w", err)
	}
	return &Resources{Database: db, Config: projwasm.DefaultConfig}, nil
}

// resourceDir is ResourceDir or the directory of the running executable.
func resourceDir(opts *Options) (string, error) {
	if opts.ResourceDir != "" {
		return opts.ResourceDir, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate resource dir: %w", err)
	}
	return filepath.Dir(exe), nil
}

// acquireFromDisk reads co-located files from the resource directory.
// The engine binary is optional here since WASMBinary may supply it.
func acquireFromDisk(ctx context.Context, opts *Options) (*Resources, error) {
	dir, err := resourceDir(opts)
	if err != nil {
		return nil, err
	}

	db, err := os.ReadFile(filepath.Join(dir, projwasm.DatabaseFilename))
	if err != nil {
		return nil, err
	}
	config, err := os.ReadFile(filepath.Join(dir, projwasm.ConfigFilename))
	if err != nil {
		return nil, err
	}
	res := &Resources{Database: db, Config: string(config)}

	if opts.WASMBinary == nil {
		res.WASM, err = wasmFromDisk(ctx, opts)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

func wasmFromDisk(_ context.Context, opts *Options) ([]byte, error) {
	dir, err := resourceDir(opts)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(dir, projwasm.WASMFilename))
}

// httpSource returns the locator and client of the browser profile.
func httpSource(opts *Options) (func(string) string, *http.Client, error) {
	locate := opts.LocateFile
	if locate == nil {
		if opts.BaseURL == "" {
			return nil, nil, fmt.Errorf("browser environment needs BaseURL or LocateFile")
		}
		var err error
		locate, err = baseURLLocator(opts.BaseURL)
		if err != nil {
			return nil, nil, err
		}
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return locate, client, nil
}

// acquireOverHTTP fetches co-located files relative to the base URL.
func acquireOverHTTP(ctx context.Context, opts *Options) (*Resources, error) {
	locate, client, err := httpSource(opts)
	if err != nil {
		return nil, err
	}

	db, err := fetch(ctx, client, locate(projwasm.DatabaseFilename))
	if err != nil {
		return nil, err
	}
	config, err := fetch(ctx, client, locate(projwasm.ConfigFilename))
	if err != nil {
		return nil, err
	}
	res := &Resources{Database: db, Config: string(config)}

	if opts.WASMBinary == nil {
		res.WASM, err = wasmOverHTTP(ctx, opts)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

func wasmOverHTTP(ctx context.Context, opts *Options) ([]byte, error) {
	locate, client, err := httpSource(opts)
	if err != nil {
		return nil, err
	}
	return fetch(ctx, client, locate(projwasm.WASMFilename))
}

func acquireNothing(context.Context, *Options) (*Resources, error) {
	return nil, ErrNoResources
}

// wasmNothing leaves the binary to WASMBinary.
func wasmNothing(context.Context, *Options) ([]byte, error) {
	return nil, nil
}

// baseURLLocator resolves asset names against base.
func baseURLLocator(base string) (func(string) string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return func(name string) string {
		return u.ResolveReference(&url.URL{Path: name}).String()
	}, nil
}

// fetch GETs a url and fails on any non-2xx status.
func fetch(ctx context.Context, client *http.Client, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	Logger().Debug("fetched resource", zap.String("url", u), zap.Int("size", len(body)))
	return body, nil
}
