package proj

import (
	"io"
	"net/http"

	"github.com/tetratelabs/wazero"
)

// Options configure an initialization.
//
// Buffer-valued fields accept any shape understood by ToBytes.
type Options struct {
	// WASMBinary is the engine binary. It overrides the acquired one.
	WASMBinary any
	// ProjDB is the database. When set, the database comes from the options
	// regardless of the environment, which is then only asked for proj.wasm
	// when WASMBinary is nil.
	ProjDB any
	// ProjINI is the configuration text. It replaces the acquired proj.ini in
	// every environment. With ProjDB and no ProjINI the embedded proj.ini is
	// used.
	ProjINI any
	// ProjGrids maps grid file names to their contents.
	ProjGrids map[string]any

	// Environment overrides host detection when non-zero.
	Environment Environment
	// ResourceDir is where the server profile reads co-located files.
	// Defaults to the directory of the running executable.
	ResourceDir string
	// BaseURL is where the browser profile fetches co-located files.
	BaseURL string
	// LocateFile maps an asset name to a URL. Defaults to resolving the
	// name against BaseURL.
	LocateFile func(name string) string
	// HTTPClient fetches resources. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// RuntimeConfig configures the wazero runtime.
	RuntimeConfig wazero.RuntimeConfig
	// CacheDir enables wazero's on-disk compilation cache.
	CacheDir string
	// Stdout and Stderr receive engine output. Discarded when nil.
	Stdout io.Writer
	Stderr io.Writer

	// GridPolicy decides whether a bad grid file fails initialization.
	GridPolicy GridPolicy
	// Validate, if set, checks the acquired resources before instantiation.
	Validate func(res *Resources) error

	// OnSuccess receives the engine. Required.
	OnSuccess func(p *Proj)
	// OnError receives any initialization failure. Required.
	OnError func(err error)
}
