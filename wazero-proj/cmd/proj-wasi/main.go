// Command proj-wasi transforms coordinates with PROJ running in a WASI WASM
// runtime.
//
// Usage:
//
//	proj-wasi transform EPSG:4326 EPSG:2249 42.3603222,-71.0579667
//	proj-wasi authorities
//	proj-wasi codes EPSG --type=projected
//	proj-wasi inspect proj.db
//
// proj.wasm, proj.db and proj.ini are read from --resource-dir (or
// $PROJ_WASM_DIR), or fetched relative to --base-url.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/aperturerobotics/go-proj-wasm/projdb"
	proj "github.com/aperturerobotics/go-proj-wasm/wazero-proj"
	"go.uber.org/zap"
)

// Globals are flags shared by every command.
type Globals struct {
	ResourceDir string `name:"resource-dir" env:"PROJ_WASM_DIR" help:"Directory holding proj.wasm, proj.db and proj.ini."`
	BaseURL     string `name:"base-url" help:"Fetch resources relative to this URL instead of reading them from disk."`
	CacheDir    string `name:"cache-dir" help:"Directory for the wazero compilation cache."`
	GridStrict  bool   `name:"grid-strict" help:"Fail when a grid file cannot be installed."`
	Verbose     bool   `name:"verbose" short:"v" help:"Log engine initialization."`
}

// load initializes the engine from the global flags.
func (g *Globals) load(ctx context.Context) (*proj.Proj, error) {
	opts := proj.Options{
		Environment: proj.EnvironmentServer,
		ResourceDir: g.ResourceDir,
		CacheDir:    g.CacheDir,
		Stderr:      os.Stderr,
		Validate:    projdb.ValidateResources,
	}
	if g.BaseURL != "" {
		opts.Environment = proj.EnvironmentBrowser
		opts.BaseURL = g.BaseURL
	}
	if g.GridStrict {
		opts.GridPolicy = proj.GridStrict
	}
	return proj.Load(ctx, opts)
}

type cli struct {
	Globals

	Transform   transformCmd   `cmd:"" help:"Transform coordinates between two CRS."`
	Authorities authoritiesCmd `cmd:"" help:"List the authorities in proj.db."`
	Codes       codesCmd       `cmd:"" help:"List the codes of an authority."`
	Inspect     inspectCmd     `cmd:"" help:"Show the metadata of a proj.db file."`
}

type transformCmd struct {
	Source  string   `arg:"" help:"Source CRS, e.g. EPSG:4326."`
	Target  string   `arg:"" help:"Target CRS."`
	Coords  []string `arg:"" help:"Coordinates as comma-separated values, up to four each."`
	Inverse bool     `help:"Run the transformation backwards."`
}

func (c *transformCmd) Run(ctx context.Context, g *Globals) error {
	coords := make([][]float64, 0, len(c.Coords))
	for _, s := range c.Coords {
		coord, err := parseCoord(s)
		if err != nil {
			return err
		}
		coords = append(coords, coord)
	}

	p, err := g.load(ctx)
	if err != nil {
		return err
	}
	dir := proj.DirectionForward
	if c.Inverse {
		dir = proj.DirectionInverse
	}
	out, err := p.Transform(ctx, c.Source, c.Target, dir, coords)
	if err != nil {
		return err
	}
	for _, coord := range out {
		fmt.Printf("%.6f\t%.6f\t%.6f\t%.6f\n", coord[0], coord[1], coord[2], coord[3])
	}
	return nil
}

func parseCoord(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) > 4 {
		return nil, fmt.Errorf("coordinate %q has more than four values", s)
	}
	coord := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("coordinate %q: %w", s, err)
		}
		coord[i] = v
	}
	return coord, nil
}

type authoritiesCmd struct{}

func (c *authoritiesCmd) Run(ctx context.Context, g *Globals) error {
	p, err := g.load(ctx)
	if err != nil {
		return err
	}
	return p.Releasing(ctx, func(s *proj.Scope) error {
		pc, err := s.ContextCreate()
		if err != nil {
			return err
		}
		authorities, err := p.Authorities(ctx, pc)
		if err != nil {
			return err
		}
		for _, a := range authorities {
			fmt.Println(a)
		}
		return nil
	})
}

var codeTypes = map[string]proj.Type{
	"crs":           proj.TypeCRS,
	"geodetic":      proj.TypeGeodeticCRS,
	"geocentric":    proj.TypeGeocentricCRS,
	"geographic":    proj.TypeGeographicCRS,
	"geographic-2d": proj.TypeGeographic2DCRS,
	"geographic-3d": proj.TypeGeographic3DCRS,
	"vertical":      proj.TypeVerticalCRS,
	"projected":     proj.TypeProjectedCRS,
	"compound":      proj.TypeCompoundCRS,
	"ellipsoid":     proj.TypeEllipsoid,
	"any":           proj.TypeUnknown,
}

type codesCmd struct {
	Authority  string `arg:"" help:"Authority name, e.g. EPSG."`
	Type       string `default:"crs" enum:"crs,geodetic,geocentric,geographic,geographic-2d,geographic-3d,vertical,projected,compound,ellipsoid,any" help:"Object type filter."`
	Deprecated bool   `help:"Include deprecated codes."`
}

func (c *codesCmd) Run(ctx context.Context, g *Globals) error {
	p, err := g.load(ctx)
	if err != nil {
		return err
	}
	return p.Releasing(ctx, func(s *proj.Scope) error {
		pc, err := s.ContextCreate()
		if err != nil {
			return err
		}
		codes, err := p.Codes(ctx, pc, c.Authority, codeTypes[c.Type], c.Deprecated)
		if err != nil {
			return err
		}
		for _, code := range codes {
			fmt.Println(c.Authority + ":" + code)
		}
		return nil
	})
}

type inspectCmd struct {
	DB string `arg:"" type:"existingfile" help:"Path to proj.db."`
}

func (c *inspectCmd) Run(ctx context.Context) error {
	blob, err := os.ReadFile(c.DB)
	if err != nil {
		return err
	}
	md, err := projdb.Inspect(ctx, blob)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(md.Entries))
	for k := range md.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s\t%s\n", k, md.Entries[k])
	}
	return nil
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("proj-wasi"),
		kong.Description("PROJ coordinate transformations in a WASI WASM runtime."),
		kong.UsageOnError(),
	)
	kctx.FatalIfErrorf(run(kctx, &c))
}

// run executes the selected command. The logger is flushed before returning
// so nothing is lost when main exits on error.
func run(kctx *kong.Context, c *cli) error {
	if c.Verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck
		proj.SetLogger(logger)
		defer proj.SetLogger(nil)
	}

	ctx := context.Background()
	kctx.BindTo(ctx, (*context.Context)(nil))
	return kctx.Run(&c.Globals)
}
