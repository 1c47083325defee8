// Package projwasm defines the file layout, export names and ABI constants of
// the PROJ WASI reactor build, and embeds the default engine configuration.
package projwasm

import _ "embed"

// DefaultConfig contains the default proj.ini text.
//
// It disables network grid access since the WASI build has no sockets.
// Grid files must be supplied to the loader instead.
//
//go:embed proj.ini
var DefaultConfig string

// Co-located asset filenames.
//
// The engine binary, database and configuration are distributed side by side
// and resolved relative to a single base directory or URL.
const (
	// WASMFilename is the filename of the engine binary.
	WASMFilename = "proj.wasm"

	// DatabaseFilename is the filename of the spatial-reference database.
	DatabaseFilename = "proj.db"

	// ConfigFilename is the filename of the engine configuration.
	ConfigFilename = "proj.ini"
)

// Virtual filesystem layout as seen by the engine.
const (
	// DataDir is the private resource directory, relative to the mount root.
	DataDir = "proj"

	// GridDir is the grid directory, nested in DataDir.
	GridDir = "grids"

	// GuestDataDir is DataDir as an absolute guest path.
	GuestDataDir = "/" + DataDir

	// GuestGridDir is GridDir as an absolute guest path.
	GuestGridDir = GuestDataDir + "/" + GridDir

	// GuestDatabasePath is the absolute guest path of proj.db.
	GuestDatabasePath = GuestDataDir + "/" + DatabaseFilename
)

// Memory management exports.
const (
	// ExportMalloc allocates memory in WASM linear memory.
	ExportMalloc = "malloc"

	// ExportFree frees memory in WASM linear memory.
	ExportFree = "free"
)

// Reactor startup export.
const (
	// ExportInitialize runs static constructors of the reactor.
	// Returning from it is the engine's runtime-ready signal.
	// Signature: _initialize() -> void
	ExportInitialize = "_initialize"
)

// Context exports.
const (
	// ExportContextCreate creates a threading context.
	// Signature: proj_context_create() -> i32 (PJ_CONTEXT*)
	ExportContextCreate = "proj_context_create"

	// ExportContextDestroy destroys a context.
	// Signature: proj_context_destroy(ctx: i32) -> void
	ExportContextDestroy = "proj_context_destroy"

	// ExportContextSetDatabasePath points a context at a database file.
	// Signature: proj_context_set_database_path(ctx: i32, path: i32, aux: i32, options: i32) -> i32
	// Returns: 1 on success, 0 on error.
	ExportContextSetDatabasePath = "proj_context_set_database_path"

	// ExportContextGetDatabasePath returns the database path of a context.
	// Signature: proj_context_get_database_path(ctx: i32) -> i32 (const char*)
	ExportContextGetDatabasePath = "proj_context_get_database_path"

	// ExportContextErrno returns the last error number of a context.
	// Signature: proj_context_errno(ctx: i32) -> i32
	ExportContextErrno = "proj_context_errno"

	// ExportContextErrnoString describes an error number.
	// Signature: proj_context_errno_string(ctx: i32, err: i32) -> i32 (const char*)
	ExportContextErrnoString = "proj_context_errno_string"
)

// Object construction exports.
const (
	// ExportCreate instantiates an object from a PROJ string, WKT or identifier.
	// Signature: proj_create(ctx: i32, definition: i32) -> i32 (PJ*)
	ExportCreate = "proj_create"

	// ExportCreateCRSToCRS builds a transformation between two CRS identifiers.
	// Signature: proj_create_crs_to_crs(ctx: i32, src: i32, dst: i32, area: i32) -> i32 (PJ*)
	// Returns: NULL on error.
	ExportCreateCRSToCRS = "proj_create_crs_to_crs"

	// ExportCreateCRSToCRSFromPJ builds a transformation between two CRS objects.
	// Signature: proj_create_crs_to_crs_from_pj(ctx: i32, src: i32, dst: i32, area: i32, options: i32) -> i32 (PJ*)
	ExportCreateCRSToCRSFromPJ = "proj_create_crs_to_crs_from_pj"

	// ExportCreateFromDatabase instantiates an object from an authority code.
	// Signature: proj_create_from_database(ctx: i32, auth: i32, code: i32, category: i32, alt_grid_names: i32, options: i32) -> i32 (PJ*)
	ExportCreateFromDatabase = "proj_create_from_database"

	// ExportNormalizeForVisualization returns a transformation with
	// longitude-first, easting-first axis order.
	// Signature: proj_normalize_for_visualization(ctx: i32, pj: i32) -> i32 (PJ*)
	ExportNormalizeForVisualization = "proj_normalize_for_visualization"

	// ExportDestroy frees an object.
	// Signature: proj_destroy(pj: i32) -> i32 (always NULL)
	ExportDestroy = "proj_destroy"
)

// Export and transformation exports.
const (
	// ExportAsWKT renders an object as WKT.
	// Signature: proj_as_wkt(ctx: i32, pj: i32, type: i32, options: i32) -> i32 (const char*)
	ExportAsWKT = "proj_as_wkt"

	// ExportAsPROJString renders an object as a PROJ string.
	// Signature: proj_as_proj_string(ctx: i32, pj: i32, type: i32, options: i32) -> i32 (const char*)
	ExportAsPROJString = "proj_as_proj_string"

	// ExportTransArray transforms an array of PJ_COORD in place.
	// Signature: proj_trans_array(pj: i32, direction: i32, n: i32, coord: i32) -> i32
	// Returns: 0 on success, otherwise the error number.
	ExportTransArray = "proj_trans_array"
)

// Database query exports.
const (
	// ExportGetAuthoritiesFromDatabase lists the authorities in proj.db.
	// Signature: proj_get_authorities_from_database(ctx: i32) -> i32 (char**, NULL terminated)
	ExportGetAuthoritiesFromDatabase = "proj_get_authorities_from_database"

	// ExportGetCodesFromDatabase lists the codes of an authority.
	// Signature: proj_get_codes_from_database(ctx: i32, auth: i32, type: i32, allow_deprecated: i32) -> i32 (char**)
	ExportGetCodesFromDatabase = "proj_get_codes_from_database"

	// ExportStringListDestroy frees a list returned by the database queries.
	// Signature: proj_string_list_destroy(list: i32) -> void
	ExportStringListDestroy = "proj_string_list_destroy"
)

// CoordSize is the size of a PJ_COORD in linear memory: four float64 values.
const CoordSize = 32
