package proj

import (
	"context"
	"errors"

	projwasm "github.com/aperturerobotics/go-proj-wasm"
	"github.com/tetratelabs/wazero/api"
)

// Direction is a PJ_DIRECTION.
type Direction int32

const (
	// DirectionForward is PJ_FWD.
	DirectionForward Direction = 1
	// DirectionIdentity is PJ_IDENT: coordinates pass through unchanged.
	DirectionIdentity Direction = 0
	// DirectionInverse is PJ_INV.
	DirectionInverse Direction = -1
)

// Category is a PJ_CATEGORY for CreateFromDatabase.
type Category int32

const (
	// CategoryEllipsoid is PJ_CATEGORY_ELLIPSOID.
	CategoryEllipsoid Category = iota
	// CategoryPrimeMeridian is PJ_CATEGORY_PRIME_MERIDIAN.
	CategoryPrimeMeridian
	// CategoryDatum is PJ_CATEGORY_DATUM.
	CategoryDatum
	// CategoryCRS is PJ_CATEGORY_CRS.
	CategoryCRS
	// CategoryCoordinateOperation is PJ_CATEGORY_COORDINATE_OPERATION.
	CategoryCoordinateOperation
	// CategoryDatumEnsemble is PJ_CATEGORY_DATUM_ENSEMBLE.
	CategoryDatumEnsemble
)

// Type is a PJ_TYPE filter for Codes.
type Type int32

const (
	// TypeUnknown is PJ_TYPE_UNKNOWN. As a filter it matches every type.
	TypeUnknown Type = 0
	// TypeEllipsoid is PJ_TYPE_ELLIPSOID.
	TypeEllipsoid Type = 1
	// TypeCRS is PJ_TYPE_CRS, any coordinate reference system.
	TypeCRS Type = 8
	// TypeGeodeticCRS is PJ_TYPE_GEODETIC_CRS.
	TypeGeodeticCRS Type = 9
	// TypeGeocentricCRS is PJ_TYPE_GEOCENTRIC_CRS.
	TypeGeocentricCRS Type = 10
	// TypeGeographicCRS is PJ_TYPE_GEOGRAPHIC_CRS.
	TypeGeographicCRS Type = 11
	// TypeGeographic2DCRS is PJ_TYPE_GEOGRAPHIC_2D_CRS.
	TypeGeographic2DCRS Type = 12
	// TypeGeographic3DCRS is PJ_TYPE_GEOGRAPHIC_3D_CRS.
	TypeGeographic3DCRS Type = 13
	// TypeVerticalCRS is PJ_TYPE_VERTICAL_CRS.
	TypeVerticalCRS Type = 14
	// TypeProjectedCRS is PJ_TYPE_PROJECTED_CRS.
	TypeProjectedCRS Type = 15
	// TypeCompoundCRS is PJ_TYPE_COMPOUND_CRS.
	TypeCompoundCRS Type = 16
)

// WKTType is a PJ_WKT_TYPE.
type WKTType int32

const (
	// WKT2_2015 is PJ_WKT2_2015.
	WKT2_2015 WKTType = iota
	// WKT2_2015Simplified is PJ_WKT2_2015_SIMPLIFIED.
	WKT2_2015Simplified
	// WKT2_2019 is PJ_WKT2_2019.
	WKT2_2019
	// WKT2_2019Simplified is PJ_WKT2_2019_SIMPLIFIED.
	WKT2_2019Simplified
	// WKT1GDAL is PJ_WKT1_GDAL.
	WKT1GDAL
	// WKT1ESRI is PJ_WKT1_ESRI.
	WKT1ESRI
)

// PROJStringType is a PJ_PROJ_STRING_TYPE.
type PROJStringType int32

const (
	// PROJ5 is PJ_PROJ_5.
	PROJ5 PROJStringType = iota
	// PROJ4 is PJ_PROJ_4.
	PROJ4
)

// call invokes fn, reporting a missing optional export by name.
func (p *Proj) call(ctx context.Context, fn api.Function, name string, params ...uint64) ([]uint64, error) {
	if fn == nil {
		return nil, errors.New(name + " not available")
	}
	return fn.Call(ctx, params...)
}

// ContextCreate creates a context pointed at the installed proj.db.
func (p *Proj) ContextCreate(ctx context.Context) (Context, error) {
	if err := p.lock(); err != nil {
		return 0, err
	}
	defer p.mu.Unlock()

	results, err := p.contextCreate.Call(ctx)
	if err != nil {
		return 0, err
	}
	c := Context(results[0])
	if c == 0 {
		return 0, errors.New("proj_context_create returned null")
	}
	if p.contextSetDatabasePath != nil {
		if err := p.setDatabasePath(ctx, c, projwasm.GuestDatabasePath); err != nil {
			_, _ = p.contextDestroy.Call(ctx, uint64(c))
			return 0, err
		}
	}
	return c, nil
}

// ContextDestroy destroys a context.
func (p *Proj) ContextDestroy(ctx context.Context, c Context) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.mu.Unlock()

	_, err := p.contextDestroy.Call(ctx, uint64(c))
	return err
}

// ContextSetDatabasePath points c at a database in the virtual filesystem.
func (p *Proj) ContextSetDatabasePath(ctx context.Context, c Context, path string) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.mu.Unlock()
	return p.setDatabasePath(ctx, c, path)
}

func (p *Proj) setDatabasePath(ctx context.Context, c Context, path string) error {
	pathPtr, err := p.allocString(ctx, path)
	if err != nil {
		return err
	}
	defer p.freePtr(ctx, pathPtr)

	results, err := p.call(ctx, p.contextSetDatabasePath, projwasm.ExportContextSetDatabasePath, uint64(c), uint64(pathPtr), 0, 0)
	if err != nil {
		return err
	}
	if int32(results[0]) != 1 {
		return p.errorFor(ctx, c, projwasm.ExportContextSetDatabasePath, path)
	}
	return nil
}

// ContextDatabasePath returns the database path used by c.
func (p *Proj) ContextDatabasePath(ctx context.Context, c Context) (string, error) {
	if err := p.lock(); err != nil {
		return "", err
	}
	defer p.mu.Unlock()

	results, err := p.call(ctx, p.contextGetDatabasePath, projwasm.ExportContextGetDatabasePath, uint64(c))
	if err != nil {
		return "", err
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return "", nil
	}
	return p.readCString(ptr), nil
}

// ContextErrno returns the last error number of c.
func (p *Proj) ContextErrno(ctx context.Context, c Context) (int, error) {
	if err := p.lock(); err != nil {
		return 0, err
	}
	defer p.mu.Unlock()
	return p.errno(ctx, c)
}

func (p *Proj) errno(ctx context.Context, c Context) (int, error) {
	results, err := p.contextErrno.Call(ctx, uint64(c))
	if err != nil {
		return 0, err
	}
	return int(int32(results[0])), nil
}

// ErrnoString describes an error number.
func (p *Proj) ErrnoString(ctx context.Context, c Context, code int) (string, error) {
	if err := p.lock(); err != nil {
		return "", err
	}
	defer p.mu.Unlock()
	return p.errnoString(ctx, c, code)
}

func (p *Proj) errnoString(ctx context.Context, c Context, code int) (string, error) {
	results, err := p.call(ctx, p.contextErrnoString, projwasm.ExportContextErrnoString, uint64(c), uint64(uint32(int32(code))))
	if err != nil {
		return "", err
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return "", nil
	}
	return p.readCString(ptr), nil
}

// errorFor builds a *CRSError from the context error state.
func (p *Proj) errorFor(ctx context.Context, c Context, op string, identifiers ...string) error {
	crsErr := &CRSError{Op: op, Identifiers: identifiers}
	if code, err := p.errno(ctx, c); err == nil {
		crsErr.Errno = code
		if code != 0 {
			crsErr.Message, _ = p.errnoString(ctx, c, code)
		}
	}
	return crsErr
}

// newPJ checks a PJ* result, converting null into a *CRSError.
func (p *Proj) newPJ(ctx context.Context, c Context, results []uint64, op string, identifiers ...string) (PJ, error) {
	pj := PJ(results[0])
	if pj == 0 {
		return 0, p.errorFor(ctx, c, op, identifiers...)
	}
	return pj, nil
}

// Create instantiates an object from a PROJ string, WKT or "AUTH:CODE".
func (p *Proj) Create(ctx context.Context, c Context, definition string) (PJ, error) {
	if err := p.lock(); err != nil {
		return 0, err
	}
	defer p.mu.Unlock()

	defPtr, err := p.allocString(ctx, definition)
	if err != nil {
		return 0, err
	}
	defer p.freePtr(ctx, defPtr)

	results, err := p.call(ctx, p.create, projwasm.ExportCreate, uint64(c), uint64(defPtr))
	if err != nil {
		return 0, err
	}
	return p.newPJ(ctx, c, results, projwasm.ExportCreate, definition)
}

// CreateCRSToCRS builds a transformation from source to target.
// An unknown identifier yields a *CRSError naming both identifiers.
func (p *Proj) CreateCRSToCRS(ctx context.Context, c Context, source, target string) (PJ, error) {
	if err := p.lock(); err != nil {
		return 0, err
	}
	defer p.mu.Unlock()

	ptrs, err := p.allocStrings(ctx, source, target)
	if err != nil {
		return 0, err
	}
	defer p.freePtrs(ctx, ptrs...)

	results, err := p.createCRSToCRS.Call(ctx, uint64(c), uint64(ptrs[0]), uint64(ptrs[1]), 0)
	if err != nil {
		return 0, err
	}
	return p.newPJ(ctx, c, results, projwasm.ExportCreateCRSToCRS, source, target)
}

// CreateCRSToCRSFromPJ builds a transformation between two CRS objects.
func (p *Proj) CreateCRSToCRSFromPJ(ctx context.Context, c Context, source, target PJ) (PJ, error) {
	if err := p.lock(); err != nil {
		return 0, err
	}
	defer p.mu.Unlock()

	results, err := p.call(ctx, p.createCRSToCRSFromPJ, projwasm.ExportCreateCRSToCRSFromPJ, uint64(c), uint64(source), uint64(target), 0, 0)
	if err != nil {
		return 0, err
	}
	return p.newPJ(ctx, c, results, projwasm.ExportCreateCRSToCRSFromPJ)
}

// CreateFromDatabase instantiates an object from an authority and code.
func (p *Proj) CreateFromDatabase(ctx context.Context, c Context, authority, code string, category Category) (PJ, error) {
	if err := p.lock(); err != nil {
		return 0, err
	}
	defer p.mu.Unlock()

	ptrs, err := p.allocStrings(ctx, authority, code)
	if err != nil {
		return 0, err
	}
	defer p.freePtrs(ctx, ptrs...)

	results, err := p.call(ctx, p.createFromDatabase, projwasm.ExportCreateFromDatabase,
		uint64(c), uint64(ptrs[0]), uint64(ptrs[1]), uint64(uint32(category)), 0, 0)
	if err != nil {
		return 0, err
	}
	return p.newPJ(ctx, c, results, projwasm.ExportCreateFromDatabase, authority+":"+code)
}

// NormalizeForVisualization returns a copy of pj with longitude-first,
// easting-first axis order. The input is not destroyed.
func (p *Proj) NormalizeForVisualization(ctx context.Context, c Context, pj PJ) (PJ, error) {
	if err := p.lock(); err != nil {
		return 0, err
	}
	defer p.mu.Unlock()

	results, err := p.call(ctx, p.normalizeForVisualization, projwasm.ExportNormalizeForVisualization, uint64(c), uint64(pj))
	if err != nil {
		return 0, err
	}
	return p.newPJ(ctx, c, results, projwasm.ExportNormalizeForVisualization)
}

// AsWKT renders pj as WKT.
func (p *Proj) AsWKT(ctx context.Context, c Context, pj PJ, typ WKTType) (string, error) {
	return p.render(ctx, c, pj, p.asWKT, projwasm.ExportAsWKT, int32(typ))
}

// AsPROJString renders pj as a PROJ string.
func (p *Proj) AsPROJString(ctx context.Context, c Context, pj PJ, typ PROJStringType) (string, error) {
	return p.render(ctx, c, pj, p.asPROJString, projwasm.ExportAsPROJString, int32(typ))
}

func (p *Proj) render(ctx context.Context, c Context, pj PJ, fn api.Function, name string, typ int32) (string, error) {
	if err := p.lock(); err != nil {
		return "", err
	}
	defer p.mu.Unlock()

	results, err := p.call(ctx, fn, name, uint64(c), uint64(pj), uint64(uint32(typ)), 0)
	if err != nil {
		return "", err
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return "", p.errorFor(ctx, c, name)
	}
	return p.readCString(ptr), nil
}

// Destroy frees pj. Destroying 0 is a no-op.
func (p *Proj) Destroy(ctx context.Context, pj PJ) error {
	if pj == 0 {
		return nil
	}
	if err := p.lock(); err != nil {
		return err
	}
	defer p.mu.Unlock()

	_, err := p.destroy.Call(ctx, uint64(pj))
	return err
}

// TransArray transforms every coordinate of arr in place.
func (p *Proj) TransArray(ctx context.Context, pj PJ, dir Direction, arr *CoordArray) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.mu.Unlock()

	if arr.ptr == 0 {
		return errors.New("coordinate array is freed")
	}
	results, err := p.transArray.Call(ctx, uint64(pj), uint64(uint32(int32(dir))), uint64(arr.n), uint64(arr.ptr))
	if err != nil {
		return err
	}
	if code := int32(results[0]); code != 0 {
		return &TransformError{Errno: int(code)}
	}
	return nil
}

// Authorities lists the authorities known to proj.db.
func (p *Proj) Authorities(ctx context.Context, c Context) ([]string, error) {
	if err := p.lock(); err != nil {
		return nil, err
	}
	defer p.mu.Unlock()

	results, err := p.call(ctx, p.getAuthorities, projwasm.ExportGetAuthoritiesFromDatabase, uint64(c))
	if err != nil {
		return nil, err
	}
	return p.takeStringList(ctx, c, results[0], projwasm.ExportGetAuthoritiesFromDatabase)
}

// Codes lists the codes of an authority, filtered by object type.
func (p *Proj) Codes(ctx context.Context, c Context, authority string, typ Type, allowDeprecated bool) ([]string, error) {
	if err := p.lock(); err != nil {
		return nil, err
	}
	defer p.mu.Unlock()

	authPtr, err := p.allocString(ctx, authority)
	if err != nil {
		return nil, err
	}
	defer p.freePtr(ctx, authPtr)

	var deprecated uint64
	if allowDeprecated {
		deprecated = 1
	}
	results, err := p.call(ctx, p.getCodes, projwasm.ExportGetCodesFromDatabase,
		uint64(c), uint64(authPtr), uint64(uint32(typ)), deprecated)
	if err != nil {
		return nil, err
	}
	return p.takeStringList(ctx, c, results[0], projwasm.ExportGetCodesFromDatabase, authority)
}

// takeStringList copies a PROJ_STRING_LIST into Go and frees it.
func (p *Proj) takeStringList(ctx context.Context, c Context, result uint64, op string, identifiers ...string) ([]string, error) {
	ptr := uint32(result)
	if ptr == 0 {
		return nil, p.errorFor(ctx, c, op, identifiers...)
	}
	list := p.readStringList(ptr)
	if p.stringListDestroy != nil {
		_, _ = p.stringListDestroy.Call(ctx, uint64(ptr))
	}
	return list, nil
}
