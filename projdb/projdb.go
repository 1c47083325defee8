// Package projdb inspects proj.db blobs before they are handed to the engine.
package projdb

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	projwasm "github.com/aperturerobotics/go-proj-wasm"
	proj "github.com/aperturerobotics/go-proj-wasm/wazero-proj"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Metadata keys written by PROJ into the metadata table.
const (
	KeyLayoutMajor = "DATABASE.LAYOUT.VERSION.MAJOR"
	KeyLayoutMinor = "DATABASE.LAYOUT.VERSION.MINOR"
	KeyPROJVersion = "PROJ.VERSION"
	KeyEPSGVersion = "EPSG.VERSION"
)

// sqliteMagic starts every sqlite 3 database file.
var sqliteMagic = []byte("SQLite format 3\x00")

// ErrNotSQLite is returned for blobs that are not sqlite databases.
var ErrNotSQLite = errors.New("proj.db is not a sqlite database")

// LayoutError reports an unsupported database layout.
type LayoutError struct {
	Major int
	Want  int
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("proj.db layout major version %d, want %d", e.Major, e.Want)
}

// Metadata is the content of the proj.db metadata table.
type Metadata struct {
	LayoutMajor int
	LayoutMinor int
	PROJVersion string
	EPSGVersion string
	// Entries holds every key, including the ones above.
	Entries map[string]string
}

// Inspect opens blob read-only and reads its metadata table.
func Inspect(ctx context.Context, blob []byte) (*Metadata, error) {
	if !bytes.HasPrefix(blob, sqliteMagic) {
		return nil, ErrNotSQLite
	}

	f, err := os.CreateTemp("", "proj-*.db")
	if err != nil {
		return nil, err
	}
	name := f.Name()
	defer os.Remove(name)
	if _, err := f.Write(blob); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	dsn := (&url.URL{Scheme: "file", Path: name, RawQuery: "mode=ro&immutable=1"}).String()
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT key, value FROM metadata")
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	defer rows.Close()

	md := &Metadata{Entries: map[string]string{}}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		md.Entries[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	md.PROJVersion = md.Entries[KeyPROJVersion]
	md.EPSGVersion = md.Entries[KeyEPSGVersion]
	if md.LayoutMajor, err = intEntry(md.Entries, KeyLayoutMajor); err != nil {
		return nil, err
	}
	if md.LayoutMinor, err = intEntry(md.Entries, KeyLayoutMinor); err != nil {
		return nil, err
	}
	return md, nil
}

func intEntry(entries map[string]string, key string) (int, error) {
	v, ok := entries[key]
	if !ok {
		return 0, fmt.Errorf("metadata key %s missing", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("metadata key %s: %w", key, err)
	}
	return n, nil
}

// Validate checks that blob is a proj.db the engine can read.
func Validate(ctx context.Context, blob []byte) error {
	md, err := Inspect(ctx, blob)
	if err != nil {
		return err
	}
	if md.LayoutMajor != projwasm.DatabaseLayoutMajor {
		return &LayoutError{Major: md.LayoutMajor, Want: projwasm.DatabaseLayoutMajor}
	}
	proj.Logger().Debug("proj.db validated",
		zap.Int("layout_major", md.LayoutMajor),
		zap.Int("layout_minor", md.LayoutMinor),
		zap.String("proj_version", md.PROJVersion),
		zap.String("epsg_version", md.EPSGVersion))
	return nil
}

// ValidateResources is a proj.Options.Validate hook checking the database.
func ValidateResources(res *proj.Resources) error {
	return Validate(context.Background(), res.Database)
}
