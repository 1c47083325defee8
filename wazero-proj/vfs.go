package proj

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"time"

	projwasm "github.com/aperturerobotics/go-proj-wasm"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"go.uber.org/zap"
)

// GridPolicy decides what a failed grid file write does to initialization.
type GridPolicy int

const (
	// GridBestEffort logs a failed grid write and continues.
	// Transformations needing the missing grid fail later in the engine.
	GridBestEffort GridPolicy = iota
	// GridStrict fails initialization on the first failed grid write.
	GridStrict
)

// VirtualFS is the engine's private in-memory filesystem.
//
// The host writes into it; the guest sees it read-only through FS.
type VirtualFS struct {
	fs billy.Filesystem
}

// NewVirtualFS creates an empty virtual filesystem.
func NewVirtualFS() *VirtualFS {
	return &VirtualFS{fs: memfs.New()}
}

// MkdirAll creates dir and any missing parents.
func (v *VirtualFS) MkdirAll(dir string) error {
	return v.fs.MkdirAll(dir, 0o755)
}

// WriteFile writes data to name, replacing any existing file.
func (v *VirtualFS) WriteFile(name string, data []byte) error {
	return util.WriteFile(v.fs, name, data, 0o644)
}

// ReadFile returns the contents of name.
func (v *VirtualFS) ReadFile(name string) ([]byte, error) {
	f, err := v.fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Stat returns file info for name.
func (v *VirtualFS) Stat(name string) (os.FileInfo, error) {
	return v.fs.Stat(name)
}

// FS returns a read-only fs.FS view suitable for a wazero mount.
func (v *VirtualFS) FS() fs.FS {
	return &mountFS{fs: v.fs}
}

// Install writes the database and configuration into the data directory and
// each grid into the nested grid directory.
func (v *VirtualFS) Install(res *Resources, policy GridPolicy) error {
	if err := v.MkdirAll(projwasm.DataDir); err != nil {
		return fmt.Errorf("create %s: %w", projwasm.GuestDataDir, err)
	}
	if err := v.WriteFile(path.Join(projwasm.DataDir, projwasm.DatabaseFilename), res.Database); err != nil {
		return fmt.Errorf("write %s: %w", projwasm.DatabaseFilename, err)
	}
	if err := v.WriteFile(path.Join(projwasm.DataDir, projwasm.ConfigFilename), []byte(res.Config)); err != nil {
		return fmt.Errorf("write %s: %w", projwasm.ConfigFilename, err)
	}
	if len(res.Grids) == 0 {
		return nil
	}

	gridDir := path.Join(projwasm.DataDir, projwasm.GridDir)
	if err := v.MkdirAll(gridDir); err != nil {
		return fmt.Errorf("create %s: %w", projwasm.GuestGridDir, err)
	}

	names := make([]string, 0, len(res.Grids))
	for name := range res.Grids {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		err := v.writeGrid(gridDir, name, res.Grids[name])
		if err == nil {
			continue
		}
		if policy == GridStrict {
			return err
		}
		Logger().Warn("skipping grid file",
			zap.String("name", name),
			zap.Error(err))
	}
	return nil
}

// writeGrid writes a single grid file. Names must be plain file names.
func (v *VirtualFS) writeGrid(dir, name string, data []byte) error {
	if name == "" || name == "." || name == ".." || path.Base(name) != name || !fs.ValidPath(name) {
		return fmt.Errorf("write grid %q: invalid file name", name)
	}
	if data == nil {
		return fmt.Errorf("write grid %q: no data", name)
	}
	if err := v.WriteFile(path.Join(dir, name), data); err != nil {
		return fmt.Errorf("write grid %q: %w", name, err)
	}
	return nil
}

// mountFS adapts a billy filesystem to fs.FS. Files keep io.ReaderAt and
// io.Seeker so the guest can pread.
type mountFS struct {
	fs billy.Filesystem
}

// Open implements fs.FS.
func (m *mountFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if name == "." {
		return &mountDir{fs: m.fs, path: "/", info: rootInfo{}}, nil
	}
	info, err := m.fs.Stat(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: notExist(err)}
	}
	if info.IsDir() {
		return &mountDir{fs: m.fs, path: name, info: info}, nil
	}
	f, err := m.fs.Open(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: notExist(err)}
	}
	return &mountFile{File: f, info: info}, nil
}

func notExist(err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fs.ErrNotExist
	}
	return err
}

// mountFile is a regular file in the mount.
type mountFile struct {
	billy.File
	info os.FileInfo
}

// Stat implements fs.File.
func (f *mountFile) Stat() (fs.FileInfo, error) {
	return f.info, nil
}

// mountDir is a directory in the mount.
type mountDir struct {
	fs      billy.Filesystem
	path    string
	info    fs.FileInfo
	entries []fs.DirEntry
	offset  int
	loaded  bool
}

func (d *mountDir) Stat() (fs.FileInfo, error) { return d.info, nil }

func (d *mountDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.path, Err: errors.New("is a directory")}
}

func (d *mountDir) Close() error { return nil }

// ReadDir implements fs.ReadDirFile.
func (d *mountDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.loaded {
		infos, err := d.fs.ReadDir(d.path)
		if err != nil {
			return nil, err
		}
		d.entries = make([]fs.DirEntry, 0, len(infos))
		for _, info := range infos {
			d.entries = append(d.entries, fs.FileInfoToDirEntry(info))
		}
		sort.Slice(d.entries, func(i, j int) bool {
			return d.entries[i].Name() < d.entries[j].Name()
		})
		d.loaded = true
	}

	rest := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	if n > len(rest) {
		n = len(rest)
	}
	d.offset += n
	return rest[:n], nil
}

// rootInfo describes the mount root.
type rootInfo struct{}

func (rootInfo) Name() string       { return "." }
func (rootInfo) Size() int64        { return 0 }
func (rootInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o555 }
func (rootInfo) ModTime() time.Time { return time.Time{} }
func (rootInfo) IsDir() bool        { return true }
func (rootInfo) Sys() any           { return nil }
