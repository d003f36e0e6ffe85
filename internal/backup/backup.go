// Package backup archives database copies into object storage. Callers
// depend on this package only; the backends live in its subpackages.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"brewcore/internal/backup/fsstore"
	"brewcore/internal/backup/memstore"
	"brewcore/internal/backup/objstore"
	"brewcore/internal/backup/s3store"
)

type (
	// Store is the archive storage contract.
	Store = objstore.Store
	// Info describes a stored archive.
	Info = objstore.Info
	// Driver names an archive backend.
	Driver = objstore.Driver
	// S3Config configures the s3 driver.
	S3Config = s3store.Config
)

const (
	DriverFilesystem = objstore.DriverFilesystem
	DriverS3         = objstore.DriverS3
	DriverMemory     = objstore.DriverMemory
)

// Prefix is the key namespace archives are written under.
const Prefix = "archives/"

// ContentType is recorded on every archive.
const ContentType = "application/vnd.sqlite3"

const timeLayout = "20060102T150405Z"

var (
	// ErrExists reports a key or destination that is already taken.
	ErrExists = objstore.ErrExists
	// ErrNotFound reports a missing archive.
	ErrNotFound = objstore.ErrNotFound
)

// Config selects and configures an archive backend.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open builds the backend named by cfg.Driver. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return fsstore.New(cfg.FSRoot)
	case DriverMemory:
		return memstore.New(), nil
	case DriverS3:
		return s3store.New(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown backup driver %q", cfg.Driver)
	}
}

// Source produces consistent copies of a database file.
type Source interface {
	Path() string
	Export(ctx context.Context, dest string) error
}

// Key returns the archive key for a database path taken at at.
func Key(dbPath string, at time.Time) string {
	stem := strings.TrimSuffix(filepath.Base(dbPath), filepath.Ext(dbPath))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "database"
	}
	return Prefix + stem + "/" + at.UTC().Format(timeLayout) + ".db"
}

// Archive exports src to a temporary file and uploads it.
func Archive(ctx context.Context, src Source, store Store, at time.Time) (Info, error) {
	if src == nil || store == nil {
		return Info{}, errors.New("backup: source and store are required")
	}
	dir, err := os.MkdirTemp("", "brewcore-backup-*")
	if err != nil {
		return Info{}, fmt.Errorf("backup: temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	tmp := filepath.Join(dir, "export.db")
	if err := src.Export(ctx, tmp); err != nil {
		return Info{}, fmt.Errorf("backup: export %s: %w", src.Path(), err)
	}
	f, err := os.Open(tmp)
	if err != nil {
		return Info{}, fmt.Errorf("backup: open export: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := store.Put(ctx, Key(src.Path(), at), f, objstore.PutOptions{
		ContentType: ContentType,
		Metadata: map[string]string{
			"source":     filepath.Base(src.Path()),
			"created-at": at.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return Info{}, fmt.Errorf("backup: upload: %w", err)
	}
	return info, nil
}

// List returns every archive in store, oldest key first.
func List(ctx context.Context, store Store) ([]Info, error) {
	infos, err := store.List(ctx, Prefix)
	if err != nil {
		return nil, fmt.Errorf("backup: list: %w", err)
	}
	return infos, nil
}

// Restore downloads the archive at key into dest. An existing dest is
// never overwritten.
func Restore(ctx context.Context, store Store, key, dest string) (Info, error) {
	if strings.TrimSpace(dest) == "" {
		return Info{}, errors.New("backup: destination path is required")
	}
	if _, err := os.Stat(dest); err == nil {
		return Info{}, fmt.Errorf("backup: %s: %w", dest, ErrExists)
	}
	info, rc, err := store.Get(ctx, key)
	if err != nil {
		return Info{}, fmt.Errorf("backup: fetch: %w", err)
	}
	defer func() { _ = rc.Close() }()

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return Info{}, fmt.Errorf("backup: create dirs: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".restore-*")
	if err != nil {
		return Info{}, fmt.Errorf("backup: temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	_, err = io.Copy(tmp, rc)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Info{}, fmt.Errorf("backup: write %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return Info{}, fmt.Errorf("backup: move into place: %w", err)
	}
	return info, nil
}
