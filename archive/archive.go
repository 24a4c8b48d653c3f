// Package archive stores compiled units in a SQLite database. An archive
// file (extension .db) on the module search path behaves like a directory
// of unit files keyed by dotted module name.
package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chazu/byterun/vm"
	"github.com/chazu/byterun/vm/wire"
	"github.com/tliron/commonlog"

	_ "modernc.org/sqlite"
)

// Ext is the file extension of unit archives.
const Ext = ".db"

// ErrNotFound indicates the archive holds no unit for a module name.
var ErrNotFound = errors.New("unit not found")

var log = commonlog.GetLogger("byterun.archive")

// Archive is an open unit archive.
type Archive struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens the archive at path, creating it if needed.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS units (
		module TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		hash BLOB NOT NULL,
		unit BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened archive %s", path)
	return &Archive{db: db, path: path}, nil
}

// Path returns the file the archive was opened from.
func (a *Archive) Path() string {
	return a.path
}

// Close closes the database connection.
func (a *Archive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Put stores code under module, replacing any earlier unit.
func (a *Archive) Put(module string, code *vm.Code) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := wire.Marshal(code)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", module, err)
	}
	hash, err := wire.Hash(code)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", module, err)
	}

	_, err = a.db.Exec(
		"INSERT OR REPLACE INTO units (module, filename, hash, unit) VALUES (?, ?, ?, ?)",
		module, code.Filename, hash[:], data,
	)
	if err != nil {
		return fmt.Errorf("saving unit %s: %w", module, err)
	}
	log.Debugf("stored %s (%d bytes)", module, len(data))
	return nil
}

// Get loads the unit stored under module.
func (a *Archive) Get(module string) (*vm.Code, error) {
	var data []byte
	err := a.db.QueryRow("SELECT unit FROM units WHERE module = ?", module).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying unit %s: %w", module, err)
	}

	code, err := wire.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s in %s: %w", module, a.path, err)
	}
	return code, nil
}

// Hash returns the content hash recorded for module.
func (a *Archive) Hash(module string) ([32]byte, error) {
	var h [32]byte
	var raw []byte
	err := a.db.QueryRow("SELECT hash FROM units WHERE module = ?", module).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return h, ErrNotFound
		}
		return h, fmt.Errorf("querying hash %s: %w", module, err)
	}
	copy(h[:], raw)
	return h, nil
}

// Delete removes module from the archive.
func (a *Archive) Delete(module string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.db.Exec("DELETE FROM units WHERE module = ?", module)
	if err != nil {
		return fmt.Errorf("deleting unit %s: %w", module, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Modules lists the stored module names in sorted order.
func (a *Archive) Modules() ([]string, error) {
	rows, err := a.db.Query("SELECT module FROM units ORDER BY module")
	if err != nil {
		return nil, fmt.Errorf("listing units: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning unit name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ---------------------------------------------------------------------------
// Packing
// ---------------------------------------------------------------------------

// ModuleName maps a unit file path relative to a search root to its
// dotted module name: a/b.byc is a.b and a/b/__main__.byc is a.b.__main__.
func ModuleName(rel string) (string, bool) {
	if !strings.HasSuffix(rel, wire.Ext) {
		return "", false
	}
	rel = strings.TrimSuffix(filepath.ToSlash(rel), wire.Ext)
	if rel == "" || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return strings.ReplaceAll(rel, "/", "."), true
}

// PackDir stores every unit file under root, keyed by its module name,
// and returns the names stored.
func (a *Archive) PackDir(root string) ([]string, error) {
	var packed []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name, ok := ModuleName(rel)
		if !ok {
			return nil
		}
		code, err := wire.ReadFile(path)
		if err != nil {
			return err
		}
		if err := a.Put(name, code); err != nil {
			return err
		}
		packed = append(packed, name)
		return nil
	})
	if err != nil {
		return packed, fmt.Errorf("packing %s: %w", root, err)
	}
	log.Infof("packed %d units from %s into %s", len(packed), root, a.path)
	return packed, nil
}

// IsArchive reports whether path names an existing archive file.
func IsArchive(path string) bool {
	if filepath.Ext(path) != Ext {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
