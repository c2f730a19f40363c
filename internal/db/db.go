// Package db is the metadata database: installed packages, store
// reference counts, linked files, and tap registrations, backed by
// modernc.org/sqlite so the binary stays cgo-free.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	zberrors "github.com/zb-pm/zb/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS installed (
	name         TEXT PRIMARY KEY,
	version      TEXT NOT NULL,
	store_key    TEXT NOT NULL,
	installed_at INTEGER NOT NULL,
	pinned       INTEGER NOT NULL DEFAULT 0,
	explicit     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS store_refs (
	store_key TEXT PRIMARY KEY,
	refcount  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS linked_files (
	name        TEXT NOT NULL,
	version     TEXT NOT NULL,
	link_path   TEXT NOT NULL,
	target_path TEXT NOT NULL,
	PRIMARY KEY (name, link_path)
);

CREATE TABLE IF NOT EXISTS taps (
	name TEXT PRIMARY KEY,
	url  TEXT NOT NULL
);
`

// Row is one record from the installed table.
type Row struct {
	Name        string
	Version     string
	StoreKey    string
	InstalledAt time.Time
	Pinned      bool
	Explicit    bool
}

// LinkedFile is one record from the linked_files table.
type LinkedFile struct {
	LinkPath   string
	TargetPath string
}

// DB is the metadata database handle.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// applies the schema.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, zberrors.NewStoreCorruption("create database directory", err)
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, zberrors.NewStoreCorruption("open database", err)
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, zberrors.NewStoreCorruption("apply schema", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// GetInstalled returns the row for name, and ok=false if not installed.
func (d *DB) GetInstalled(name string) (Row, bool, error) {
	row := d.conn.QueryRow(`SELECT name, version, store_key, installed_at, pinned, explicit FROM installed WHERE name = ?`, name)
	return scanRow(row)
}

func scanRow(row *sql.Row) (Row, bool, error) {
	var r Row
	var installedAt int64
	var pinned, explicit int
	err := row.Scan(&r.Name, &r.Version, &r.StoreKey, &installedAt, &pinned, &explicit)
	if err == sql.ErrNoRows {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, fmt.Errorf("get installed: %w", err)
	}
	r.InstalledAt = time.Unix(installedAt, 0)
	r.Pinned = pinned != 0
	r.Explicit = explicit != 0
	return r, true, nil
}

// ListInstalled returns every row in the installed table, ordered by name.
func (d *DB) ListInstalled() ([]Row, error) {
	return d.queryRows(`SELECT name, version, store_key, installed_at, pinned, explicit FROM installed ORDER BY name`)
}

// ListPinned returns every pinned row, ordered by name.
func (d *DB) ListPinned() ([]Row, error) {
	return d.queryRows(`SELECT name, version, store_key, installed_at, pinned, explicit FROM installed WHERE pinned = 1 ORDER BY name`)
}

// ListDependencies returns every non-explicit (dependency-only) row,
// ordered by name.
func (d *DB) ListDependencies() ([]Row, error) {
	return d.queryRows(`SELECT name, version, store_key, installed_at, pinned, explicit FROM installed WHERE explicit = 0 ORDER BY name`)
}

func (d *DB) queryRows(query string) ([]Row, error) {
	rows, err := d.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query installed: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var installedAt int64
		var pinned, explicit int
		if err := rows.Scan(&r.Name, &r.Version, &r.StoreKey, &installedAt, &pinned, &explicit); err != nil {
			return nil, fmt.Errorf("scan installed row: %w", err)
		}
		r.InstalledAt = time.Unix(installedAt, 0)
		r.Pinned = pinned != 0
		r.Explicit = explicit != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// IsInstalled reports whether name has a row in installed.
func (d *DB) IsInstalled(name string) (bool, error) {
	_, ok, err := d.GetInstalled(name)
	return ok, err
}

// IsPinned reports whether name's row is pinned.
func (d *DB) IsPinned(name string) (bool, error) {
	r, ok, err := d.GetInstalled(name)
	return ok && r.Pinned, err
}

// IsExplicit reports whether name's row is marked explicit.
func (d *DB) IsExplicit(name string) (bool, error) {
	r, ok, err := d.GetInstalled(name)
	return ok && r.Explicit, err
}

// Pin sets the pinned flag for name. Returns whether a row changed.
func (d *DB) Pin(name string) (bool, error) {
	return d.setFlag(name, "pinned", 1)
}

// Unpin clears the pinned flag for name. Returns whether a row changed.
func (d *DB) Unpin(name string) (bool, error) {
	return d.setFlag(name, "pinned", 0)
}

// MarkExplicit sets the explicit flag for name. Returns whether a row changed.
func (d *DB) MarkExplicit(name string) (bool, error) {
	return d.setFlag(name, "explicit", 1)
}

// MarkDependency clears the explicit flag for name. Returns whether a row changed.
func (d *DB) MarkDependency(name string) (bool, error) {
	return d.setFlag(name, "explicit", 0)
}

func (d *DB) setFlag(name, column string, value int) (bool, error) {
	query := fmt.Sprintf(`UPDATE installed SET %s = ? WHERE name = ? AND %s != ?`, column, column)
	res, err := d.conn.Exec(query, value, name, value)
	if err != nil {
		return false, fmt.Errorf("set %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RecordInstall inserts or replaces the installed row for name, with no
// linked_files of its own (see RecordInstallWithLinks). Used directly
// only by tests; production installs always go through
// RecordInstallWithLinks.
func (d *DB) RecordInstall(name, version, storeKey string, explicit bool) error {
	return d.RecordInstallWithLinks(name, version, storeKey, explicit, nil)
}

// RecordInstallWithLinks inserts or replaces the installed row for name
// and fully replaces its linked_files rows, all inside one transaction,
// per the "one transaction per package" requirement on Execute's final
// recording step.
//
// store_refs is adjusted so that refcount always equals the number of
// installed rows referencing a store_key (§4.6's invariant): the old
// store_key is decremented and the new one incremented only when they
// differ. A same-version reinstall (store_key unchanged) touches neither
// counter, since the row count for that key does not change.
func (d *DB) RecordInstallWithLinks(name, version, storeKey string, explicit bool, links []LinkedFile) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return zberrors.NewStoreCorruption("begin record_install transaction", err)
	}
	defer tx.Rollback()

	var oldStoreKey string
	err = tx.QueryRow(`SELECT store_key FROM installed WHERE name = ?`, name).Scan(&oldStoreKey)
	hadPriorRow := true
	switch {
	case err == sql.ErrNoRows:
		hadPriorRow = false
	case err != nil:
		return fmt.Errorf("record_install: read previous row: %w", err)
	}
	keyChanged := !hadPriorRow || oldStoreKey != storeKey

	if hadPriorRow && keyChanged {
		if _, err := tx.Exec(`UPDATE store_refs SET refcount = refcount - 1 WHERE store_key = ?`, oldStoreKey); err != nil {
			return fmt.Errorf("record_install: decrement old store_ref: %w", err)
		}
	}

	explicitInt := 0
	if explicit {
		explicitInt = 1
	}
	if _, err := tx.Exec(
		`INSERT INTO installed (name, version, store_key, installed_at, pinned, explicit)
		 VALUES (?, ?, ?, ?, 0, ?)
		 ON CONFLICT(name) DO UPDATE SET version = excluded.version, store_key = excluded.store_key,
		 	installed_at = excluded.installed_at, explicit = excluded.explicit`,
		name, version, storeKey, time.Now().Unix(), explicitInt,
	); err != nil {
		return fmt.Errorf("record_install: upsert installed row: %w", err)
	}

	if keyChanged {
		if _, err := tx.Exec(
			`INSERT INTO store_refs (store_key, refcount) VALUES (?, 1)
			 ON CONFLICT(store_key) DO UPDATE SET refcount = refcount + 1`,
			storeKey,
		); err != nil {
			return fmt.Errorf("record_install: increment store_ref: %w", err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM linked_files WHERE name = ?`, name); err != nil {
		return fmt.Errorf("record_install: clear linked_files: %w", err)
	}
	for _, lf := range links {
		if _, err := tx.Exec(
			`INSERT INTO linked_files (name, version, link_path, target_path) VALUES (?, ?, ?, ?)`,
			name, version, lf.LinkPath, lf.TargetPath,
		); err != nil {
			return fmt.Errorf("record_install: insert linked_files row: %w", err)
		}
	}

	return tx.Commit()
}

// RecordUninstall removes name's installed row, decrements its
// store_ref, and deletes its linked_files rows, all in one transaction.
func (d *DB) RecordUninstall(name string) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return zberrors.NewStoreCorruption("begin record_uninstall transaction", err)
	}
	defer tx.Rollback()

	var storeKey string
	err = tx.QueryRow(`SELECT store_key FROM installed WHERE name = ?`, name).Scan(&storeKey)
	if err == sql.ErrNoRows {
		return zberrors.NewNotInstalled(name)
	}
	if err != nil {
		return fmt.Errorf("record_uninstall: read row: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM installed WHERE name = ?`, name); err != nil {
		return fmt.Errorf("record_uninstall: delete installed row: %w", err)
	}
	if _, err := tx.Exec(`UPDATE store_refs SET refcount = refcount - 1 WHERE store_key = ?`, storeKey); err != nil {
		return fmt.Errorf("record_uninstall: decrement store_ref: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM linked_files WHERE name = ?`, name); err != nil {
		return fmt.Errorf("record_uninstall: delete linked_files: %w", err)
	}

	return tx.Commit()
}

// RecordLinkedFile inserts one linked_files row inside its own transaction.
func (d *DB) RecordLinkedFile(name, version, link, target string) error {
	_, err := d.conn.Exec(
		`INSERT INTO linked_files (name, version, link_path, target_path) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name, link_path) DO UPDATE SET target_path = excluded.target_path, version = excluded.version`,
		name, version, link, target,
	)
	if err != nil {
		return fmt.Errorf("record_linked_file: %w", err)
	}
	return nil
}

// ClearLinkedFiles deletes every linked_files row for name.
func (d *DB) ClearLinkedFiles(name string) error {
	if _, err := d.conn.Exec(`DELETE FROM linked_files WHERE name = ?`, name); err != nil {
		return fmt.Errorf("clear_linked_files: %w", err)
	}
	return nil
}

// GetLinkedFiles returns every linked_files row for name.
func (d *DB) GetLinkedFiles(name string) ([]LinkedFile, error) {
	rows, err := d.conn.Query(`SELECT link_path, target_path FROM linked_files WHERE name = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("get_linked_files: %w", err)
	}
	defer rows.Close()

	var out []LinkedFile
	for rows.Next() {
		var lf LinkedFile
		if err := rows.Scan(&lf.LinkPath, &lf.TargetPath); err != nil {
			return nil, fmt.Errorf("scan linked_file: %w", err)
		}
		out = append(out, lf)
	}
	return out, rows.Err()
}

// GetUnreferencedStoreKeys returns every store_refs row with refcount = 0.
func (d *DB) GetUnreferencedStoreKeys() ([]string, error) {
	rows, err := d.conn.Query(`SELECT store_key FROM store_refs WHERE refcount <= 0`)
	if err != nil {
		return nil, fmt.Errorf("get_unreferenced_store_keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan store_key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// AddTap inserts or updates a tap's registered URL.
func (d *DB) AddTap(name, url string) error {
	_, err := d.conn.Exec(
		`INSERT INTO taps (name, url) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET url = excluded.url`,
		name, url,
	)
	if err != nil {
		return fmt.Errorf("add_tap: %w", err)
	}
	return nil
}

// RemoveTap deletes a tap registration.
func (d *DB) RemoveTap(name string) error {
	if _, err := d.conn.Exec(`DELETE FROM taps WHERE name = ?`, name); err != nil {
		return fmt.Errorf("remove_tap: %w", err)
	}
	return nil
}

// ListTaps returns every registered tap as a name -> URL map; the map
// carries no order.
func (d *DB) ListTaps() (map[string]string, error) {
	rows, err := d.conn.Query(`SELECT name, url FROM taps ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list_taps: %w", err)
	}
	defer rows.Close()

	taps := make(map[string]string)
	for rows.Next() {
		var name, url string
		if err := rows.Scan(&name, &url); err != nil {
			return nil, fmt.Errorf("scan tap: %w", err)
		}
		taps[name] = url
	}
	return taps, rows.Err()
}

// ListTapNamesInOrder returns registered tap names in the order they were
// added (oldest first), for callers that need a stable fallback search
// order rather than ListTaps's unordered map.
func (d *DB) ListTapNamesInOrder() ([]string, error) {
	rows, err := d.conn.Query(`SELECT name FROM taps ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list_tap_names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tap name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// IsTapped reports whether name is a registered tap.
func (d *DB) IsTapped(name string) (bool, error) {
	var count int
	if err := d.conn.QueryRow(`SELECT COUNT(1) FROM taps WHERE name = ?`, name).Scan(&count); err != nil {
		return false, fmt.Errorf("is_tapped: %w", err)
	}
	return count > 0, nil
}
