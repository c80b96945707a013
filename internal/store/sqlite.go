// Package store keeps item custom properties in a local SQLite database, for
// hosts that have no server-side property storage of their own.
package store

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"meetingsnap/internal/host"
)

// SQLiteStore persists custom properties keyed by item id.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath, enables WAL mode
// and applies pending migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection serializes background saves.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) runMigrations() error {
	current := 0

	var tables int
	err := s.db.Get(&tables, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tables > 0 {
		if err := s.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

type propertyRow struct {
	Name  string `db:"name"`
	Value string `db:"value"`
}

// Properties returns every stored property of itemID.
func (s *SQLiteStore) Properties(ctx context.Context, itemID string) (map[string]string, error) {
	var rows []propertyRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT name, value FROM custom_properties WHERE item_id = ? ORDER BY name", itemID)
	if err != nil {
		return nil, fmt.Errorf("querying properties of %s: %w", itemID, err)
	}

	values := make(map[string]string, len(rows))
	for _, r := range rows {
		values[r.Name] = r.Value
	}
	return values, nil
}

// SetProperties upserts values for itemID in one transaction.
func (s *SQLiteStore) SetProperties(ctx context.Context, itemID string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO custom_properties (item_id, name, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (item_id, name) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for name, value := range values {
		if _, err := stmt.ExecContext(ctx, itemID, name, value, now); err != nil {
			return fmt.Errorf("upserting property %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// ForItem returns the property bag of one item.
func (s *SQLiteStore) ForItem(itemID string) host.PropertyBag {
	return &itemBag{store: s, itemID: itemID}
}

// ForResolvedItem returns a property bag whose item id is looked up by
// resolve on every load.
func (s *SQLiteStore) ForResolvedItem(resolve func(ctx context.Context) (string, error)) host.PropertyBag {
	return resolvedBag{store: s, resolve: resolve}
}

type resolvedBag struct {
	store   *SQLiteStore
	resolve func(ctx context.Context) (string, error)
}

func (b resolvedBag) LoadCustomProperties(ctx context.Context) (host.CustomProperties, error) {
	itemID, err := b.resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving item id: %w", err)
	}
	return b.store.ForItem(itemID).LoadCustomProperties(ctx)
}

type itemBag struct {
	store  *SQLiteStore
	itemID string
}

func (b *itemBag) LoadCustomProperties(ctx context.Context) (host.CustomProperties, error) {
	values, err := b.store.Properties(ctx, b.itemID)
	if err != nil {
		return nil, err
	}
	return &itemProperties{bag: b, values: values, staged: make(map[string]string)}, nil
}

type itemProperties struct {
	bag *itemBag

	mu     sync.Mutex
	values map[string]string
	staged map[string]string
}

func (p *itemProperties) Get(name string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[name]
	return v, ok
}

func (p *itemProperties) Set(name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[name] = value
	p.staged[name] = value
}

func (p *itemProperties) Save(ctx context.Context) error {
	p.mu.Lock()
	staged := maps.Clone(p.staged)
	p.mu.Unlock()

	if err := p.bag.store.SetProperties(ctx, p.bag.itemID, staged); err != nil {
		return err
	}

	p.mu.Lock()
	for name, v := range staged {
		if p.staged[name] == v {
			delete(p.staged, name)
		}
	}
	p.mu.Unlock()
	return nil
}
