package fleet

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pharos-hub/pharos/device"
)

// SQLite is a Store persisted to a sqlite database.  Fleet membership
// survives hub restarts, so devices reconnecting after an outage remain
// addressable by group dispatches without re-registration.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if necessary) the fleet database at the given
// path.  Use ":memory:" for an ephemeral store.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open fleet database: %w", err)
	}

	// sqlite serialises writes; a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA foreign_keys=ON`,
		`PRAGMA busy_timeout=5000`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &SQLite{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// migrate is additive only.  Existing columns are never altered.
func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS fleets (
			name        TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS fleet_members (
			fleet_name TEXT NOT NULL REFERENCES fleets(name) ON DELETE CASCADE,
			device_id  TEXT NOT NULL,
			position   INTEGER NOT NULL,
			PRIMARY KEY (fleet_name, device_id)
		);

		CREATE INDEX IF NOT EXISTS idx_fleet_members_fleet
			ON fleet_members(fleet_name, position);
	`)

	if err != nil {
		return fmt.Errorf("migrate fleet schema: %w", err)
	}

	return nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Upsert(ctx context.Context, f Fleet) error {
	if err := f.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO fleets (name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			description = excluded.description,
			updated_at  = excluded.updated_at
	`, f.Name, f.Description, now, now)
	if err != nil {
		return err
	}

	// membership is replaced wholesale on every upsert
	if _, err = tx.ExecContext(ctx, `DELETE FROM fleet_members WHERE fleet_name = ?`, f.Name); err != nil {
		return err
	}

	for i, member := range f.Members {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO fleet_members (fleet_name, device_id, position)
			VALUES (?, ?, ?)
			ON CONFLICT (fleet_name, device_id) DO NOTHING
		`, f.Name, member, i)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLite) Get(ctx context.Context, name string) (*Fleet, error) {
	var (
		f                    = Fleet{Name: name, Members: []string{}}
		createdAt, updatedAt string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT description, created_at, updated_at FROM fleets WHERE name = ?
	`, name).Scan(&f.Description, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	if f.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, err
	}

	if f.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id FROM fleet_members WHERE fleet_name = ? ORDER BY position
	`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, err
		}

		f.Members = append(f.Members, member)
	}

	return &f, rows.Err()
}

func (s *SQLite) Delete(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM fleets WHERE name = ?`, name)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *SQLite) List(ctx context.Context) ([]Fleet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM fleets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	all := make([]Fleet, 0, len(names))
	for _, name := range names {
		f, err := s.Get(ctx, name)
		if err != nil {
			return nil, err
		}

		all = append(all, *f)
	}

	return all, nil
}

func (s *SQLite) MembersOf(ctx context.Context, name string) ([]device.ID, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM fleets WHERE name = ?`, name).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id FROM fleet_members WHERE fleet_name = ? ORDER BY position
	`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]device.ID, 0, 8)
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, err
		}

		members = append(members, device.ID(member))
	}

	return members, rows.Err()
}
