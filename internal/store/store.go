// Package store persists synced measurements in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	_ "modernc.org/sqlite"

	"github.com/srg/omronble/internal/measurement"
)

// Record is one stored measurement.
type Record struct {
	ID           int64
	DeviceID     string
	SessionID    string
	Kind         measurement.Kind
	TakenAt      time.Time
	DeviceTime   bool
	PrimaryValue *float64
	Unit         string
	Summary      string
	Fields       *orderedmap.OrderedMap[string, any]
	StoredAt     time.Time
}

// Query filters List. Zero values match everything; Limit 0 means no limit.
type Query struct {
	DeviceID string
	Kind     measurement.Kind
	Limit    int
}

// Store is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and migrates the schema.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open measurement db: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate measurement db: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS measurements (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id     TEXT NOT NULL,
			session_id    TEXT NOT NULL,
			kind          TEXT NOT NULL,
			taken_at      TEXT NOT NULL,
			device_time   INTEGER NOT NULL,
			primary_value REAL,
			unit          TEXT NOT NULL,
			summary       TEXT NOT NULL,
			fields        TEXT NOT NULL,
			stored_at     TEXT NOT NULL,
			UNIQUE (device_id, kind, taken_at, primary_value)
		);
		CREATE INDEX IF NOT EXISTS measurements_device_taken ON measurements (device_id, taken_at);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts the measurements in one transaction. A measurement already
// stored for the device with the same kind, time and value is skipped, so
// re-syncing a device does not duplicate its history. It returns the number
// of rows inserted.
func (s *Store) Save(ctx context.Context, deviceID, sessionID string, ms []measurement.Measurement) (int, error) {
	if len(ms) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO measurements
			(device_id, session_id, kind, taken_at, device_time, primary_value, unit, summary, fields, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	storedAt := s.now().UTC().Format(time.RFC3339Nano)
	inserted := 0
	for _, m := range ms {
		om := measurement.Fields(m)
		fields, err := om.MarshalJSON()
		if err != nil {
			return 0, fmt.Errorf("marshal %s fields: %w", m.Kind(), err)
		}
		res, err := stmt.ExecContext(ctx,
			deviceID, sessionID, string(m.Kind()),
			m.TakenAt().UTC().Format(time.RFC3339Nano), fromDevice(om),
			nullFloat(m.PrimaryValue()), string(m.Unit()),
			measurement.Summary(m), string(fields), storedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", m.Kind(), err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func fromDevice(fields *orderedmap.OrderedMap[string, any]) bool {
	v, _ := fields.Get("device_time")
	b, _ := v.(bool)
	return b
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// List returns stored measurements, newest first.
func (s *Store) List(ctx context.Context, q Query) ([]Record, error) {
	var where []string
	var args []any
	if q.DeviceID != "" {
		where = append(where, "device_id = ?")
		args = append(args, q.DeviceID)
	}
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(q.Kind))
	}

	query := `SELECT id, device_id, session_id, kind, taken_at, device_time, primary_value, unit, summary, fields, stored_at
		FROM measurements`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY taken_at DESC, id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list measurements: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the number of stored measurements.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM measurements").Scan(&n)
	return n, err
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		r                Record
		kind, takenAt    string
		storedAt, fields string
		primary          sql.NullFloat64
	)
	if err := rows.Scan(&r.ID, &r.DeviceID, &r.SessionID, &kind, &takenAt, &r.DeviceTime,
		&primary, &r.Unit, &r.Summary, &fields, &storedAt); err != nil {
		return Record{}, fmt.Errorf("scan measurement: %w", err)
	}
	r.Kind = measurement.Kind(kind)
	if primary.Valid {
		v := primary.Float64
		r.PrimaryValue = &v
	}

	var err error
	if r.TakenAt, err = time.Parse(time.RFC3339Nano, takenAt); err != nil {
		return Record{}, fmt.Errorf("parse taken_at of %d: %w", r.ID, err)
	}
	if r.StoredAt, err = time.Parse(time.RFC3339Nano, storedAt); err != nil {
		return Record{}, fmt.Errorf("parse stored_at of %d: %w", r.ID, err)
	}
	r.Fields = orderedmap.New[string, any]()
	if err := r.Fields.UnmarshalJSON([]byte(fields)); err != nil {
		return Record{}, fmt.Errorf("decode fields of %d: %w", r.ID, err)
	}
	return r, nil
}
