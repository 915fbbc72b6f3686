package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/i474232898/airquality-monitor/internal/telemetry"
)

const schemaVersion = "1"

const schema = `
CREATE TABLE IF NOT EXISTS store_meta (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS readings (
  seq              INTEGER PRIMARY KEY,
  ts_unix_nano     INTEGER NOT NULL,
  aqi              INTEGER,
  tvoc             REAL,
  eco2             REAL,
  indoor_temp      REAL,
  indoor_humidity  REAL,
  outdoor_temp     REAL,
  outdoor_humidity REAL
);
`

const insertReading = `
INSERT INTO readings (seq, ts_unix_nano, aqi, tvoc, eco2, indoor_temp, indoor_humidity, outdoor_temp, outdoor_humidity)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectReadings = `
SELECT ts_unix_nano, aqi, tvoc, eco2, indoor_temp, indoor_humidity, outdoor_temp, outdoor_humidity
FROM readings ORDER BY seq`

// SQLitePersister stores the reading sequence in a single SQLite file.
// Every Save rewrites the table inside one transaction, so the file always
// holds one complete snapshot.
type SQLitePersister struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens the store file at path, creating it with the current
// schema if it does not exist. An existing file that is not a readable store
// yields *telemetry.CorruptStoreError.
func OpenSQLite(ctx context.Context, path string) (*SQLitePersister, error) {
	// A zero-length file is what an interrupted first start leaves behind;
	// it holds no readings and is initialized like a missing one.
	existed := true
	if fi, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		existed = false
	} else if err != nil {
		return nil, &telemetry.CorruptStoreError{Path: path, Err: err}
	} else if fi.Size() == 0 {
		existed = false
	}

	dsn, err := buildDSN(path)
	if err != nil {
		return nil, &telemetry.PersistenceError{Op: "create", Err: err}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	// One writer at a time; readers go through the in-memory ring.
	db.SetMaxOpenConns(1)

	p := &SQLitePersister{db: db, path: path}

	if !existed {
		if err := p.initSchema(ctx); err != nil {
			_ = db.Close()
			return nil, &telemetry.PersistenceError{Op: "create", Err: err}
		}
		return p, nil
	}

	if err := p.checkSchema(ctx); err != nil {
		_ = db.Close()
		return nil, &telemetry.CorruptStoreError{Path: path, Err: err}
	}
	return p, nil
}

func (p *SQLitePersister) initSchema(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO store_meta (key, value) VALUES ('schema_version', ?)`, schemaVersion); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return tx.Commit()
}

func (p *SQLitePersister) checkSchema(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	var version string
	err := p.db.QueryRowContext(ctx,
		`SELECT value FROM store_meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("unsupported schema version %q (want %q)", version, schemaVersion)
	}
	return nil
}

// Load returns the persisted readings oldest first.
func (p *SQLitePersister) Load(ctx context.Context) ([]telemetry.SensorReading, error) {
	rows, err := p.db.QueryContext(ctx, selectReadings)
	if err != nil {
		return nil, &telemetry.CorruptStoreError{Path: p.path, Err: err}
	}
	defer rows.Close()

	var out []telemetry.SensorReading
	for rows.Next() {
		var (
			ts                            int64
			aqi                           sql.NullInt64
			tvoc, eco2, temp, hum, oT, oH sql.NullFloat64
		)
		if err := rows.Scan(&ts, &aqi, &tvoc, &eco2, &temp, &hum, &oT, &oH); err != nil {
			return nil, &telemetry.CorruptStoreError{Path: p.path, Err: err}
		}
		r := telemetry.SensorReading{
			Timestamp:       time.Unix(0, ts).UTC(),
			TVOC:            floatPtr(tvoc),
			ECO2:            floatPtr(eco2),
			IndoorTemp:      floatPtr(temp),
			IndoorHumidity:  floatPtr(hum),
			OutdoorTemp:     floatPtr(oT),
			OutdoorHumidity: floatPtr(oH),
		}
		if aqi.Valid {
			v := int(aqi.Int64)
			r.AQI = &v
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &telemetry.CorruptStoreError{Path: p.path, Err: err}
	}
	return out, nil
}

// Save replaces the persisted sequence with readings.
func (p *SQLitePersister) Save(ctx context.Context, readings []telemetry.SensorReading) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return &telemetry.PersistenceError{Op: "begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM readings`); err != nil {
		return &telemetry.PersistenceError{Op: "truncate", Err: err}
	}

	stmt, err := tx.PrepareContext(ctx, insertReading)
	if err != nil {
		return &telemetry.PersistenceError{Op: "prepare", Err: err}
	}
	defer stmt.Close()

	for i, r := range readings {
		var aqi any
		if r.AQI != nil {
			aqi = int64(*r.AQI)
		}
		if _, err := stmt.ExecContext(ctx,
			i,
			r.Timestamp.UnixNano(),
			aqi,
			nullable(r.TVOC),
			nullable(r.ECO2),
			nullable(r.IndoorTemp),
			nullable(r.IndoorHumidity),
			nullable(r.OutdoorTemp),
			nullable(r.OutdoorHumidity),
		); err != nil {
			return &telemetry.PersistenceError{Op: "insert", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &telemetry.PersistenceError{Op: "commit", Err: err}
	}
	return nil
}

// Close closes the underlying database.
func (p *SQLitePersister) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func buildDSN(path string) (string, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	// synchronous=FULL: a committed append survives power loss.
	params := []string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
		"_synchronous=FULL",
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}
