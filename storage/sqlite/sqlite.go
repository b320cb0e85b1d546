// Package sqlite keeps a local history of readings.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mklimuk/weather/acquisition"
	"github.com/mklimuk/weather/bme280"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS readings (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          INTEGER NOT NULL,
	temperature REAL NOT NULL,
	pressure    REAL NOT NULL,
	humidity    REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS readings_ts ON readings (ts);
`

const insertSQL = `INSERT INTO readings (ts, temperature, pressure, humidity) VALUES (?, ?, ?, ?)`

const recentSQL = `
SELECT ts, temperature, pressure, humidity
FROM readings
ORDER BY ts DESC, id DESC
LIMIT ?`

type Config struct {
	Source string `yaml:"source"`
}

// Record is a stored reading.
type Record struct {
	Time time.Time
	bme280.Reading
}

var _ acquisition.Emitter = &Store{}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Source == "" {
		return nil, fmt.Errorf("sqlite: database path is empty")
	}
	db, err := sql.Open("sqlite", cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *Store) Emit(ctx context.Context, r bme280.Reading) error {
	_, err := s.db.ExecContext(ctx, insertSQL, s.now().UnixMicro(), r.Temperature, r.Pressure, r.Humidity)
	if err != nil {
		return fmt.Errorf("sqlite: insert reading: %w", err)
	}
	return nil
}

// Recent returns up to n readings, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, recentSQL, n)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent query: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var ts int64
		var rec Record
		if err := rows.Scan(&ts, &rec.Temperature, &rec.Pressure, &rec.Humidity); err != nil {
			return nil, fmt.Errorf("sqlite: recent scan: %w", err)
		}
		rec.Time = time.UnixMicro(ts).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}
