// Package snapshotdb mirrors recorded stats into a local sqlite
// database so history can be queried without re-reading the CSV store.
// The CSV record store stays the source of truth.
package snapshotdb

import (
	"context"
	"database/sql"
	"os"
	"time"

	"fahstats/lib/extract"
	"fahstats/lib/recordstore"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	time INTEGER NOT NULL,
	username TEXT NOT NULL,
	score INTEGER NOT NULL,
	workunits INTEGER NOT NULL,
	team TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_username_time ON snapshots (username, time);
`

type Store struct {
	db *sql.DB
}

func Open(path string) (Store, error) {
	if path != ":memory:" {
		_, err := os.Stat(path)
		if os.IsNotExist(err) {
			f, err := os.Create(path)
			if err != nil {
				return Store{}, err
			}
			f.Close()
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return Store{}, err
	}
	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return Store{}, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return Store{}, err
	}
	return Store{db: db}, nil
}

func (s Store) Close() error {
	return s.db.Close()
}

func (s Store) Push(ctx context.Context, record recordstore.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (time, username, score, workunits, team) VALUES (?, ?, ?, ?, ?)`,
		record.Time.UTC().Unix(),
		record.Username,
		record.Score,
		record.WorkUnits,
		record.Team,
	)
	return err
}

// History returns every snapshot recorded for username in insertion
// order. An unknown username yields an empty slice, not an error.
func (s Store) History(ctx context.Context, username string) ([]recordstore.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT time, username, score, workunits, team FROM snapshots WHERE username = ? ORDER BY id`,
		username,
	)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// HistoryAll returns every snapshot for every username in insertion
// order.
func (s Store) HistoryAll(ctx context.Context) ([]recordstore.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT time, username, score, workunits, team FROM snapshots ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]recordstore.Record, error) {
	defer rows.Close()

	var records []recordstore.Record
	for rows.Next() {
		var unix int64
		var stats extract.UserStats
		err := rows.Scan(&unix, &stats.Username, &stats.Score, &stats.WorkUnits, &stats.Team)
		if err != nil {
			return nil, err
		}
		records = append(records, recordstore.Record{
			Time:      time.Unix(unix, 0).UTC(),
			UserStats: stats,
		})
	}
	return records, rows.Err()
}
