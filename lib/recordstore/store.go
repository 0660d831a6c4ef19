package recordstore

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"fahstats/lib/extract"
)

// ErrIO wraps filesystem failures (unwritable path, disk full, path is a
// directory). Match with errors.Is.
var ErrIO = errors.New("record store i/o")

// Header names the schema fields in the order data rows are written.
var Header = []string{"timestamp", "username", "score", "workunits", "team"}

// RFC 3339 in UTC sorts lexically, so the store stays sortable as text
const timeFormat = time.RFC3339

// Record is one captured snapshot of a user's stats.
type Record struct {
	Time time.Time
	extract.UserStats
}

func (r Record) fields() []string {
	return []string{
		r.Time.UTC().Format(timeFormat),
		r.Username,
		strconv.FormatInt(r.Score, 10),
		strconv.FormatInt(r.WorkUnits, 10),
		r.Team,
	}
}

// Append writes record as one CSV line at the end of the store at path.
// A header line is written first when the store is new or empty. The
// whole payload is rendered up front and issued as a single write, so a
// failed append never leaves a header-only file or a partial row behind.
func Append(path string, record Record) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrIO, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrIO, err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("%w: %s", ErrIO, err)
		}
	}
	if err := w.Write(record.fields()); err != nil {
		return fmt.Errorf("%w: %s", ErrIO, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: %s", ErrIO, err)
	}

	if _, err := file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %s", ErrIO, err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("%w: %s", ErrIO, err)
	}
	return nil
}

// Read returns every record in the store, oldest first. The header line
// is skipped; its contents are not validated against the current schema
// (an old store written with a previous schema is left untouched).
func Read(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIO, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(Header)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read record store: %s", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		record, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("read record store: row %d: %s", i+2, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func parseRow(row []string) (Record, error) {
	ts, err := time.Parse(timeFormat, row[0])
	if err != nil {
		return Record{}, err
	}
	score, err := strconv.ParseInt(row[2], 10, 64)
	if err != nil {
		return Record{}, err
	}
	workunits, err := strconv.ParseInt(row[3], 10, 64)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Time: ts,
		UserStats: extract.UserStats{
			Username:  row[1],
			Score:     score,
			WorkUnits: workunits,
			Team:      row[4],
		},
	}, nil
}
