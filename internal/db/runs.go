package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/wear.report/internal/activity"
	"github.com/banshee-data/wear.report/internal/wear"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("run not found")

// Run kinds.
const (
	KindWear   = "wear"
	KindCounts = "counts"
)

// Run describes one analysis of one recording.
type Run struct {
	ID           uuid.UUID
	Kind         string
	Source       string // input file the recording came from
	SamplingRate float64
	Samples      int
	Channels     int
	Timezone     string
	CreatedAt    time.Time
}

// nullTime stores zero times as NULL and everything else as UTC RFC 3339.
func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseNullTime(s sql.NullString) (time.Time, error) {
	if !s.Valid {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s.String)
}

// insertRun assigns an id and creation time to run and inserts it in tx.
func (db *DB) insertRun(tx *sql.Tx, run *Run) error {
	run.ID = uuid.New()
	run.CreatedAt = db.clock.Now().UTC()
	if run.Timezone == "" {
		run.Timezone = "UTC"
	}
	_, err := tx.Exec(
		`INSERT INTO runs (run_id, kind, source, sampling_rate, samples, channels, timezone, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.Kind, run.Source, run.SamplingRate, run.Samples, run.Channels,
		run.Timezone, run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// RecordWearRun stores a wear labelling and returns the completed Run.
func (db *DB) RecordWearRun(run Run, res *wear.Result) (Run, error) {
	run.Kind = KindWear
	err := db.inTx(func(tx *sql.Tx) error {
		if err := db.insertRun(tx, &run); err != nil {
			return err
		}
		stmt, err := tx.Prepare(`INSERT INTO wear_windows (run_id, window_index, start_time, end_time, wear) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, w := range res.Windows {
			if _, err := stmt.Exec(run.ID.String(), i, nullTime(w.Start), nullTime(w.End), w.Wear); err != nil {
				return fmt.Errorf("failed to insert window %d: %w", i, err)
			}
		}
		return nil
	})
	return run, err
}

// RecordCountsRun stores activity counts and returns the completed Run.
func (db *DB) RecordCountsRun(run Run, res *activity.Result) (Run, error) {
	run.Kind = KindCounts
	err := db.inTx(func(tx *sql.Tx) error {
		if err := db.insertRun(tx, &run); err != nil {
			return err
		}
		stmt, err := tx.Prepare(`INSERT INTO activity_counts (run_id, minute_index, start_time, count) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, s := range res.Samples() {
			if _, err := stmt.Exec(run.ID.String(), i, nullTime(s.Time), s.Count); err != nil {
				return fmt.Errorf("failed to insert minute %d: %w", i, err)
			}
		}
		return nil
	})
	return run, err
}

func (db *DB) inTx(fn func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

const runColumns = `run_id, kind, source, sampling_rate, samples, channels, timezone, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r                Run
		id, createdAtStr string
	)
	if err := s.Scan(&id, &r.Kind, &r.Source, &r.SamplingRate, &r.Samples, &r.Channels, &r.Timezone, &createdAtStr); err != nil {
		return Run{}, err
	}
	var err error
	if r.ID, err = uuid.Parse(id); err != nil {
		return Run{}, fmt.Errorf("bad run id %q: %w", id, err)
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
		return Run{}, fmt.Errorf("bad created_at %q: %w", createdAtStr, err)
	}
	return r, nil
}

// Runs lists runs newest first, optionally restricted to one source.
func (db *DB) Runs(source string) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY created_at DESC, run_id`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun loads one run.
func (db *DB) GetRun(id uuid.UUID) (Run, error) {
	r, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// DeleteRun removes a run and, through the foreign keys, its results.
func (db *DB) DeleteRun(id uuid.UUID) error {
	res, err := db.Exec(`DELETE FROM runs WHERE run_id = ?`, id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// WearWindows loads the stored labelling of a wear run.
func (db *DB) WearWindows(id uuid.UUID) (*wear.Result, error) {
	rows, err := db.Query(`SELECT start_time, end_time, wear FROM wear_windows WHERE run_id = ? ORDER BY window_index`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := &wear.Result{}
	for rows.Next() {
		var (
			start, end sql.NullString
			w          wear.Window
		)
		if err := rows.Scan(&start, &end, &w.Wear); err != nil {
			return nil, err
		}
		if w.Start, err = parseNullTime(start); err != nil {
			return nil, err
		}
		if w.End, err = parseNullTime(end); err != nil {
			return nil, err
		}
		res.Windows = append(res.Windows, w)
	}
	return res, rows.Err()
}

// ActivityCounts loads the stored counts of a counts run.
func (db *DB) ActivityCounts(id uuid.UUID) (*activity.Result, error) {
	rows, err := db.Query(`SELECT start_time, count FROM activity_counts WHERE run_id = ? ORDER BY minute_index`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := &activity.Result{}
	timed := false
	for rows.Next() {
		var (
			start sql.NullString
			count float64
		)
		if err := rows.Scan(&start, &count); err != nil {
			return nil, err
		}
		t, err := parseNullTime(start)
		if err != nil {
			return nil, err
		}
		timed = timed || start.Valid
		res.Counts = append(res.Counts, count)
		res.Times = append(res.Times, t)
	}
	if !timed {
		res.Times = nil
	}
	return res, rows.Err()
}
