package statsdb

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rjboer/GoTRX/trx"
)

//go:embed schema.sql
var schemaSQL string

const (
	insertSessionSQL = `INSERT INTO sessions (started_at, backend, params) VALUES (?, ?, ?)`
	insertStatsSQL   = `INSERT INTO stats (session_id, recorded_at, tx_underflow, rx_overflow) VALUES (?, ?, ?, ?)`
	selectLatestSQL  = `SELECT recorded_at, tx_underflow, rx_overflow FROM stats
		WHERE session_id = ? ORDER BY recorded_at DESC, id DESC LIMIT 1`
	selectSamplesSQL = `SELECT recorded_at, tx_underflow, rx_overflow FROM stats
		WHERE session_id = ? ORDER BY recorded_at, id`
)

// ErrNoSamples is returned by Latest for a session without recorded stats.
var ErrNoSamples = errors.New("statsdb: no samples recorded")

// Sample is one recorded statistics snapshot.
type Sample struct {
	Session    int64
	RecordedAt time.Time
	Stats      trx.Statistics
}

// Recorder persists driver statistics snapshots in a sqlite database.
type Recorder struct {
	db *sql.DB

	closeOnce sync.Once
	closeErr  error
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", path, "_journal_mode=WAL&_synchronous=NORMAL"))
	if err != nil {
		return nil, fmt.Errorf("opening stats database: %w", err)
	}
	// One writer; sqlite serializes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &Recorder{db: db}, nil
}

// StartSession registers a driver run and returns its id. params is stored
// as JSON when non-nil.
func (r *Recorder) StartSession(ctx context.Context, backend string, params *trx.DriverParams) (int64, error) {
	var paramsJSON sql.NullString
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return 0, fmt.Errorf("marshaling params: %w", err)
		}
		paramsJSON = sql.NullString{String: string(data), Valid: true}
	}
	res, err := r.db.ExecContext(ctx, insertSessionSQL, time.Now().UnixNano(), backend, paramsJSON)
	if err != nil {
		return 0, fmt.Errorf("inserting session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading session id: %w", err)
	}
	return id, nil
}

// Record stores one snapshot for a session.
func (r *Recorder) Record(ctx context.Context, session int64, at time.Time, s trx.Statistics) error {
	if _, err := r.db.ExecContext(ctx, insertStatsSQL, session, at.UnixNano(), s.TXUnderflowCount, s.RXOverflowCount); err != nil {
		return fmt.Errorf("inserting stats: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot of a session.
func (r *Recorder) Latest(ctx context.Context, session int64) (Sample, error) {
	row := r.db.QueryRowContext(ctx, selectLatestSQL, session)
	s, err := scanSample(row.Scan, session)
	if errors.Is(err, sql.ErrNoRows) {
		return Sample{}, ErrNoSamples
	}
	return s, err
}

// Samples returns every snapshot of a session in recording order.
func (r *Recorder) Samples(ctx context.Context, session int64) (samples []Sample, err error) {
	rows, err := r.db.QueryContext(ctx, selectSamplesSQL, session)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	for rows.Next() {
		s, err := scanSample(rows.Scan, session)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

func scanSample(scan func(dest ...any) error, session int64) (Sample, error) {
	var at int64
	s := Sample{Session: session}
	if err := scan(&at, &s.Stats.TXUnderflowCount, &s.Stats.RXOverflowCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Sample{}, err
		}
		return Sample{}, fmt.Errorf("scanning stats: %w", err)
	}
	s.RecordedAt = time.Unix(0, at)
	return s, nil
}

func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.db.Close()
	})
	return r.closeErr
}
