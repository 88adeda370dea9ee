package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Store is the Postgres-backed ledger of finished research sessions.
type Store struct {
	DB     *sql.DB
	logger *log.Logger
}

// Run statuses.
const (
	RunStatusOK           = "ok"
	RunStatusPlanFailed   = "plan_failed"
	RunStatusReportFailed = "report_failed"
	RunStatusFailed       = "failed"
)

// RunRecord is one persisted research session. The query and report are not
// stored.
type RunRecord struct {
	ID         string    `json:"id"`
	Mode       string    `json:"mode"`
	Status     string    `json:"status"`
	StopReason string    `json:"stop_reason"`
	Iterations int       `json:"iterations"`
	Goals      int       `json:"goals"`
	Evidence   int       `json:"evidence"`
	Error      *string   `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

var (
	metricsOnce    sync.Once
	runsCounter    otelmetric.Int64Counter
	metricsInitErr error
)

func initStoreMetrics() {
	meter := otel.Meter("researchchat/internal/store")
	runsCounter, metricsInitErr = meter.Int64Counter("researchchat.store.runs_saved",
		otelmetric.WithDescription("Research runs written to the ledger."))
}

// NewWithDSN opens and pings the database behind dsn.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db), nil
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{DB: db, logger: log.New(log.Writer(), "[STORE] ", log.LstdFlags)}
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// SaveRun inserts a run, replacing any earlier record with the same id.
func (s *Store) SaveRun(ctx context.Context, rec RunRecord) error {
	if rec.ID == "" {
		return errors.New("run id is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO research_runs (id, mode, status, stop_reason, iterations, goals, evidence, error, duration_ms, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
    status=EXCLUDED.status, stop_reason=EXCLUDED.stop_reason, iterations=EXCLUDED.iterations,
    goals=EXCLUDED.goals, evidence=EXCLUDED.evidence, error=EXCLUDED.error, duration_ms=EXCLUDED.duration_ms`,
		rec.ID, rec.Mode, rec.Status, rec.StopReason, rec.Iterations, rec.Goals, rec.Evidence,
		rec.Error, rec.DurationMS, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	s.logger.Printf("saved run %s (mode=%s status=%s stop=%s)", rec.ID, rec.Mode, rec.Status, rec.StopReason)
	metricsOnce.Do(initStoreMetrics)
	if metricsInitErr == nil {
		runsCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("mode", rec.Mode),
			attribute.String("status", rec.Status),
		))
	}
	return nil
}

const runColumns = `id, mode, status, stop_reason, iterations, goals, evidence, error, duration_ms, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var rec RunRecord
	err := row.Scan(&rec.ID, &rec.Mode, &rec.Status, &rec.StopReason, &rec.Iterations, &rec.Goals,
		&rec.Evidence, &rec.Error, &rec.DurationMS, &rec.CreatedAt)
	return rec, err
}

// ListRuns returns the most recent runs, newest first. limit is clamped to
// 1..100 with a default of 20.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	switch {
	case limit <= 0:
		limit = 20
	case limit > 100:
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+runColumns+` FROM research_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetRun loads one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (RunRecord, bool, error) {
	rec, err := scanRun(s.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM research_runs WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, false, nil
	}
	if err != nil {
		return RunRecord{}, false, err
	}
	return rec, true, nil
}
