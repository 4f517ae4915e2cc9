package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/untruncd/untruncd/src/internal/domain"
)

// NewConnection opens and pings a Postgres connection.
func NewConnection(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

// PostgresHistoryRepo persists terminal repair outcomes.
type PostgresHistoryRepo struct {
	db *sql.DB
}

func NewHistoryRepo(db *sql.DB) *PostgresHistoryRepo {
	return &PostgresHistoryRepo{db: db}
}

func (r *PostgresHistoryRepo) InitSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS repair_history (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			reference TEXT NOT NULL,
			outcome TEXT NOT NULL,
			detail TEXT DEFAULT '',
			duration_ms BIGINT DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

func (r *PostgresHistoryRepo) Record(ctx context.Context, rec *domain.RepairRecord) error {
	query := `
		INSERT INTO repair_history (id, path, reference, outcome, detail, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Path, rec.Reference, string(rec.Outcome), rec.Detail,
		rec.Duration.Milliseconds(), rec.CreatedAt)
	return err
}

func (r *PostgresHistoryRepo) ListRecent(ctx context.Context, limit int) ([]domain.RepairRecord, error) {
	query := `
		SELECT id, path, reference, outcome, detail, duration_ms, created_at
		FROM repair_history
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.RepairRecord
	for rows.Next() {
		var rec domain.RepairRecord
		var outcome string
		var durationMS int64

		if err := rows.Scan(&rec.ID, &rec.Path, &rec.Reference, &outcome, &rec.Detail, &durationMS, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Outcome = domain.RepairOutcome(outcome)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}
