package memory

import (
	"context"
	"sync"

	"github.com/untruncd/untruncd/src/internal/domain"
)

// InMemoryHistoryRepo keeps the most recent repair outcomes in memory.
// Used when no database is configured; state does not survive restarts.
type InMemoryHistoryRepo struct {
	mu      sync.RWMutex
	records []domain.RepairRecord
	cap     int
}

func NewHistoryRepo() *InMemoryHistoryRepo {
	return &InMemoryHistoryRepo{cap: 1000}
}

func (r *InMemoryHistoryRepo) Record(ctx context.Context, rec *domain.RepairRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, *rec)
	if len(r.records) > r.cap {
		r.records = r.records[len(r.records)-r.cap:]
	}
	return nil
}

func (r *InMemoryHistoryRepo) ListRecent(ctx context.Context, limit int) ([]domain.RepairRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit > len(r.records) {
		limit = len(r.records)
	}
	out := make([]domain.RepairRecord, 0, limit)
	for i := len(r.records) - 1; i >= len(r.records)-limit; i-- {
		out = append(out, r.records[i])
	}
	return out, nil
}
