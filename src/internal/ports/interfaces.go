package ports

import (
	"context"

	"github.com/untruncd/untruncd/src/internal/domain"
)

// RepairRunner supervises one external repair-tool invocation.
type RepairRunner interface {
	Repair(ctx context.Context, inputPath, outputPath, referencePath string) error
}

// HistoryRepository records terminal repair outcomes for reporting.
type HistoryRepository interface {
	Record(ctx context.Context, rec *domain.RepairRecord) error
	ListRecent(ctx context.Context, limit int) ([]domain.RepairRecord, error)
}

// ObjectCatalog lists repair candidates stored remotely under a prefix.
type ObjectCatalog interface {
	ListVideos(ctx context.Context, bucket, prefix string) ([]domain.Candidate, error)
}

// JobSubmitter hands a sized job description to a batch execution service
// and returns the platform's opaque job identifier. The caller never polls.
type JobSubmitter interface {
	Submit(ctx context.Context, spec *domain.BatchJobSpec) (string, error)
}
