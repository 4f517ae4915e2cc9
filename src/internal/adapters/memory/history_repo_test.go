package memory

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/untruncd/untruncd/src/internal/domain"
)

func TestHistoryRepo_RecordAndListRecent(t *testing.T) {
	repo := NewHistoryRepo()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Record(ctx, &domain.RepairRecord{
			ID:      strconv.Itoa(i),
			Path:    "cam" + strconv.Itoa(i) + ".mp4",
			Outcome: domain.OutcomeRepaired,
		}))
	}

	records, err := repo.ListRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	// Newest first.
	assert.Equal(t, "4", records[0].ID)
	assert.Equal(t, "3", records[1].ID)
	assert.Equal(t, "2", records[2].ID)

	all, err := repo.ListRecent(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestHistoryRepo_CapsRetainedRecords(t *testing.T) {
	repo := NewHistoryRepo()
	repo.cap = 10
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		require.NoError(t, repo.Record(ctx, &domain.RepairRecord{ID: strconv.Itoa(i)}))
	}

	records, err := repo.ListRecent(ctx, 100)
	require.NoError(t, err)
	require.Len(t, records, 10)
	assert.Equal(t, "24", records[0].ID)
	assert.Equal(t, "15", records[9].ID)
}
