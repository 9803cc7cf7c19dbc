package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/core/id"
)

// passthroughTx runs the function directly, no real transaction.
type passthroughTx struct{}

func (passthroughTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func TestAddStock_NewBatch(t *testing.T) {
	repo := &fakeBatchRepo{}
	svc := NewService(repo, passthroughTx{})

	now := time.Now().UTC()
	b := NewBatch(id.New(), "LOT-1", now.AddDate(-1, 0, 0), now.AddDate(1, 0, 0), 100)

	got, err := svc.AddStock(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Quantity)
	assert.Equal(t, StatusAvailable, got.Status)
	assert.Len(t, repo.batches, 1)
}

func TestAddStock_MergesSameLot(t *testing.T) {
	repo := &fakeBatchRepo{}
	svc := NewService(repo, passthroughTx{})

	medID := id.New()
	now := time.Now().UTC()

	first := NewBatch(medID, "LOT-1", now.AddDate(-1, 0, 0), now.AddDate(1, 0, 0), 100)
	_, err := svc.AddStock(context.Background(), first)
	require.NoError(t, err)

	second := NewBatch(medID, "LOT-1", now.AddDate(-1, 0, 0), now.AddDate(1, 0, 0), 40)
	got, err := svc.AddStock(context.Background(), second)
	require.NoError(t, err)

	assert.Equal(t, int64(140), got.Quantity)
	assert.Len(t, repo.batches, 1, "same medicine+lot must merge, not duplicate")
}

func TestAddStock_DifferentLotCreatesBatch(t *testing.T) {
	repo := &fakeBatchRepo{}
	svc := NewService(repo, passthroughTx{})

	medID := id.New()
	now := time.Now().UTC()

	_, err := svc.AddStock(context.Background(), NewBatch(medID, "LOT-1", now.AddDate(-1, 0, 0), now.AddDate(1, 0, 0), 100))
	require.NoError(t, err)
	_, err = svc.AddStock(context.Background(), NewBatch(medID, "LOT-2", now.AddDate(-1, 0, 0), now.AddDate(2, 0, 0), 50))
	require.NoError(t, err)

	assert.Len(t, repo.batches, 2)
}

func TestAdjustStock(t *testing.T) {
	repo := &fakeBatchRepo{}
	svc := NewService(repo, passthroughTx{})

	now := time.Now().UTC()
	b := NewBatch(id.New(), "LOT-1", now.AddDate(-1, 0, 0), now.AddDate(1, 0, 0), 10)
	repo.batches = append(repo.batches, b)

	got, err := svc.AdjustStock(context.Background(), b.ID, -4, "damaged packaging")
	require.NoError(t, err)
	assert.Equal(t, int64(6), got.Quantity)
	require.NotNil(t, got.Notes)
	assert.Equal(t, "damaged packaging", *got.Notes)

	got, err = svc.AdjustStock(context.Background(), b.ID, -6, "recount")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Quantity)
	assert.Equal(t, StatusSoldOut, got.Status)
}

func TestAdjustStock_NegativeGuard(t *testing.T) {
	repo := &fakeBatchRepo{}
	svc := NewService(repo, passthroughTx{})

	now := time.Now().UTC()
	b := NewBatch(id.New(), "LOT-1", now.AddDate(-1, 0, 0), now.AddDate(1, 0, 0), 3)
	repo.batches = append(repo.batches, b)

	_, err := svc.AdjustStock(context.Background(), b.ID, -5, "recount")
	require.Error(t, err)
	assert.Equal(t, int64(3), b.Quantity, "failed adjustment must not change stock")
}

func TestAdjustStock_RequiresReason(t *testing.T) {
	svc := NewService(&fakeBatchRepo{}, passthroughTx{})

	_, err := svc.AdjustStock(context.Background(), id.New(), -1, "")
	require.Error(t, err)
}

func TestAdjustStock_UnknownBatch(t *testing.T) {
	svc := NewService(&fakeBatchRepo{}, passthroughTx{})

	_, err := svc.AdjustStock(context.Background(), id.New(), 1, "recount")
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestMarkDamaged(t *testing.T) {
	repo := &fakeBatchRepo{}
	svc := NewService(repo, passthroughTx{})

	now := time.Now().UTC()
	b := NewBatch(id.New(), "LOT-1", now.AddDate(-1, 0, 0), now.AddDate(1, 0, 0), 10)
	repo.batches = append(repo.batches, b)

	got, err := svc.MarkDamaged(context.Background(), b.ID, "water damage")
	require.NoError(t, err)
	assert.Equal(t, StatusDamaged, got.Status)

	// Damaged stays even after recompute.
	assert.Equal(t, StatusDamaged, ComputeStatus(got, now))
	assert.False(t, got.Sellable(now))
}

func TestExpiredAndNearExpiry(t *testing.T) {
	repo := &fakeBatchRepo{}
	svc := NewService(repo, passthroughTx{})

	medID := id.New()
	now := time.Now().UTC()

	expired := NewBatch(medID, "LOT-EXP", now.AddDate(-2, 0, 0), now.AddDate(0, -1, 0), 5)
	soon := NewBatch(medID, "LOT-SOON", now.AddDate(-1, 0, 0), now.AddDate(0, 1, 0), 5)
	far := NewBatch(medID, "LOT-FAR", now.AddDate(-1, 0, 0), now.AddDate(2, 0, 0), 5)
	repo.batches = append(repo.batches, expired, soon, far)

	got, err := svc.ExpiredBatches(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "LOT-EXP", got[0].BatchNumber)

	near, err := svc.NearExpiry(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, "LOT-SOON", near[0].BatchNumber)
}

func TestAvailableQuantity(t *testing.T) {
	repo := &fakeBatchRepo{}
	svc := NewService(repo, passthroughTx{})

	medID := id.New()
	now := time.Now().UTC()

	repo.batches = append(repo.batches,
		NewBatch(medID, "LOT-1", now.AddDate(-1, 0, 0), now.AddDate(1, 0, 0), 10),
		NewBatch(medID, "LOT-2", now.AddDate(-1, 0, 0), now.AddDate(0, -1, 0), 99), // expired
		NewBatch(id.New(), "LOT-3", now.AddDate(-1, 0, 0), now.AddDate(1, 0, 0), 7), // other medicine
	)

	total, err := svc.AvailableQuantity(context.Background(), medID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)
}
