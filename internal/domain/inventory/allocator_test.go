package inventory

import (
	"bytes"
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/core/id"
	"pharmapos/internal/core/types"
	"pharmapos/internal/domain/catalogs/medicine"
)

// fakeBatchRepo is an in-memory Repository for allocator tests.
type fakeBatchRepo struct {
	batches []*Batch
}

func (f *fakeBatchRepo) Create(ctx context.Context, b *Batch) error {
	f.batches = append(f.batches, b)
	return nil
}

func (f *fakeBatchRepo) GetByID(ctx context.Context, batchID id.ID) (*Batch, error) {
	for _, b := range f.batches {
		if b.ID == batchID {
			return b, nil
		}
	}
	return nil, apperror.NewNotFound("batch", batchID.String())
}

func (f *fakeBatchRepo) GetForUpdate(ctx context.Context, batchID id.ID) (*Batch, error) {
	return f.GetByID(ctx, batchID)
}

func (f *fakeBatchRepo) FindByMedicineAndNumber(ctx context.Context, medicineID id.ID, batchNumber string) (*Batch, error) {
	for _, b := range f.batches {
		if b.MedicineID == medicineID && b.BatchNumber == batchNumber {
			return b, nil
		}
	}
	return nil, apperror.NewNotFound("batch", batchNumber)
}

func (f *fakeBatchRepo) Update(ctx context.Context, b *Batch) error {
	return nil
}

func (f *fakeBatchRepo) LockEligible(ctx context.Context, medicineID id.ID, asOf time.Time) ([]*Batch, error) {
	var eligible []*Batch
	for _, b := range f.batches {
		if b.MedicineID == medicineID && b.Sellable(asOf) {
			eligible = append(eligible, b)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if !a.ExpiryDate.Equal(b.ExpiryDate) {
			return a.ExpiryDate.Before(b.ExpiryDate)
		}
		if !a.ReceivedAt.Equal(b.ReceivedAt) {
			return a.ReceivedAt.Before(b.ReceivedAt)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
	return eligible, nil
}

func (f *fakeBatchRepo) DecrementQuantity(ctx context.Context, batchID id.ID, qty int64) (bool, error) {
	for _, b := range f.batches {
		if b.ID == batchID {
			if b.Quantity < qty {
				return false, nil
			}
			b.Quantity -= qty
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBatchRepo) ListByMedicine(ctx context.Context, medicineID id.ID) ([]*Batch, error) {
	var out []*Batch
	for _, b := range f.batches {
		if b.MedicineID == medicineID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBatchRepo) SellableQuantity(ctx context.Context, medicineID id.ID, asOf time.Time) (int64, error) {
	var total int64
	for _, b := range f.batches {
		if b.MedicineID == medicineID && b.Sellable(asOf) {
			total += b.Quantity
		}
	}
	return total, nil
}

func (f *fakeBatchRepo) Expired(ctx context.Context, asOf time.Time) ([]*Batch, error) {
	var out []*Batch
	for _, b := range f.batches {
		if b.IsExpired(asOf) && b.Quantity > 0 {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBatchRepo) NearExpiry(ctx context.Context, asOf time.Time, window time.Duration) ([]*Batch, error) {
	limit := asOf.Add(window)
	var out []*Batch
	for _, b := range f.batches {
		if b.Sellable(asOf) && !b.ExpiryDate.After(limit) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBatchRepo) LowStock(ctx context.Context, asOf time.Time) ([]LowStockItem, error) {
	return nil, nil
}

// fakeSavepoint mimics savepoint semantics over the in-memory repo:
// batch quantities are snapshotted before the pass and restored when
// the pass fails.
type fakeSavepoint struct {
	repo *fakeBatchRepo
}

func (f *fakeSavepoint) WithSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	saved := make(map[id.ID]int64, len(f.repo.batches))
	for _, b := range f.repo.batches {
		saved[b.ID] = b.Quantity
	}
	if err := fn(ctx); err != nil {
		for _, b := range f.repo.batches {
			b.Quantity = saved[b.ID]
		}
		return err
	}
	return nil
}

// flakyBatchRepo reports decrement misses on chosen calls, like a
// concurrent writer slipping in between the lock and the decrement.
type flakyBatchRepo struct {
	*fakeBatchRepo
	decrCalls int
	missOn    func(call int) bool
}

func (f *flakyBatchRepo) DecrementQuantity(ctx context.Context, batchID id.ID, qty int64) (bool, error) {
	f.decrCalls++
	if f.missOn != nil && f.missOn(f.decrCalls) {
		return false, nil
	}
	return f.fakeBatchRepo.DecrementQuantity(ctx, batchID, qty)
}

// fakeMedicines is an in-memory MedicineDirectory.
type fakeMedicines struct {
	items map[id.ID]*medicine.Medicine
}

func (f *fakeMedicines) GetByID(ctx context.Context, medID id.ID) (*medicine.Medicine, error) {
	if m, ok := f.items[medID]; ok {
		return m, nil
	}
	return nil, apperror.NewNotFound("medicine", medID.String())
}

func newTestAllocator(repo *fakeBatchRepo, meds *fakeMedicines) *Allocator {
	return NewAllocator(repo, meds, &fakeSavepoint{repo: repo})
}

func newTestMedicine() *medicine.Medicine {
	return medicine.NewMedicine("MED-000001", "Paracetamol 500mg", "Paracetamol", "Acme Pharma", medicine.CategoryTablet)
}

func testBatch(medID id.ID, number string, expiry time.Time, qty int64, price string) *Batch {
	now := time.Now().UTC()
	b := NewBatch(medID, number, now.AddDate(-1, 0, 0), expiry, qty)
	b.SellingPrice = types.MustMoney(price)
	return b
}

func TestAllocate_FEFOOrder(t *testing.T) {
	med := newTestMedicine()
	now := time.Now().UTC()

	late := testBatch(med.ID, "LOT-LATE", now.AddDate(1, 0, 0), 100, "12.00")
	early := testBatch(med.ID, "LOT-EARLY", now.AddDate(0, 3, 0), 30, "10.00")

	repo := &fakeBatchRepo{batches: []*Batch{late, early}}
	alloc := newTestAllocator(repo, &fakeMedicines{items: map[id.ID]*medicine.Medicine{med.ID: med}})

	allocs, err := alloc.Allocate(context.Background(), med.ID, 50)
	require.NoError(t, err)
	require.Len(t, allocs, 2)

	// Earliest expiry is drained first.
	assert.Equal(t, "LOT-EARLY", allocs[0].BatchNumber)
	assert.Equal(t, int64(30), allocs[0].Quantity)
	assert.Equal(t, "LOT-LATE", allocs[1].BatchNumber)
	assert.Equal(t, int64(20), allocs[1].Quantity)

	assert.Equal(t, int64(0), early.Quantity)
	assert.Equal(t, int64(80), late.Quantity)
	assert.Equal(t, int64(50), TotalQuantity(allocs))
}

func TestAllocate_TieBreakByReceivedAt(t *testing.T) {
	med := newTestMedicine()
	now := time.Now().UTC()
	expiry := now.AddDate(0, 6, 0)

	newer := testBatch(med.ID, "LOT-NEW", expiry, 40, "10.00")
	newer.ReceivedAt = now
	older := testBatch(med.ID, "LOT-OLD", expiry, 40, "10.00")
	older.ReceivedAt = now.AddDate(0, -2, 0)

	repo := &fakeBatchRepo{batches: []*Batch{newer, older}}
	alloc := newTestAllocator(repo, &fakeMedicines{items: map[id.ID]*medicine.Medicine{med.ID: med}})

	allocs, err := alloc.Allocate(context.Background(), med.ID, 10)
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, "LOT-OLD", allocs[0].BatchNumber)
}

func TestAllocate_SkipsIneligibleBatches(t *testing.T) {
	med := newTestMedicine()
	now := time.Now().UTC()

	expired := testBatch(med.ID, "LOT-EXPIRED", now.AddDate(0, -1, 0), 100, "10.00")
	damaged := testBatch(med.ID, "LOT-DAMAGED", now.AddDate(1, 0, 0), 100, "10.00")
	damaged.Status = StatusDamaged
	good := testBatch(med.ID, "LOT-GOOD", now.AddDate(1, 0, 0), 20, "10.00")

	repo := &fakeBatchRepo{batches: []*Batch{expired, damaged, good}}
	alloc := newTestAllocator(repo, &fakeMedicines{items: map[id.ID]*medicine.Medicine{med.ID: med}})

	allocs, err := alloc.Allocate(context.Background(), med.ID, 20)
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, "LOT-GOOD", allocs[0].BatchNumber)

	// Expired and damaged stock untouched.
	assert.Equal(t, int64(100), expired.Quantity)
	assert.Equal(t, int64(100), damaged.Quantity)
}

func TestAllocate_InsufficientStock(t *testing.T) {
	med := newTestMedicine()
	now := time.Now().UTC()

	b1 := testBatch(med.ID, "LOT-1", now.AddDate(0, 3, 0), 5, "10.00")
	b2 := testBatch(med.ID, "LOT-2", now.AddDate(0, 6, 0), 7, "10.00")

	repo := &fakeBatchRepo{batches: []*Batch{b1, b2}}
	alloc := newTestAllocator(repo, &fakeMedicines{items: map[id.ID]*medicine.Medicine{med.ID: med}})

	_, err := alloc.Allocate(context.Background(), med.ID, 13)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, int64(13), appErr.Details["requested"])
	assert.Equal(t, int64(12), appErr.Details["available"])

	// All-or-nothing: nothing was taken.
	assert.Equal(t, int64(5), b1.Quantity)
	assert.Equal(t, int64(7), b2.Quantity)
}

func TestAllocate_MedicineNotFound(t *testing.T) {
	repo := &fakeBatchRepo{}
	alloc := newTestAllocator(repo, &fakeMedicines{items: map[id.ID]*medicine.Medicine{}})

	_, err := alloc.Allocate(context.Background(), id.New(), 1)
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err), "unknown medicine must be a not-found error, not insufficient stock")
}

func TestAllocate_InactiveMedicine(t *testing.T) {
	med := newTestMedicine()
	med.Status = medicine.StatusInactive
	now := time.Now().UTC()

	repo := &fakeBatchRepo{batches: []*Batch{
		testBatch(med.ID, "LOT-1", now.AddDate(1, 0, 0), 100, "10.00"),
	}}
	alloc := newTestAllocator(repo, &fakeMedicines{items: map[id.ID]*medicine.Medicine{med.ID: med}})

	_, err := alloc.Allocate(context.Background(), med.ID, 1)
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeBatchNotSellable, appErr.Code)
}

func TestAllocate_RejectsNonPositiveQuantity(t *testing.T) {
	med := newTestMedicine()
	alloc := newTestAllocator(&fakeBatchRepo{}, &fakeMedicines{items: map[id.ID]*medicine.Medicine{med.ID: med}})

	_, err := alloc.Allocate(context.Background(), med.ID, 0)
	require.Error(t, err)

	_, err = alloc.Allocate(context.Background(), med.ID, -5)
	require.Error(t, err)
}

func TestAllocate_SingleBatchExactFit(t *testing.T) {
	med := newTestMedicine()
	now := time.Now().UTC()

	b := testBatch(med.ID, "LOT-1", now.AddDate(0, 3, 0), 25, "4.50")
	repo := &fakeBatchRepo{batches: []*Batch{b}}
	alloc := newTestAllocator(repo, &fakeMedicines{items: map[id.ID]*medicine.Medicine{med.ID: med}})

	allocs, err := alloc.Allocate(context.Background(), med.ID, 25)
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, int64(25), allocs[0].Quantity)
	assert.True(t, allocs[0].UnitPrice.Equal(types.MustMoney("4.50")))
	assert.Equal(t, int64(0), b.Quantity)
}

func TestAllocate_RetryAfterDecrementMiss(t *testing.T) {
	med := newTestMedicine()
	now := time.Now().UTC()

	b1 := testBatch(med.ID, "LOT-1", now.AddDate(0, 1, 0), 5, "10.00")
	b2 := testBatch(med.ID, "LOT-2", now.AddDate(0, 2, 0), 5, "10.00")
	b3 := testBatch(med.ID, "LOT-3", now.AddDate(0, 3, 0), 10, "10.00")

	base := &fakeBatchRepo{batches: []*Batch{b1, b2, b3}}
	// The second decrement of the first pass misses; the pass already
	// took 5 units from LOT-1 by then.
	repo := &flakyBatchRepo{
		fakeBatchRepo: base,
		missOn:        func(call int) bool { return call == 2 },
	}
	alloc := NewAllocator(repo, &fakeMedicines{items: map[id.ID]*medicine.Medicine{med.ID: med}}, &fakeSavepoint{repo: base})

	allocs, err := alloc.Allocate(context.Background(), med.ID, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(8), TotalQuantity(allocs))

	// The failed pass was rolled back before the retry, so the stock
	// removed equals the quantity sold.
	remaining := b1.Quantity + b2.Quantity + b3.Quantity
	assert.Equal(t, int64(12), remaining, "stock removed must equal quantity sold")
	assert.Equal(t, int64(0), b1.Quantity)
	assert.Equal(t, int64(2), b2.Quantity)
	assert.Equal(t, int64(10), b3.Quantity)
}

func TestAllocate_PersistentMissLeavesStockUntouched(t *testing.T) {
	med := newTestMedicine()
	now := time.Now().UTC()

	b1 := testBatch(med.ID, "LOT-1", now.AddDate(0, 1, 0), 5, "10.00")
	b2 := testBatch(med.ID, "LOT-2", now.AddDate(0, 2, 0), 10, "10.00")

	base := &fakeBatchRepo{batches: []*Batch{b1, b2}}
	// Every pass loses the race on its second decrement.
	repo := &flakyBatchRepo{
		fakeBatchRepo: base,
		missOn:        func(call int) bool { return call%2 == 0 },
	}
	alloc := NewAllocator(repo, &fakeMedicines{items: map[id.ID]*medicine.Medicine{med.ID: med}}, &fakeSavepoint{repo: base})

	_, err := alloc.Allocate(context.Background(), med.ID, 8)
	require.Error(t, err)
	assert.True(t, apperror.IsConcurrentModification(err))

	assert.Equal(t, int64(5), b1.Quantity)
	assert.Equal(t, int64(10), b2.Quantity)
}
