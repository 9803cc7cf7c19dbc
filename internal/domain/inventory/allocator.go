package inventory

import (
	"context"
	"fmt"
	"time"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/core/id"
	"pharmapos/internal/core/tx"
	"pharmapos/internal/domain/catalogs/medicine"
	"pharmapos/pkg/logger"
)

// allocateRetries bounds re-runs of the lock+decrement pass when a
// conditional decrement misses.
const allocateRetries = 3

// MedicineDirectory is the slice of the medicine service the allocator
// needs: distinguishing "unknown medicine" from "no stock".
type MedicineDirectory interface {
	GetByID(ctx context.Context, id id.ID) (*medicine.Medicine, error)
}

// Allocator withdraws stock in FEFO order. It must be called inside the
// caller's transaction; every decrement it makes rolls back with the
// caller. Each lock+decrement pass runs in its own savepoint, so a pass
// that loses a decrement race is undone completely before the retry.
type Allocator struct {
	repo      Repository
	medicines MedicineDirectory
	txm       tx.SavepointManager
}

// NewAllocator creates a new Allocator.
func NewAllocator(repo Repository, medicines MedicineDirectory, txm tx.SavepointManager) *Allocator {
	return &Allocator{
		repo:      repo,
		medicines: medicines,
		txm:       txm,
	}
}

// Allocate withdraws qty units of a medicine across its sellable batches,
// earliest expiry first. All-or-nothing: either the full quantity is
// taken and the allocations returned, or nothing is changed and an error
// is returned.
//
// Eligible batches are locked first, so concurrent sales of the same
// medicine serialize on the batch rows and the availability pre-check
// stays valid for the rest of the transaction.
func (a *Allocator) Allocate(ctx context.Context, medicineID id.ID, qty int64) ([]Allocation, error) {
	if qty <= 0 {
		return nil, apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}

	med, err := a.medicines.GetByID(ctx, medicineID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("medicine", medicineID.String())
		}
		return nil, fmt.Errorf("get medicine: %w", err)
	}
	if !med.IsActive() {
		return nil, apperror.NewBusinessRule(apperror.CodeBatchNotSellable,
			fmt.Sprintf("medicine %s is not active", med.Name)).
			WithDetail("medicineId", medicineID.String())
	}

	now := time.Now().UTC()

	var lastErr error
	for attempt := 0; attempt < allocateRetries; attempt++ {
		var allocs []Allocation
		err := a.txm.WithSavepoint(ctx, func(ctx context.Context) error {
			var passErr error
			allocs, passErr = a.tryAllocate(ctx, medicineID, qty, now)
			return passErr
		})
		if err == nil {
			return allocs, nil
		}
		if !apperror.IsConcurrentModification(err) {
			return nil, err
		}
		lastErr = err
		logger.Warn(ctx, "allocation pass lost a decrement race, retrying",
			"medicine_id", medicineID,
			"attempt", attempt+1,
		)
	}

	return nil, lastErr
}

// tryAllocate runs one lock+decrement pass.
func (a *Allocator) tryAllocate(ctx context.Context, medicineID id.ID, qty int64, asOf time.Time) ([]Allocation, error) {
	batches, err := a.repo.LockEligible(ctx, medicineID, asOf)
	if err != nil {
		return nil, fmt.Errorf("lock eligible batches: %w", err)
	}

	var available int64
	for _, b := range batches {
		available += b.Quantity
	}
	if available < qty {
		return nil, apperror.NewInsufficientStock(medicineID.String(), qty, available)
	}

	remaining := qty
	allocs := make([]Allocation, 0, len(batches))

	for _, b := range batches {
		if remaining <= 0 {
			break
		}

		take := b.Quantity
		if take > remaining {
			take = remaining
		}

		ok, err := a.repo.DecrementQuantity(ctx, b.ID, take)
		if err != nil {
			return nil, fmt.Errorf("decrement batch %s: %w", b.ID, err)
		}
		if !ok {
			// The locked quantity moved under us. Should not happen
			// while the row lock is held; bail out and let the caller
			// retry the whole pass.
			return nil, apperror.NewConcurrentModification("batch", b.ID.String())
		}

		allocs = append(allocs, Allocation{
			BatchID:           b.ID,
			BatchNumber:       b.BatchNumber,
			ManufacturingDate: b.ManufacturingDate,
			ExpiryDate:        b.ExpiryDate,
			Quantity:          take,
			UnitPrice:         b.SellingPrice,
		})
		remaining -= take
	}

	if remaining > 0 {
		// Unreachable while the pre-check holds.
		return nil, apperror.NewInsufficientStock(medicineID.String(), qty, qty-remaining)
	}

	return allocs, nil
}
