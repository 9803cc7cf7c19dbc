package inventory

import (
	"context"
	"time"

	"pharmapos/internal/core/id"
)

// Repository defines the interface for batch persistence.
// Mutating methods are expected to run inside the caller's transaction;
// the postgres implementation picks the transaction up from the context.
type Repository interface {
	// Create inserts a new batch.
	Create(ctx context.Context, batch *Batch) error

	// GetByID retrieves a batch by ID.
	GetByID(ctx context.Context, id id.ID) (*Batch, error)

	// GetForUpdate retrieves a batch with a row lock.
	GetForUpdate(ctx context.Context, id id.ID) (*Batch, error)

	// FindByMedicineAndNumber retrieves the batch for a medicine+lot pair.
	FindByMedicineAndNumber(ctx context.Context, medicineID id.ID, batchNumber string) (*Batch, error)

	// Update modifies a batch (with optimistic locking).
	Update(ctx context.Context, batch *Batch) error

	// LockEligible returns sellable batches of a medicine in FEFO order
	// (expiry ASC, received_at ASC, id ASC) with row locks held, so the
	// quantities are stable for the rest of the transaction.
	LockEligible(ctx context.Context, medicineID id.ID, asOf time.Time) ([]*Batch, error)

	// DecrementQuantity takes qty units from a batch only when enough
	// remain. Returns false when the guard fails, never oversells.
	DecrementQuantity(ctx context.Context, batchID id.ID, qty int64) (bool, error)

	// ListByMedicine returns all batches of a medicine, FEFO order.
	ListByMedicine(ctx context.Context, medicineID id.ID) ([]*Batch, error)

	// SellableQuantity sums sellable stock of a medicine.
	SellableQuantity(ctx context.Context, medicineID id.ID, asOf time.Time) (int64, error)

	// Expired returns batches past expiry that still hold stock.
	Expired(ctx context.Context, asOf time.Time) ([]*Batch, error)

	// NearExpiry returns sellable batches expiring within the window.
	NearExpiry(ctx context.Context, asOf time.Time, window time.Duration) ([]*Batch, error)

	// LowStock returns active medicines whose sellable stock is below
	// their minimum stock level.
	LowStock(ctx context.Context, asOf time.Time) ([]LowStockItem, error)
}
