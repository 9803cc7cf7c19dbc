// Package inventory provides the batch store and the FEFO allocator.
// Stock is tracked per dated batch; sales consume batches in
// first-expiry-first-out order.
package inventory

import (
	"context"
	"time"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/core/entity"
	"pharmapos/internal/core/id"
	"pharmapos/internal/core/types"
)

// BatchStatus reflects the sellable state of a batch.
type BatchStatus string

const (
	// StatusAvailable means the batch can be allocated to sales.
	StatusAvailable BatchStatus = "available"

	// StatusExpired means the expiry date has passed.
	StatusExpired BatchStatus = "expired"

	// StatusDamaged is a manual override; damaged stock is never sold
	// and the status is never recomputed away.
	StatusDamaged BatchStatus = "damaged"

	// StatusSoldOut means quantity has reached zero.
	StatusSoldOut BatchStatus = "sold-out"
)

// Batch represents a dated stock lot of a single medicine.
type Batch struct {
	entity.BaseDocument

	// MedicineID references the medicine catalog
	MedicineID id.ID `db:"medicine_id" json:"medicineId"`

	// BatchNumber is the manufacturer's lot number, unique per medicine
	BatchNumber string `db:"batch_number" json:"batchNumber"`

	ManufacturingDate time.Time `db:"manufacturing_date" json:"manufacturingDate"`
	ExpiryDate        time.Time `db:"expiry_date" json:"expiryDate"`

	// Quantity is the on-hand unit count, never negative
	Quantity int64 `db:"quantity" json:"quantity"`

	PurchasePrice types.Money `db:"purchase_price" json:"purchasePrice"`
	SellingPrice  types.Money `db:"selling_price" json:"sellingPrice"`

	// SupplierID references the supplier catalog, optional
	SupplierID *id.ID `db:"supplier_id" json:"supplierId,omitempty"`

	// ReceivedAt is when the delivery was booked; FEFO tie-break key
	ReceivedAt time.Time `db:"received_at" json:"receivedAt"`

	Status BatchStatus `db:"status" json:"status"`

	// Notes holds adjustment reasons and free-form remarks
	Notes *string `db:"notes" json:"notes,omitempty"`
}

// NewBatch creates a new Batch with generated ID and timestamps.
func NewBatch(medicineID id.ID, batchNumber string, manufactured, expiry time.Time, qty int64) *Batch {
	now := time.Now().UTC()
	b := &Batch{
		BaseDocument:      entity.NewBaseDocument(),
		MedicineID:        medicineID,
		BatchNumber:       batchNumber,
		ManufacturingDate: manufactured,
		ExpiryDate:        expiry,
		Quantity:          qty,
		ReceivedAt:        now,
		PurchasePrice:     types.Zero(),
		SellingPrice:      types.Zero(),
	}
	b.Status = ComputeStatus(b, now)
	return b
}

// Validate implements entity.Validatable interface.
func (b *Batch) Validate(ctx context.Context) error {
	if id.IsNil(b.MedicineID) {
		return apperror.NewValidation("medicine reference is required").
			WithDetail("field", "medicineId")
	}
	if b.BatchNumber == "" {
		return apperror.NewValidation("batch number is required").
			WithDetail("field", "batchNumber")
	}
	if b.ExpiryDate.IsZero() || b.ManufacturingDate.IsZero() {
		return apperror.NewValidation("manufacturing and expiry dates are required").
			WithDetail("field", "expiryDate")
	}
	if !b.ExpiryDate.After(b.ManufacturingDate) {
		return apperror.NewValidation("expiry date must be after manufacturing date").
			WithDetail("field", "expiryDate")
	}
	if b.ManufacturingDate.After(time.Now()) {
		return apperror.NewValidation("manufacturing date cannot be in the future").
			WithDetail("field", "manufacturingDate")
	}
	if b.Quantity < 0 {
		return apperror.NewValidation("quantity cannot be negative").
			WithDetail("field", "quantity")
	}
	if b.PurchasePrice.IsNegative() || b.SellingPrice.IsNegative() {
		return apperror.NewValidation("prices cannot be negative").
			WithDetail("field", "price")
	}
	return nil
}

// ComputeStatus derives the batch status at a point in time.
// Damaged is sticky: it is a manual override and wins over everything.
// Otherwise: expired when the expiry date is not after asOf, sold-out
// when nothing is left, available in all other cases.
func ComputeStatus(b *Batch, asOf time.Time) BatchStatus {
	if b.Status == StatusDamaged {
		return StatusDamaged
	}
	if !b.ExpiryDate.After(asOf) {
		return StatusExpired
	}
	if b.Quantity <= 0 {
		return StatusSoldOut
	}
	return StatusAvailable
}

// Sellable reports whether the batch can be allocated to a sale at asOf.
func (b *Batch) Sellable(asOf time.Time) bool {
	return b.Quantity > 0 &&
		ComputeStatus(b, asOf) == StatusAvailable &&
		!b.ManufacturingDate.After(asOf)
}

// IsExpired reports whether the batch has passed its expiry date.
func (b *Batch) IsExpired(asOf time.Time) bool {
	return !b.ExpiryDate.After(asOf)
}

// Allocation is one batch's contribution to a stock withdrawal.
type Allocation struct {
	BatchID     id.ID
	BatchNumber string

	ManufacturingDate time.Time
	ExpiryDate        time.Time

	// Quantity taken from this batch
	Quantity int64

	// UnitPrice is the batch selling price at allocation time
	UnitPrice types.Money
}

// TotalQuantity sums the allocated quantities.
func TotalQuantity(allocs []Allocation) int64 {
	var total int64
	for _, a := range allocs {
		total += a.Quantity
	}
	return total
}

// LowStockItem describes a medicine whose sellable stock is below threshold.
type LowStockItem struct {
	MedicineID   id.ID  `db:"medicine_id" json:"medicineId"`
	MedicineName string `db:"medicine_name" json:"medicineName"`
	CurrentStock int64  `db:"current_stock" json:"currentStock"`
	MinimumStock int64  `db:"minimum_stock" json:"minimumStock"`
	Deficit      int64  `db:"deficit" json:"deficit"`
}
