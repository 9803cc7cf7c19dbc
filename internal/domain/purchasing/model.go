// Package purchasing provides the purchase order document and its
// receive flow feeding the batch store.
package purchasing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/core/entity"
	"pharmapos/internal/core/id"
	"pharmapos/internal/core/types"
)

// DefaultSellingMarkup is the percentage added to the purchase price
// when a received line is booked into stock without an explicit
// selling price.
var DefaultSellingMarkup = types.MustMoney("30")

// OrderStatus tracks the delivery lifecycle of a purchase order.
type OrderStatus string

const (
	OrderPending           OrderStatus = "pending"
	OrderPartiallyReceived OrderStatus = "partially-received"
	OrderReceived          OrderStatus = "received"
	OrderCancelled         OrderStatus = "cancelled"
)

// PurchaseOrder represents an order placed with a supplier.
type PurchaseOrder struct {
	entity.Document

	// SupplierID references the supplier catalog
	SupplierID id.ID `db:"supplier_id" json:"supplierId"`

	ExpectedDelivery *time.Time `db:"expected_delivery" json:"expectedDelivery,omitempty"`
	ReceivedDate     *time.Time `db:"received_date" json:"receivedDate,omitempty"`

	// Supplier's own invoice reference, set at receipt
	SupplierInvoiceNumber *string    `db:"supplier_invoice_number" json:"supplierInvoiceNumber,omitempty"`
	SupplierInvoiceDate   *time.Time `db:"supplier_invoice_date" json:"supplierInvoiceDate,omitempty"`

	// Totals (calculated from lines)
	Subtotal types.Money `db:"subtotal" json:"subtotal"`
	Tax      types.Money `db:"tax_amount" json:"taxAmount"`
	Total    types.Money `db:"total_amount" json:"totalAmount"`

	Status OrderStatus `db:"status" json:"status"`

	// OrderedBy is the user who placed the order
	OrderedBy string `db:"ordered_by" json:"orderedBy"`

	// ReceivedBy is the user who booked the delivery
	ReceivedBy *string `db:"received_by" json:"receivedBy,omitempty"`

	// Table part: ordered items
	Lines []PurchaseOrderLine `db:"-" json:"lines"`
}

// PurchaseOrderLine represents one ordered medicine.
type PurchaseOrderLine struct {
	LineID id.ID `db:"line_id" json:"lineId"`
	LineNo int   `db:"line_no" json:"lineNo"`

	MedicineID id.ID `db:"medicine_id" json:"medicineId"`

	// Batch details the received stock will carry
	BatchNumber       string    `db:"batch_number" json:"batchNumber"`
	ManufacturingDate time.Time `db:"manufacturing_date" json:"manufacturingDate"`
	ExpiryDate        time.Time `db:"expiry_date" json:"expiryDate"`

	Quantity  int64       `db:"quantity" json:"quantity"`
	UnitPrice types.Money `db:"unit_price" json:"unitPrice"`
	Subtotal  types.Money `db:"subtotal" json:"subtotal"`

	// Receipt outcome; only the good quantity reaches stock
	ReceivedQuantity int64 `db:"received_quantity" json:"receivedQuantity"`
	DamagedQuantity  int64 `db:"damaged_quantity" json:"damagedQuantity"`
}

// GoodQuantity is the received quantity fit for sale.
func (l *PurchaseOrderLine) GoodQuantity() int64 {
	return l.ReceivedQuantity - l.DamagedQuantity
}

// NewPurchaseOrder creates a purchase order shell with generated ID and
// defaults.
func NewPurchaseOrder(supplierID id.ID, orderedBy string) *PurchaseOrder {
	po := &PurchaseOrder{
		Document:   entity.NewDocument(),
		SupplierID: supplierID,
		Status:     OrderPending,
		OrderedBy:  orderedBy,

		Subtotal: types.Zero(),
		Tax:      types.Zero(),
		Total:    types.Zero(),

		Lines: make([]PurchaseOrderLine, 0),
	}
	po.Date = time.Now().UTC()
	return po
}

// AddLine appends an ordered item and recalculates the totals.
func (po *PurchaseOrder) AddLine(medicineID id.ID, batchNumber string, manufactured, expiry time.Time, qty int64, unitPrice types.Money) {
	line := PurchaseOrderLine{
		LineID:            id.New(),
		LineNo:            len(po.Lines) + 1,
		MedicineID:        medicineID,
		BatchNumber:       batchNumber,
		ManufacturingDate: manufactured,
		ExpiryDate:        expiry,
		Quantity:          qty,
		UnitPrice:         unitPrice,
		Subtotal:          types.RoundMoney(unitPrice.Mul(decimal.NewFromInt(qty))),
	}
	po.Lines = append(po.Lines, line)
	po.RecalculateTotals()
}

// RecalculateTotals updates document totals from lines.
func (po *PurchaseOrder) RecalculateTotals() {
	subtotal := types.Zero()
	for _, line := range po.Lines {
		subtotal = subtotal.Add(line.Subtotal)
	}
	po.Subtotal = subtotal
	po.Total = types.RoundMoney(subtotal.Add(po.Tax))
}

// Validate implements entity.Validatable.
func (po *PurchaseOrder) Validate(ctx context.Context) error {
	if err := po.Document.Validate(ctx); err != nil {
		return err
	}
	if id.IsNil(po.SupplierID) {
		return apperror.NewValidation("supplier is required").
			WithDetail("field", "supplierId")
	}
	if len(po.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}
	for _, line := range po.Lines {
		if id.IsNil(line.MedicineID) {
			return apperror.NewValidation("medicine is required").
				WithDetail("field", "lines").
				WithDetail("lineNo", line.LineNo)
		}
		if line.Quantity <= 0 {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("field", "lines").
				WithDetail("lineNo", line.LineNo)
		}
		if line.UnitPrice.IsNegative() {
			return apperror.NewValidation("unit price cannot be negative").
				WithDetail("field", "lines").
				WithDetail("lineNo", line.LineNo)
		}
	}
	return nil
}

// CanModify reports whether the order still accepts changes.
// Receipt and cancellation are only valid moves out of pending;
// partially-received orders accept further deliveries.
func (po *PurchaseOrder) CanModify() error {
	switch po.Status {
	case OrderReceived:
		return apperror.NewBusinessRule(apperror.CodeBusinessRule,
			"purchase order already received").
			WithDetail("number", po.Number)
	case OrderCancelled:
		return apperror.NewBusinessRule(apperror.CodeBusinessRule,
			"purchase order is cancelled").
			WithDetail("number", po.Number)
	}
	return nil
}

// deriveReceiptStatus recomputes the order status from line receipt
// quantities.
func (po *PurchaseOrder) deriveReceiptStatus() OrderStatus {
	var ordered, received int64
	for _, line := range po.Lines {
		ordered += line.Quantity
		received += line.ReceivedQuantity
	}
	switch {
	case received >= ordered && ordered > 0:
		return OrderReceived
	case received > 0:
		return OrderPartiallyReceived
	default:
		return po.Status
	}
}
