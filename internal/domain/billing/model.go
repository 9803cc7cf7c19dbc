// Package billing provides the sale invoice document, its builder and
// the refund processor.
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/core/entity"
	"pharmapos/internal/core/id"
	"pharmapos/internal/core/types"
	"pharmapos/internal/domain/inventory"
)

// DefaultTaxRate is the flat VAT percentage applied when none is
// configured (Nepal VAT).
var DefaultTaxRate = types.MustMoney("13")

// PaymentMethod defines how a sale was paid.
type PaymentMethod string

const (
	PayCash          PaymentMethod = "cash"
	PayCard          PaymentMethod = "card"
	PayEsewa         PaymentMethod = "esewa"
	PayKhalti        PaymentMethod = "khalti"
	PayMobilePayment PaymentMethod = "mobile-payment"
	PayCredit        PaymentMethod = "credit"
)

// PaymentStatus reflects how much of the total has been settled.
type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPartial PaymentStatus = "partial"
	PaymentPending PaymentStatus = "pending"
)

// InvoiceStatus tracks the refund lifecycle. Transitions are
// one-directional: completed → partially-refunded → refunded.
type InvoiceStatus string

const (
	StatusCompleted         InvoiceStatus = "completed"
	StatusPartiallyRefunded InvoiceStatus = "partially-refunded"
	StatusRefunded          InvoiceStatus = "refunded"
)

// Invoice represents one completed sale.
type Invoice struct {
	entity.Document

	// Customer info, optional for walk-in sales
	CustomerName    *string `db:"customer_name" json:"customerName,omitempty"`
	CustomerMobile  *string `db:"customer_mobile" json:"customerMobile,omitempty"`
	CustomerAddress *string `db:"customer_address" json:"customerAddress,omitempty"`

	// Totals
	Subtotal           types.Money `db:"subtotal" json:"subtotal"`
	Discount           types.Money `db:"discount" json:"discount"`
	DiscountPercentage types.Money `db:"discount_percentage" json:"discountPercentage"`
	TaxRate            types.Money `db:"tax_rate" json:"taxRate"`
	TaxAmount          types.Money `db:"tax_amount" json:"taxAmount"`
	Total              types.Money `db:"total_amount" json:"totalAmount"`

	// Payment
	PaymentMethod PaymentMethod `db:"payment_method" json:"paymentMethod"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"paymentStatus"`
	AmountPaid    types.Money   `db:"amount_paid" json:"amountPaid"`
	AmountDue     types.Money   `db:"amount_due" json:"amountDue"`

	// PrescriptionRef is an external prescription identifier
	PrescriptionRef *string `db:"prescription_ref" json:"prescriptionRef,omitempty"`

	// Cashier is the user who rang up the sale
	Cashier string `db:"cashier" json:"cashier"`

	Status InvoiceStatus `db:"status" json:"status"`

	// Refund metadata, set by the refund processor
	RefundAmount types.Money `db:"refund_amount" json:"refundAmount"`
	RefundReason *string     `db:"refund_reason" json:"refundReason,omitempty"`
	RefundDate   *time.Time  `db:"refund_date" json:"refundDate,omitempty"`

	// Table part: sold items
	Lines []InvoiceLine `db:"-" json:"lines"`
}

// InvoiceLine represents one sold medicine on an invoice. Immutable
// after creation; refunds only touch invoice-level metadata.
type InvoiceLine struct {
	LineID id.ID `db:"line_id" json:"lineId"`
	LineNo int   `db:"line_no" json:"lineNo"`

	MedicineID id.ID `db:"medicine_id" json:"medicineId"`

	// Primary batch: the first (earliest-expiry) batch consumed.
	// Multi-batch fills collapse into one line; the snapshot keeps the
	// primary batch traceable on the printed invoice.
	BatchID           id.ID     `db:"batch_id" json:"batchId"`
	BatchNumber       string    `db:"batch_number" json:"batchNumber"`
	ManufacturingDate time.Time `db:"manufacturing_date" json:"manufacturingDate"`
	ExpiryDate        time.Time `db:"expiry_date" json:"expiryDate"`

	Quantity int64 `db:"quantity" json:"quantity"`

	// UnitPrice is the quantity-weighted average over consumed batches
	UnitPrice types.Money `db:"unit_price" json:"unitPrice"`

	// Subtotal is the exact sum over allocations, not qty×avg
	Subtotal types.Money `db:"subtotal" json:"subtotal"`
}

// NewInvoice creates an invoice shell with generated ID and defaults.
func NewInvoice(cashier string) *Invoice {
	inv := &Invoice{
		Document:      entity.NewDocument(),
		PaymentMethod: PayCash,
		PaymentStatus: PaymentPaid,
		Status:        StatusCompleted,
		Cashier:       cashier,
		TaxRate:       DefaultTaxRate,

		Subtotal:           types.Zero(),
		Discount:           types.Zero(),
		DiscountPercentage: types.Zero(),
		TaxAmount:          types.Zero(),
		Total:              types.Zero(),
		AmountPaid:         types.Zero(),
		AmountDue:          types.Zero(),
		RefundAmount:       types.Zero(),

		Lines: make([]InvoiceLine, 0),
	}
	inv.Date = time.Now().UTC()
	return inv
}

// CollapseAllocations folds the allocations for one requested medicine
// into a single invoice line. The unit price is the quantity-weighted
// average; the first (earliest-expiry) allocation is the line's primary
// batch.
func CollapseAllocations(medicineID id.ID, lineNo int, allocs []inventory.Allocation) InvoiceLine {
	subtotal := types.Zero()
	var qty int64
	for _, a := range allocs {
		subtotal = subtotal.Add(a.UnitPrice.Mul(decimal.NewFromInt(a.Quantity)))
		qty += a.Quantity
	}

	unitPrice := types.Zero()
	if qty > 0 {
		unitPrice = types.RoundMoney(subtotal.Div(decimal.NewFromInt(qty)))
	}

	primary := allocs[0]
	return InvoiceLine{
		LineID:            id.New(),
		LineNo:            lineNo,
		MedicineID:        medicineID,
		BatchID:           primary.BatchID,
		BatchNumber:       primary.BatchNumber,
		ManufacturingDate: primary.ManufacturingDate,
		ExpiryDate:        primary.ExpiryDate,
		Quantity:          qty,
		UnitPrice:         unitPrice,
		Subtotal:          types.RoundMoney(subtotal),
	}
}

// RecalculateTotals computes the money fields from the lines:
//
//	subtotal   = Σ line.subtotal
//	discount   = discount amount, or subtotal × discountPercentage / 100
//	taxAmount  = (subtotal − discount) × taxRate / 100
//	total      = subtotal − discount + taxAmount
//	amountDue  = total − amountPaid (amountPaid defaults to total)
//
// paidSet tells whether the caller provided an explicit amountPaid.
func (inv *Invoice) RecalculateTotals(paidSet bool) {
	subtotal := types.Zero()
	for _, line := range inv.Lines {
		subtotal = subtotal.Add(line.Subtotal)
	}
	inv.Subtotal = types.RoundMoney(subtotal)

	if inv.DiscountPercentage.IsPositive() {
		inv.Discount = types.PercentOf(inv.Subtotal, inv.DiscountPercentage)
	}

	afterDiscount := inv.Subtotal.Sub(inv.Discount)
	inv.TaxAmount = types.PercentOf(afterDiscount, inv.TaxRate)
	inv.Total = types.RoundMoney(afterDiscount.Add(inv.TaxAmount))

	if !paidSet {
		inv.AmountPaid = inv.Total
	}
	inv.AmountDue = types.RoundMoney(inv.Total.Sub(inv.AmountPaid))

	inv.PaymentStatus = derivePaymentStatus(inv.Total, inv.AmountPaid)
}

func derivePaymentStatus(total, paid types.Money) PaymentStatus {
	switch {
	case paid.GreaterThanOrEqual(total):
		return PaymentPaid
	case paid.IsPositive():
		return PaymentPartial
	default:
		return PaymentPending
	}
}

// Validate implements entity.Validatable.
func (inv *Invoice) Validate(ctx context.Context) error {
	if len(inv.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}

	for i, line := range inv.Lines {
		if id.IsNil(line.MedicineID) {
			return apperror.NewValidation("medicine is required").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if line.Quantity <= 0 {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
	}

	if !isValidPaymentMethod(inv.PaymentMethod) {
		return apperror.NewValidation("invalid payment method").
			WithDetail("field", "paymentMethod").
			WithDetail("value", string(inv.PaymentMethod))
	}

	if inv.Discount.IsNegative() {
		return apperror.NewValidation("discount cannot be negative").
			WithDetail("field", "discount")
	}
	if inv.DiscountPercentage.IsNegative() ||
		inv.DiscountPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return apperror.NewValidation("discount percentage must be between 0 and 100").
			WithDetail("field", "discountPercentage")
	}
	if inv.Discount.GreaterThan(inv.Subtotal) {
		return apperror.NewValidation("discount cannot exceed subtotal").
			WithDetail("field", "discount")
	}
	if inv.AmountPaid.IsNegative() {
		return apperror.NewValidation("amount paid cannot be negative").
			WithDetail("field", "amountPaid")
	}
	if inv.Cashier == "" {
		return apperror.NewValidation("cashier is required").
			WithDetail("field", "cashier")
	}

	return nil
}

// ApplyRefund records a refund on the invoice. Transitions are
// one-directional: a fully refunded invoice cannot be refunded again.
func (inv *Invoice) ApplyRefund(amount types.Money, reason string, at time.Time) error {
	if inv.Status == StatusRefunded {
		return apperror.NewAlreadyRefunded(inv.Number)
	}
	if !amount.IsPositive() {
		return apperror.NewValidation("refund amount must be positive").
			WithDetail("field", "refundAmount")
	}
	if amount.GreaterThan(inv.Total) {
		return apperror.NewValidation("refund amount cannot exceed invoice total").
			WithDetail("field", "refundAmount").
			WithDetail("total", inv.Total.String()).
			WithDetail("refundAmount", amount.String())
	}

	inv.RefundAmount = amount
	inv.RefundReason = &reason
	t := at
	inv.RefundDate = &t

	if amount.Equal(inv.Total) {
		inv.Status = StatusRefunded
	} else {
		inv.Status = StatusPartiallyRefunded
	}

	inv.Touch()
	return nil
}

func isValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PayCash, PayCard, PayEsewa, PayKhalti, PayMobilePayment, PayCredit:
		return true
	}
	return false
}
