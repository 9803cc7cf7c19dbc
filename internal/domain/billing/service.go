package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/core/event"
	"pharmapos/internal/core/id"
	"pharmapos/internal/core/tx"
	"pharmapos/internal/core/types"
	"pharmapos/internal/domain"
	"pharmapos/internal/domain/inventory"
	"pharmapos/pkg/logger"
	"pharmapos/pkg/numerator"
)

// StockAllocator is the slice of the inventory allocator the builder
// needs.
type StockAllocator interface {
	Allocate(ctx context.Context, medicineID id.ID, qty int64) ([]inventory.Allocation, error)
}

// LineRequest is one medicine+quantity pair of a sale request.
type LineRequest struct {
	MedicineID id.ID `json:"medicineId"`
	Quantity   int64 `json:"quantity"`
}

// BuildRequest describes a sale to be turned into an invoice.
type BuildRequest struct {
	Lines []LineRequest `json:"lines"`

	CustomerName    string `json:"customerName,omitempty"`
	CustomerMobile  string `json:"customerMobile,omitempty"`
	CustomerAddress string `json:"customerAddress,omitempty"`

	PaymentMethod PaymentMethod `json:"paymentMethod,omitempty"`

	// DiscountAmount wins over DiscountPercentage when both are set
	DiscountAmount     *types.Money `json:"discountAmount,omitempty"`
	DiscountPercentage *types.Money `json:"discountPercentage,omitempty"`

	// AmountPaid defaults to the invoice total when nil
	AmountPaid *types.Money `json:"amountPaid,omitempty"`

	PrescriptionRef *string `json:"prescriptionRef,omitempty"`
	Cashier         string  `json:"cashier"`
	Notes           string  `json:"notes,omitempty"`
}

// Service is the invoice builder and refund processor.
type Service struct {
	repo      Repository
	allocator StockAllocator
	numerator *numerator.Service
	txManager tx.Manager
	publisher event.Publisher

	taxRate types.Money
}

// NewService creates a new billing service. A non-positive taxRate
// falls back to DefaultTaxRate.
func NewService(
	repo Repository,
	allocator StockAllocator,
	numerator *numerator.Service,
	txManager tx.Manager,
	publisher event.Publisher,
	taxRate types.Money,
) *Service {
	if !taxRate.IsPositive() {
		taxRate = DefaultTaxRate
	}
	return &Service{
		repo:      repo,
		allocator: allocator,
		numerator: numerator,
		txManager: txManager,
		publisher: publisher,
		taxRate:   taxRate,
	}
}

// Build turns a sale request into a persisted invoice. Everything runs
// in one transaction: batch decrements, the invoice and its lines, and
// the customer-stats outbox event either all commit or all roll back.
//
// Build is deliberately not idempotent: two identical requests each
// consume stock and produce their own invoice.
func (s *Service) Build(ctx context.Context, req BuildRequest) (*Invoice, error) {
	if len(req.Lines) == 0 {
		return nil, apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}
	for i, line := range req.Lines {
		if id.IsNil(line.MedicineID) {
			return nil, apperror.NewValidation("medicine is required").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if line.Quantity <= 0 {
			return nil, apperror.NewValidation("quantity must be positive").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
	}

	inv := s.newInvoiceFromRequest(req)

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		// Allocate stock line by line. A failed line rolls back the
		// decrements of every earlier line with the transaction.
		for i, line := range req.Lines {
			allocs, err := s.allocator.Allocate(ctx, line.MedicineID, line.Quantity)
			if err != nil {
				return err
			}
			inv.Lines = append(inv.Lines, CollapseAllocations(line.MedicineID, i+1, allocs))
		}

		inv.RecalculateTotals(req.AmountPaid != nil)

		if err := inv.Validate(ctx); err != nil {
			return err
		}

		number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("INV"), nil, inv.Date)
		if err != nil {
			return fmt.Errorf("generate invoice number: %w", err)
		}
		inv.Number = number

		if err := s.repo.Create(ctx, inv); err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		if err := s.repo.SaveLines(ctx, inv.ID, inv.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}

		if req.CustomerMobile != "" {
			err := s.publisher.Publish(ctx, event.Event{
				AggregateType: AggregateInvoice,
				AggregateID:   inv.ID,
				Type:          EventSaleCompleted,
				Payload: SaleCompletedPayload{
					InvoiceID:      inv.ID,
					InvoiceNumber:  inv.Number,
					CustomerName:   req.CustomerName,
					CustomerMobile: req.CustomerMobile,
					Total:          inv.Total,
					SoldAt:         inv.Date,
				},
			})
			if err != nil {
				return fmt.Errorf("publish sale event: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "invoice created",
		"id", inv.ID,
		"number", inv.Number,
		"total", inv.Total,
		"lines", len(inv.Lines),
	)

	return inv, nil
}

func (s *Service) newInvoiceFromRequest(req BuildRequest) *Invoice {
	inv := NewInvoice(req.Cashier)
	inv.TaxRate = s.taxRate
	inv.Notes = req.Notes
	inv.PrescriptionRef = req.PrescriptionRef

	if req.CustomerName != "" {
		inv.CustomerName = &req.CustomerName
	}
	if req.CustomerMobile != "" {
		inv.CustomerMobile = &req.CustomerMobile
	}
	if req.CustomerAddress != "" {
		inv.CustomerAddress = &req.CustomerAddress
	}
	if req.PaymentMethod != "" {
		inv.PaymentMethod = req.PaymentMethod
	}
	if req.DiscountAmount != nil {
		inv.Discount = *req.DiscountAmount
	} else if req.DiscountPercentage != nil {
		inv.DiscountPercentage = *req.DiscountPercentage
	}
	if req.AmountPaid != nil {
		inv.AmountPaid = *req.AmountPaid
	}

	return inv
}

// PreviewLine is a priced line for a totals preview.
type PreviewLine struct {
	Quantity  int64       `json:"quantity"`
	UnitPrice types.Money `json:"unitPrice"`
}

// Totals is the result of a preview calculation.
type Totals struct {
	Subtotal           types.Money `json:"subtotal"`
	Discount           types.Money `json:"discount"`
	DiscountPercentage types.Money `json:"discountPercentage"`
	TaxRate            types.Money `json:"taxRate"`
	TaxAmount          types.Money `json:"taxAmount"`
	Total              types.Money `json:"totalAmount"`
}

// Preview computes invoice totals for the register display without
// touching stock. A percentage wins over a zero amount, matching Build.
func (s *Service) Preview(lines []PreviewLine, discountPct, discountAmount types.Money) Totals {
	subtotal := types.Zero()
	for _, l := range lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity)))
	}
	subtotal = types.RoundMoney(subtotal)

	discount := discountAmount
	if discountPct.IsPositive() {
		discount = types.PercentOf(subtotal, discountPct)
	}

	afterDiscount := subtotal.Sub(discount)
	taxAmount := types.PercentOf(afterDiscount, s.taxRate)

	return Totals{
		Subtotal:           subtotal,
		Discount:           discount,
		DiscountPercentage: discountPct,
		TaxRate:            s.taxRate,
		TaxAmount:          taxAmount,
		Total:              types.RoundMoney(afterDiscount.Add(taxAmount)),
	}
}

// Refund records a refund on an invoice. Preconditions: the invoice
// exists, is not already fully refunded, and the amount does not exceed
// the invoice total. Consumed batches are not restocked; the refund
// metadata keeps enough data to reconcile stock manually.
func (s *Service) Refund(ctx context.Context, invID id.ID, amount types.Money, reason string) (*Invoice, error) {
	var inv *Invoice

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.GetForUpdate(ctx, invID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewNotFound("invoice", invID.String())
			}
			return fmt.Errorf("get invoice: %w", err)
		}

		now := time.Now().UTC()
		if err := inv.ApplyRefund(amount, reason, now); err != nil {
			return err
		}

		if err := s.repo.Update(ctx, inv); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}

		if inv.CustomerMobile != nil && *inv.CustomerMobile != "" {
			err := s.publisher.Publish(ctx, event.Event{
				AggregateType: AggregateInvoice,
				AggregateID:   inv.ID,
				Type:          EventSaleRefunded,
				Payload: SaleRefundedPayload{
					InvoiceID:      inv.ID,
					InvoiceNumber:  inv.Number,
					CustomerMobile: *inv.CustomerMobile,
					Amount:         amount,
					RefundedAt:     now,
				},
			})
			if err != nil {
				return fmt.Errorf("publish refund event: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "refund processed",
		"number", inv.Number,
		"amount", amount,
		"status", inv.Status,
	)

	return inv, nil
}

// GetByID retrieves an invoice with lines.
func (s *Service) GetByID(ctx context.Context, invID id.ID) (*Invoice, error) {
	inv, err := s.repo.GetByID(ctx, invID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("invoice", invID.String())
		}
		return nil, err
	}

	lines, err := s.repo.GetLines(ctx, invID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	inv.Lines = lines

	return inv, nil
}

// GetByNumber retrieves an invoice by its document number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*Invoice, error) {
	inv, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("invoice", number)
		}
		return nil, err
	}

	lines, err := s.repo.GetLines(ctx, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	inv.Lines = lines

	return inv, nil
}

// List retrieves invoices with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Invoice], error) {
	return s.repo.List(ctx, filter)
}
