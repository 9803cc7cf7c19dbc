package purchasing

import (
	"context"
	"fmt"
	"time"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/core/id"
	"pharmapos/internal/core/tx"
	"pharmapos/internal/core/types"
	"pharmapos/internal/domain"
	"pharmapos/internal/domain/inventory"
	"pharmapos/pkg/logger"
	"pharmapos/pkg/numerator"
)

// StockReceiver is the slice of the inventory service the receive flow
// needs.
type StockReceiver interface {
	AddStock(ctx context.Context, batch *inventory.Batch) (*inventory.Batch, error)
}

// OrderLineRequest is one ordered item of a purchase request.
type OrderLineRequest struct {
	MedicineID        id.ID       `json:"medicineId"`
	BatchNumber       string      `json:"batchNumber,omitempty"`
	ManufacturingDate time.Time   `json:"manufacturingDate,omitempty"`
	ExpiryDate        time.Time   `json:"expiryDate,omitempty"`
	Quantity          int64       `json:"quantity"`
	UnitPrice         types.Money `json:"unitPrice"`
}

// CreateRequest describes a purchase order to be placed.
type CreateRequest struct {
	SupplierID       id.ID              `json:"supplierId"`
	Lines            []OrderLineRequest `json:"lines"`
	ExpectedDelivery *time.Time         `json:"expectedDelivery,omitempty"`
	Tax              *types.Money       `json:"tax,omitempty"`
	OrderedBy        string             `json:"orderedBy"`
	Notes            string             `json:"notes,omitempty"`
}

// ReceiptLine reports the delivery outcome for one ordered line.
type ReceiptLine struct {
	LineNo           int   `json:"lineNo"`
	ReceivedQuantity int64 `json:"receivedQuantity"`
	DamagedQuantity  int64 `json:"damagedQuantity"`
}

// ReceiveRequest books a delivery against a purchase order.
type ReceiveRequest struct {
	Lines []ReceiptLine `json:"lines"`

	SupplierInvoiceNumber *string    `json:"supplierInvoiceNumber,omitempty"`
	SupplierInvoiceDate   *time.Time `json:"supplierInvoiceDate,omitempty"`
	ReceivedBy            string     `json:"receivedBy"`
}

// Service provides purchase order operations: placing orders,
// receiving deliveries into stock, and cancellation.
type Service struct {
	repo      Repository
	stock     StockReceiver
	numerator *numerator.Service
	txManager tx.Manager
}

// NewService creates a new purchasing service.
func NewService(
	repo Repository,
	stock StockReceiver,
	numerator *numerator.Service,
	txManager tx.Manager,
) *Service {
	return &Service{
		repo:      repo,
		stock:     stock,
		numerator: numerator,
		txManager: txManager,
	}
}

// Create places a new purchase order and assigns its number.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*PurchaseOrder, error) {
	po := NewPurchaseOrder(req.SupplierID, req.OrderedBy)
	po.ExpectedDelivery = req.ExpectedDelivery
	po.Notes = req.Notes
	if req.Tax != nil {
		if req.Tax.IsNegative() {
			return nil, apperror.NewValidation("tax cannot be negative").
				WithDetail("field", "tax")
		}
		po.Tax = *req.Tax
	}
	for _, line := range req.Lines {
		po.AddLine(line.MedicineID, line.BatchNumber, line.ManufacturingDate,
			line.ExpiryDate, line.Quantity, line.UnitPrice)
	}

	if err := po.Validate(ctx); err != nil {
		return nil, err
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("PO"), nil, po.Date)
		if err != nil {
			return fmt.Errorf("generate order number: %w", err)
		}
		po.Number = number

		if err := s.repo.Create(ctx, po); err != nil {
			return fmt.Errorf("create purchase order: %w", err)
		}
		if err := s.repo.SaveLines(ctx, po.ID, po.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "purchase order placed",
		"id", po.ID,
		"number", po.Number,
		"supplier_id", po.SupplierID,
		"total", po.Total,
	)

	return po, nil
}

// Receive books a delivery: the good quantity of every reported line
// goes into the batch store, and the order status follows the received
// totals. Order update and stock receipts commit together.
func (s *Service) Receive(ctx context.Context, poID id.ID, req ReceiveRequest) (*PurchaseOrder, error) {
	if len(req.Lines) == 0 {
		return nil, apperror.NewValidation("at least one receipt line is required").
			WithDetail("field", "lines")
	}

	var result *PurchaseOrder
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		po, err := s.repo.GetForUpdate(ctx, poID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewNotFound("purchase order", poID.String())
			}
			return fmt.Errorf("lock purchase order: %w", err)
		}
		if err := po.CanModify(); err != nil {
			return err
		}

		lines, err := s.repo.GetLines(ctx, po.ID)
		if err != nil {
			return fmt.Errorf("get lines: %w", err)
		}
		po.Lines = lines

		for _, receipt := range req.Lines {
			line := findLine(po.Lines, receipt.LineNo)
			if line == nil {
				return apperror.NewValidation("unknown line number").
					WithDetail("field", "lines").
					WithDetail("lineNo", receipt.LineNo)
			}
			if err := applyReceipt(line, receipt); err != nil {
				return err
			}

			good := line.GoodQuantity()
			if good <= 0 {
				continue
			}

			batch := inventory.NewBatch(line.MedicineID, line.BatchNumber,
				line.ManufacturingDate, line.ExpiryDate, good)
			batch.PurchasePrice = line.UnitPrice
			batch.SellingPrice = markupPrice(line.UnitPrice)
			batch.SupplierID = &po.SupplierID

			if _, err := s.stock.AddStock(ctx, batch); err != nil {
				return fmt.Errorf("book line %d into stock: %w", line.LineNo, err)
			}
		}

		now := time.Now().UTC()
		po.Status = po.deriveReceiptStatus()
		po.ReceivedDate = &now
		po.ReceivedBy = &req.ReceivedBy
		if req.SupplierInvoiceNumber != nil {
			po.SupplierInvoiceNumber = req.SupplierInvoiceNumber
		}
		if req.SupplierInvoiceDate != nil {
			po.SupplierInvoiceDate = req.SupplierInvoiceDate
		}
		po.Touch()

		if err := s.repo.Update(ctx, po); err != nil {
			return fmt.Errorf("update purchase order: %w", err)
		}
		if err := s.repo.SaveLines(ctx, po.ID, po.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}

		result = po
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "purchase order received",
		"id", result.ID,
		"number", result.Number,
		"status", result.Status,
	)

	return result, nil
}

// Cancel cancels a pending purchase order.
func (s *Service) Cancel(ctx context.Context, poID id.ID) (*PurchaseOrder, error) {
	var result *PurchaseOrder
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		po, err := s.repo.GetForUpdate(ctx, poID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewNotFound("purchase order", poID.String())
			}
			return fmt.Errorf("lock purchase order: %w", err)
		}
		if po.Status != OrderPending {
			return apperror.NewBusinessRule(apperror.CodeBusinessRule,
				"only pending purchase orders can be cancelled").
				WithDetail("number", po.Number).
				WithDetail("status", string(po.Status))
		}

		po.Status = OrderCancelled
		po.Touch()
		if err := s.repo.Update(ctx, po); err != nil {
			return fmt.Errorf("update purchase order: %w", err)
		}

		result = po
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "purchase order cancelled", "id", result.ID, "number", result.Number)

	return result, nil
}

// GetByID retrieves a purchase order with lines.
func (s *Service) GetByID(ctx context.Context, poID id.ID) (*PurchaseOrder, error) {
	po, err := s.repo.GetByID(ctx, poID)
	if err != nil {
		return nil, err
	}

	lines, err := s.repo.GetLines(ctx, poID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	po.Lines = lines

	return po, nil
}

// GetByNumber retrieves a purchase order by its number, with lines.
func (s *Service) GetByNumber(ctx context.Context, number string) (*PurchaseOrder, error) {
	po, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}

	lines, err := s.repo.GetLines(ctx, po.ID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	po.Lines = lines

	return po, nil
}

// List retrieves purchase orders with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*PurchaseOrder], error) {
	return s.repo.List(ctx, filter)
}

// applyReceipt validates and records one line's delivery outcome.
func applyReceipt(line *PurchaseOrderLine, receipt ReceiptLine) error {
	if receipt.ReceivedQuantity < 0 || receipt.DamagedQuantity < 0 {
		return apperror.NewValidation("receipt quantities cannot be negative").
			WithDetail("field", "lines").
			WithDetail("lineNo", receipt.LineNo)
	}
	if receipt.DamagedQuantity > receipt.ReceivedQuantity {
		return apperror.NewValidation("damaged quantity cannot exceed received quantity").
			WithDetail("field", "lines").
			WithDetail("lineNo", receipt.LineNo)
	}
	if receipt.ReceivedQuantity-receipt.DamagedQuantity > 0 {
		if line.BatchNumber == "" {
			return apperror.NewValidation("batch number is required to book stock").
				WithDetail("field", "batchNumber").
				WithDetail("lineNo", receipt.LineNo)
		}
		if line.ManufacturingDate.IsZero() || line.ExpiryDate.IsZero() {
			return apperror.NewValidation("manufacturing and expiry dates are required to book stock").
				WithDetail("field", "expiryDate").
				WithDetail("lineNo", receipt.LineNo)
		}
	}

	line.ReceivedQuantity = receipt.ReceivedQuantity
	line.DamagedQuantity = receipt.DamagedQuantity
	return nil
}

// findLine returns the line with the given number, or nil.
func findLine(lines []PurchaseOrderLine, lineNo int) *PurchaseOrderLine {
	for i := range lines {
		if lines[i].LineNo == lineNo {
			return &lines[i]
		}
	}
	return nil
}

// markupPrice derives the selling price from the purchase price.
func markupPrice(purchase types.Money) types.Money {
	return types.RoundMoney(purchase.Add(types.PercentOf(purchase, DefaultSellingMarkup)))
}
