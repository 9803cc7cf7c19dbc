package purchasing

import (
	"context"
	"time"

	"pharmapos/internal/core/id"
	"pharmapos/internal/domain"
)

// Repository defines operations for purchase order persistence.
type Repository interface {
	Create(ctx context.Context, po *PurchaseOrder) error
	GetByID(ctx context.Context, poID id.ID) (*PurchaseOrder, error)
	GetByNumber(ctx context.Context, number string) (*PurchaseOrder, error)
	GetForUpdate(ctx context.Context, poID id.ID) (*PurchaseOrder, error)
	Update(ctx context.Context, po *PurchaseOrder) error

	GetLines(ctx context.Context, poID id.ID) ([]PurchaseOrderLine, error)
	SaveLines(ctx context.Context, poID id.ID, lines []PurchaseOrderLine) error

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*PurchaseOrder], error)
}

// ListFilter for filtering purchase orders.
type ListFilter struct {
	domain.ListFilter

	SupplierID *id.ID
	Status     *OrderStatus
	DateFrom   *time.Time
	DateTo     *time.Time
}
