package billing

import (
	"context"
	"time"

	"pharmapos/internal/core/id"
	"pharmapos/internal/domain"
)

// Repository defines operations for invoice persistence.
type Repository interface {
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, invID id.ID) (*Invoice, error)
	GetByNumber(ctx context.Context, number string) (*Invoice, error)
	GetForUpdate(ctx context.Context, invID id.ID) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error

	GetLines(ctx context.Context, invID id.ID) ([]InvoiceLine, error)
	SaveLines(ctx context.Context, invID id.ID, lines []InvoiceLine) error

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Invoice], error)
}

// ListFilter for filtering invoices.
type ListFilter struct {
	domain.ListFilter

	CustomerMobile *string
	Status         *InvoiceStatus
	PaymentMethod  *PaymentMethod
	DateFrom       *time.Time
	DateTo         *time.Time
}
