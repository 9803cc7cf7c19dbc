package customer

import (
	"context"

	"pharmapos/internal/core/id"
	"pharmapos/internal/domain"
)

// Repository defines the interface for Customer persistence.
type Repository interface {
	domain.CatalogRepository[*Customer]

	// FindByMobile retrieves a customer by mobile number (unique).
	FindByMobile(ctx context.Context, mobile string) (*Customer, error)

	// GetForUpdate retrieves a customer with row lock (for stats updates).
	GetForUpdate(ctx context.Context, id id.ID) (*Customer, error)
}
