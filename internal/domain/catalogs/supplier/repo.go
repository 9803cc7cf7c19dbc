package supplier

import (
	"context"

	"pharmapos/internal/domain"
)

// Repository defines the interface for Supplier persistence.
type Repository interface {
	domain.CatalogRepository[*Supplier]

	// FindByName retrieves a supplier by exact name (unique).
	FindByName(ctx context.Context, name string) (*Supplier, error)
}
