package medicine

import (
	"context"

	"pharmapos/internal/domain"
)

// Repository defines the interface for Medicine persistence.
type Repository interface {
	domain.CatalogRepository[*Medicine]

	// FindByBarcode retrieves a medicine by barcode (unique when set).
	FindByBarcode(ctx context.Context, barcode string) (*Medicine, error)

	// FindByName retrieves a medicine by exact name (unique).
	FindByName(ctx context.Context, name string) (*Medicine, error)
}
