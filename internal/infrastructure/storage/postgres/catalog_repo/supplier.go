package catalog_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/domain/catalogs/supplier"
	"pharmapos/internal/infrastructure/storage/postgres"
)

const supplierTable = "cat_suppliers"

// Compile-time check that SupplierRepo implements supplier.Repository.
var _ supplier.Repository = (*SupplierRepo)(nil)

// SupplierRepo implements supplier.Repository.
type SupplierRepo struct {
	*BaseCatalogRepo[*supplier.Supplier]
}

// NewSupplierRepo creates a new supplier repository.
func NewSupplierRepo(txManager *postgres.TxManager) *SupplierRepo {
	return &SupplierRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txManager,
			supplierTable,
			postgres.ExtractDBColumns[supplier.Supplier](),
			func() *supplier.Supplier { return &supplier.Supplier{} },
		),
	}
}

// FindByName retrieves a supplier by exact name.
func (r *SupplierRepo) FindByName(ctx context.Context, name string) (*supplier.Supplier, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"name": name}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	item, err := r.FindOne(ctx, q)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("supplier", name)
		}
		return nil, err
	}
	return item, nil
}
