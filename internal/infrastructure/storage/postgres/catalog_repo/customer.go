package catalog_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/domain/catalogs/customer"
	"pharmapos/internal/infrastructure/storage/postgres"
)

const customerTable = "cat_customers"

// Compile-time check that CustomerRepo implements customer.Repository.
var _ customer.Repository = (*CustomerRepo)(nil)

// CustomerRepo implements customer.Repository.
type CustomerRepo struct {
	*BaseCatalogRepo[*customer.Customer]
}

// NewCustomerRepo creates a new customer repository.
func NewCustomerRepo(txManager *postgres.TxManager) *CustomerRepo {
	return &CustomerRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txManager,
			customerTable,
			postgres.ExtractDBColumns[customer.Customer](),
			func() *customer.Customer { return &customer.Customer{} },
		),
	}
}

// FindByMobile retrieves a customer by mobile number.
func (r *CustomerRepo) FindByMobile(ctx context.Context, mobile string) (*customer.Customer, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"mobile": mobile}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	item, err := r.FindOne(ctx, q)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("customer", mobile)
		}
		return nil, err
	}
	return item, nil
}
