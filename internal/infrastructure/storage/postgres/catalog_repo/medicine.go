package catalog_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/domain/catalogs/medicine"
	"pharmapos/internal/infrastructure/storage/postgres"
)

const medicineTable = "cat_medicines"

// Compile-time check that MedicineRepo implements medicine.Repository.
var _ medicine.Repository = (*MedicineRepo)(nil)

// MedicineRepo implements medicine.Repository.
type MedicineRepo struct {
	*BaseCatalogRepo[*medicine.Medicine]
}

// NewMedicineRepo creates a new medicine repository.
func NewMedicineRepo(txManager *postgres.TxManager) *MedicineRepo {
	return &MedicineRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txManager,
			medicineTable,
			postgres.ExtractDBColumns[medicine.Medicine](),
			func() *medicine.Medicine { return &medicine.Medicine{} },
		),
	}
}

// FindByBarcode retrieves a medicine by barcode.
func (r *MedicineRepo) FindByBarcode(ctx context.Context, barcode string) (*medicine.Medicine, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"barcode": barcode}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	item, err := r.FindOne(ctx, q)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("medicine", barcode)
		}
		return nil, err
	}
	return item, nil
}

// FindByName retrieves a medicine by exact name.
func (r *MedicineRepo) FindByName(ctx context.Context, name string) (*medicine.Medicine, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"name": name}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	item, err := r.FindOne(ctx, q)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("medicine", name)
		}
		return nil, err
	}
	return item, nil
}
