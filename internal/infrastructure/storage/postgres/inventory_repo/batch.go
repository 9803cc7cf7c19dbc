// Package inventory_repo provides the PostgreSQL implementation of batch storage.
package inventory_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/core/id"
	"pharmapos/internal/domain/inventory"
	"pharmapos/internal/infrastructure/storage/postgres"
)

const (
	batchTable    = "inv_batches"
	medicineTable = "cat_medicines"
)

// Compile-time check that BatchRepo implements inventory.Repository.
var _ inventory.Repository = (*BatchRepo)(nil)

// BatchRepo implements inventory.Repository.
type BatchRepo struct {
	txManager  *postgres.TxManager
	selectCols []string
}

// NewBatchRepo creates a new batch repository.
func NewBatchRepo(txManager *postgres.TxManager) *BatchRepo {
	return &BatchRepo{
		txManager:  txManager,
		selectCols: postgres.ExtractDBColumns[inventory.Batch](),
	}
}

func (r *BatchRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *BatchRepo) baseSelect() squirrel.SelectBuilder {
	return r.builder().
		Select(r.selectCols...).
		From(batchTable)
}

func (r *BatchRepo) querier(ctx context.Context) postgres.Querier {
	return r.txManager.GetQuerier(ctx)
}

// Create inserts a new batch using its "db" tags.
func (r *BatchRepo) Create(ctx context.Context, batch *inventory.Batch) error {
	data := postgres.StructToMap(batch)

	filteredData := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if val, ok := data[col]; ok {
			filteredData[col] = val
		}
	}

	q := r.builder().
		Insert(batchTable).
		SetMap(filteredData)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	return nil
}

// GetByID retrieves a batch by ID.
func (r *BatchRepo) GetByID(ctx context.Context, batchID id.ID) (*inventory.Batch, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"id": batchID}).
		Limit(1)

	return r.getOne(ctx, q, batchID.String())
}

// GetForUpdate retrieves a batch with a row lock.
func (r *BatchRepo) GetForUpdate(ctx context.Context, batchID id.ID) (*inventory.Batch, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"id": batchID}).
		Suffix("FOR UPDATE")

	return r.getOne(ctx, q, batchID.String())
}

// FindByMedicineAndNumber retrieves the batch for a medicine+lot pair.
func (r *BatchRepo) FindByMedicineAndNumber(ctx context.Context, medicineID id.ID, batchNumber string) (*inventory.Batch, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"medicine_id": medicineID}).
		Where(squirrel.Eq{"batch_number": batchNumber}).
		Limit(1)

	return r.getOne(ctx, q, batchNumber)
}

func (r *BatchRepo) getOne(ctx context.Context, q squirrel.SelectBuilder, key string) (*inventory.Batch, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var batch inventory.Batch
	if err := pgxscan.Get(ctx, r.querier(ctx), &batch, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("batch", key)
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}

	return &batch, nil
}

// Update modifies a batch with optimistic locking.
func (r *BatchRepo) Update(ctx context.Context, batch *inventory.Batch) error {
	data := postgres.StructToMap(batch)

	filteredData := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if col == "id" || col == "version" {
			continue
		}
		if val, ok := data[col]; ok {
			filteredData[col] = val
		}
	}

	q := r.builder().
		Update(batchTable).
		SetMap(filteredData).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": batch.ID}).
		Where(squirrel.Eq{"version": batch.Version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("batch", batch.ID)
	}

	return nil
}

// LockEligible returns sellable batches of a medicine in FEFO order with
// row locks held until the surrounding transaction ends.
func (r *BatchRepo) LockEligible(ctx context.Context, medicineID id.ID, asOf time.Time) ([]*inventory.Batch, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"medicine_id": medicineID}).
		Where(squirrel.Eq{"status": inventory.StatusAvailable}).
		Where(squirrel.Gt{"quantity": 0}).
		Where(squirrel.Gt{"expiry_date": asOf}).
		Where(squirrel.LtOrEq{"manufacturing_date": asOf}).
		OrderBy("expiry_date ASC", "received_at ASC", "id ASC").
		Suffix("FOR UPDATE")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var batches []*inventory.Batch
	if err := pgxscan.Select(ctx, r.querier(ctx), &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("lock eligible batches: %w", err)
	}

	return batches, nil
}

// DecrementQuantity takes qty units from a batch only when enough remain.
// The WHERE guard makes overselling impossible even under concurrency.
func (r *BatchRepo) DecrementQuantity(ctx context.Context, batchID id.ID, qty int64) (bool, error) {
	q := r.builder().
		Update(batchTable).
		Set("quantity", squirrel.Expr("quantity - ?", qty)).
		Set("status", squirrel.Expr("CASE WHEN quantity - ? <= 0 THEN ? ELSE status END", qty, inventory.StatusSoldOut)).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": batchID}).
		Where(squirrel.GtOrEq{"quantity": qty})

	sql, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build decrement: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("decrement batch quantity: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// ListByMedicine returns all batches of a medicine in FEFO order.
func (r *BatchRepo) ListByMedicine(ctx context.Context, medicineID id.ID) ([]*inventory.Batch, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"medicine_id": medicineID}).
		OrderBy("expiry_date ASC", "received_at ASC", "id ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var batches []*inventory.Batch
	if err := pgxscan.Select(ctx, r.querier(ctx), &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}

	return batches, nil
}

// SellableQuantity sums sellable stock of a medicine.
func (r *BatchRepo) SellableQuantity(ctx context.Context, medicineID id.ID, asOf time.Time) (int64, error) {
	q := r.builder().
		Select("COALESCE(SUM(quantity), 0)").
		From(batchTable).
		Where(squirrel.Eq{"medicine_id": medicineID}).
		Where(squirrel.Eq{"status": inventory.StatusAvailable}).
		Where(squirrel.Gt{"quantity": 0}).
		Where(squirrel.Gt{"expiry_date": asOf}).
		Where(squirrel.LtOrEq{"manufacturing_date": asOf})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var total int64
	if err := r.querier(ctx).QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum sellable quantity: %w", err)
	}

	return total, nil
}

// Expired returns batches past expiry that still hold stock.
func (r *BatchRepo) Expired(ctx context.Context, asOf time.Time) ([]*inventory.Batch, error) {
	q := r.baseSelect().
		Where(squirrel.LtOrEq{"expiry_date": asOf}).
		Where(squirrel.Gt{"quantity": 0}).
		Where(squirrel.NotEq{"status": inventory.StatusDamaged}).
		OrderBy("expiry_date ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var batches []*inventory.Batch
	if err := pgxscan.Select(ctx, r.querier(ctx), &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("list expired batches: %w", err)
	}

	return batches, nil
}

// NearExpiry returns sellable batches expiring within the window.
func (r *BatchRepo) NearExpiry(ctx context.Context, asOf time.Time, window time.Duration) ([]*inventory.Batch, error) {
	horizon := asOf.Add(window)

	q := r.baseSelect().
		Where(squirrel.Eq{"status": inventory.StatusAvailable}).
		Where(squirrel.Gt{"quantity": 0}).
		Where(squirrel.Gt{"expiry_date": asOf}).
		Where(squirrel.LtOrEq{"expiry_date": horizon}).
		OrderBy("expiry_date ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var batches []*inventory.Batch
	if err := pgxscan.Select(ctx, r.querier(ctx), &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("list near-expiry batches: %w", err)
	}

	return batches, nil
}

// LowStock returns active medicines whose sellable stock is below their
// minimum stock level. Medicines with zero batches are included.
func (r *BatchRepo) LowStock(ctx context.Context, asOf time.Time) ([]inventory.LowStockItem, error) {
	sql := fmt.Sprintf(`
		SELECT m.id AS medicine_id,
		       m.name AS medicine_name,
		       COALESCE(SUM(b.quantity) FILTER (
		           WHERE b.status = $1
		             AND b.quantity > 0
		             AND b.expiry_date > $2
		             AND b.manufacturing_date <= $2
		       ), 0) AS current_stock,
		       m.minimum_stock_level AS minimum_stock,
		       m.minimum_stock_level - COALESCE(SUM(b.quantity) FILTER (
		           WHERE b.status = $1
		             AND b.quantity > 0
		             AND b.expiry_date > $2
		             AND b.manufacturing_date <= $2
		       ), 0) AS deficit
		FROM %s m
		LEFT JOIN %s b ON b.medicine_id = m.id
		WHERE m.deletion_mark = false
		  AND m.status = 'active'
		GROUP BY m.id, m.name, m.minimum_stock_level
		HAVING COALESCE(SUM(b.quantity) FILTER (
		           WHERE b.status = $1
		             AND b.quantity > 0
		             AND b.expiry_date > $2
		             AND b.manufacturing_date <= $2
		       ), 0) < m.minimum_stock_level
		ORDER BY deficit DESC, m.name ASC
	`, medicineTable, batchTable)

	var items []inventory.LowStockItem
	if err := pgxscan.Select(ctx, r.querier(ctx), &items, sql, inventory.StatusAvailable, asOf); err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}

	return items, nil
}
