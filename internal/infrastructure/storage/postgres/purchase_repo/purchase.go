// Package purchase_repo provides the PostgreSQL implementation of
// purchase order storage.
package purchase_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/core/id"
	"pharmapos/internal/domain"
	"pharmapos/internal/domain/purchasing"
	"pharmapos/internal/infrastructure/storage/postgres"
)

const (
	ordersTable     = "doc_purchase_orders"
	orderLinesTable = "doc_purchase_order_lines"
)

var lineColumns = []string{
	"line_id", "document_id", "line_no", "medicine_id",
	"batch_number", "manufacturing_date", "expiry_date",
	"quantity", "unit_price", "subtotal",
	"received_quantity", "damaged_quantity",
}

// Compile-time check that PurchaseOrderRepo implements purchasing.Repository.
var _ purchasing.Repository = (*PurchaseOrderRepo)(nil)

// PurchaseOrderRepo implements purchasing.Repository.
// Line rows are bulk-inserted via the COPY protocol.
type PurchaseOrderRepo struct {
	txManager  *postgres.TxManager
	inserter   *postgres.BatchInserter
	selectCols []string
}

// NewPurchaseOrderRepo creates a new purchase order repository.
func NewPurchaseOrderRepo(txManager *postgres.TxManager) *PurchaseOrderRepo {
	return &PurchaseOrderRepo{
		txManager:  txManager,
		inserter:   postgres.NewBatchInserter(txManager),
		selectCols: postgres.ExtractDBColumns[purchasing.PurchaseOrder](),
	}
}

func (r *PurchaseOrderRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *PurchaseOrderRepo) baseSelect() squirrel.SelectBuilder {
	return r.builder().
		Select(r.selectCols...).
		From(ordersTable)
}

func (r *PurchaseOrderRepo) querier(ctx context.Context) postgres.Querier {
	return r.txManager.GetQuerier(ctx)
}

// Create inserts a new purchase order header using its "db" tags.
func (r *PurchaseOrderRepo) Create(ctx context.Context, po *purchasing.PurchaseOrder) error {
	data := postgres.StructToMap(po)

	filteredData := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if val, ok := data[col]; ok {
			filteredData[col] = val
		}
	}

	q := r.builder().
		Insert(ordersTable).
		SetMap(filteredData)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert purchase order: %w", err)
	}

	return nil
}

// GetByID retrieves a purchase order header by ID.
func (r *PurchaseOrderRepo) GetByID(ctx context.Context, poID id.ID) (*purchasing.PurchaseOrder, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"id": poID}).
		Limit(1)

	return r.getOne(ctx, q, poID.String())
}

// GetByNumber retrieves a purchase order header by its number.
func (r *PurchaseOrderRepo) GetByNumber(ctx context.Context, number string) (*purchasing.PurchaseOrder, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"number": number}).
		Limit(1)

	return r.getOne(ctx, q, number)
}

// GetForUpdate retrieves a purchase order header with a row lock.
func (r *PurchaseOrderRepo) GetForUpdate(ctx context.Context, poID id.ID) (*purchasing.PurchaseOrder, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"id": poID}).
		Suffix("FOR UPDATE")

	return r.getOne(ctx, q, poID.String())
}

func (r *PurchaseOrderRepo) getOne(ctx context.Context, q squirrel.SelectBuilder, key string) (*purchasing.PurchaseOrder, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var po purchasing.PurchaseOrder
	if err := pgxscan.Get(ctx, r.querier(ctx), &po, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("purchase order", key)
		}
		return nil, fmt.Errorf("get purchase order: %w", err)
	}

	return &po, nil
}

// Update modifies a purchase order header with optimistic locking.
func (r *PurchaseOrderRepo) Update(ctx context.Context, po *purchasing.PurchaseOrder) error {
	data := postgres.StructToMap(po)

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
		Update(ordersTable).
		SetMap(filteredData).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": po.ID}).
		Where(squirrel.Eq{"version": po.Version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update purchase order: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("purchase order", po.ID)
	}

	return nil
}

// GetLines retrieves all lines of a purchase order ordered by line number.
func (r *PurchaseOrderRepo) GetLines(ctx context.Context, poID id.ID) ([]purchasing.PurchaseOrderLine, error) {
	q := r.builder().
		Select(
			"line_id", "line_no", "medicine_id",
			"batch_number", "manufacturing_date", "expiry_date",
			"quantity", "unit_price", "subtotal",
			"received_quantity", "damaged_quantity",
		).
		From(orderLinesTable).
		Where(squirrel.Eq{"document_id": poID}).
		OrderBy("line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []purchasing.PurchaseOrderLine
	if err := pgxscan.Select(ctx, r.querier(ctx), &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}

	return lines, nil
}

// SaveLines replaces all lines of a purchase order.
// MUST be called inside a transaction context (COPY requires it).
func (r *PurchaseOrderRepo) SaveLines(ctx context.Context, poID id.ID, lines []purchasing.PurchaseOrderLine) error {
	deleteSQL := "DELETE FROM " + orderLinesTable + " WHERE document_id = $1"
	if _, err := r.querier(ctx).Exec(ctx, deleteSQL, poID); err != nil {
		return fmt.Errorf("delete existing lines: %w", err)
	}

	if len(lines) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, []any{
			line.LineID, poID, line.LineNo, line.MedicineID,
			line.BatchNumber, line.ManufacturingDate, line.ExpiryDate,
			line.Quantity, line.UnitPrice, line.Subtotal,
			line.ReceivedQuantity, line.DamagedQuantity,
		})
	}

	if _, err := r.inserter.CopyFromSlice(ctx, orderLinesTable, lineColumns, rows); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}

	return nil
}

// List retrieves purchase orders with filtering and pagination.
func (r *PurchaseOrderRepo) List(ctx context.Context, filter purchasing.ListFilter) (domain.ListResult[*purchasing.PurchaseOrder], error) {
	result := domain.ListResult[*purchasing.PurchaseOrder]{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	q := r.baseSelect()

	if !filter.IncludeDeleted {
		q = q.Where(squirrel.Eq{"deletion_mark": false})
	}

	if filter.SupplierID != nil {
		q = q.Where(squirrel.Eq{"supplier_id": *filter.SupplierID})
	}

	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}

	if filter.DateFrom != nil {
		q = q.Where(squirrel.GtOrEq{"date": *filter.DateFrom})
	}

	if filter.DateTo != nil {
		q = q.Where(squirrel.LtOrEq{"date": *filter.DateTo})
	}

	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"number": searchPattern},
			squirrel.ILike{"supplier_invoice_number": searchPattern},
		})
	}

	countQ := r.builder().Select("COUNT(*)").FromSelect(q, "sub")
	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}

	querier := r.querier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count: %w", err)
	}

	orderBy := "date DESC"
	if filter.OrderBy != "" {
		orderBy = filter.OrderBy
	}
	q = q.OrderBy(orderBy)

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("select: %w", err)
	}

	return result, nil
}
