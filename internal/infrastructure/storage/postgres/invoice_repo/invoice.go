// Package invoice_repo provides the PostgreSQL implementation of invoice storage.
package invoice_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/core/id"
	"pharmapos/internal/domain"
	"pharmapos/internal/domain/billing"
	"pharmapos/internal/infrastructure/storage/postgres"
)

const (
	invoicesTable     = "doc_invoices"
	invoiceLinesTable = "doc_invoice_lines"
)

var lineColumns = []string{
	"line_id", "document_id", "line_no", "medicine_id",
	"batch_id", "batch_number", "manufacturing_date", "expiry_date",
	"quantity", "unit_price", "subtotal",
}

// Compile-time check that InvoiceRepo implements billing.Repository.
var _ billing.Repository = (*InvoiceRepo)(nil)

// InvoiceRepo implements billing.Repository.
// Line rows are bulk-inserted via the COPY protocol.
type InvoiceRepo struct {
	txManager  *postgres.TxManager
	inserter   *postgres.BatchInserter
	selectCols []string
}

// NewInvoiceRepo creates a new invoice repository.
func NewInvoiceRepo(txManager *postgres.TxManager) *InvoiceRepo {
	return &InvoiceRepo{
		txManager:  txManager,
		inserter:   postgres.NewBatchInserter(txManager),
		selectCols: postgres.ExtractDBColumns[billing.Invoice](),
	}
}

func (r *InvoiceRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *InvoiceRepo) baseSelect() squirrel.SelectBuilder {
	return r.builder().
		Select(r.selectCols...).
		From(invoicesTable)
}

func (r *InvoiceRepo) querier(ctx context.Context) postgres.Querier {
	return r.txManager.GetQuerier(ctx)
}

// Create inserts a new invoice header using its "db" tags.
func (r *InvoiceRepo) Create(ctx context.Context, inv *billing.Invoice) error {
	data := postgres.StructToMap(inv)

	filteredData := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if val, ok := data[col]; ok {
			filteredData[col] = val
		}
	}

	q := r.builder().
		Insert(invoicesTable).
		SetMap(filteredData)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}

	return nil
}

// GetByID retrieves an invoice header by ID.
func (r *InvoiceRepo) GetByID(ctx context.Context, invID id.ID) (*billing.Invoice, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"id": invID}).
		Limit(1)

	return r.getOne(ctx, q, invID.String())
}

// GetByNumber retrieves an invoice header by its number.
func (r *InvoiceRepo) GetByNumber(ctx context.Context, number string) (*billing.Invoice, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"number": number}).
		Limit(1)

	return r.getOne(ctx, q, number)
}

// GetForUpdate retrieves an invoice header with a row lock.
func (r *InvoiceRepo) GetForUpdate(ctx context.Context, invID id.ID) (*billing.Invoice, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"id": invID}).
		Suffix("FOR UPDATE")

	return r.getOne(ctx, q, invID.String())
}

func (r *InvoiceRepo) getOne(ctx context.Context, q squirrel.SelectBuilder, key string) (*billing.Invoice, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var inv billing.Invoice
	if err := pgxscan.Get(ctx, r.querier(ctx), &inv, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("invoice", key)
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}

	return &inv, nil
}

// Update modifies an invoice header with optimistic locking.
func (r *InvoiceRepo) Update(ctx context.Context, inv *billing.Invoice) error {
	data := postgres.StructToMap(inv)

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
		Update(invoicesTable).
		SetMap(filteredData).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": inv.ID}).
		Where(squirrel.Eq{"version": inv.Version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("invoice", inv.ID)
	}

	return nil
}

// GetLines retrieves all lines of an invoice ordered by line number.
func (r *InvoiceRepo) GetLines(ctx context.Context, invID id.ID) ([]billing.InvoiceLine, error) {
	q := r.builder().
		Select(
			"line_id", "line_no", "medicine_id",
			"batch_id", "batch_number", "manufacturing_date", "expiry_date",
			"quantity", "unit_price", "subtotal",
		).
		From(invoiceLinesTable).
		Where(squirrel.Eq{"document_id": invID}).
		OrderBy("line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []billing.InvoiceLine
	if err := pgxscan.Select(ctx, r.querier(ctx), &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}

	return lines, nil
}

// SaveLines replaces all lines of an invoice.
// MUST be called inside a transaction context (COPY requires it).
func (r *InvoiceRepo) SaveLines(ctx context.Context, invID id.ID, lines []billing.InvoiceLine) error {
	deleteSQL := "DELETE FROM " + invoiceLinesTable + " WHERE document_id = $1"
	if _, err := r.querier(ctx).Exec(ctx, deleteSQL, invID); err != nil {
		return fmt.Errorf("delete existing lines: %w", err)
	}

	if len(lines) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, []any{
			line.LineID, invID, line.LineNo, line.MedicineID,
			line.BatchID, line.BatchNumber, line.ManufacturingDate, line.ExpiryDate,
			line.Quantity, line.UnitPrice, line.Subtotal,
		})
	}

	if _, err := r.inserter.CopyFromSlice(ctx, invoiceLinesTable, lineColumns, rows); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}

	return nil
}

// List retrieves invoices with filtering and pagination.
func (r *InvoiceRepo) List(ctx context.Context, filter billing.ListFilter) (domain.ListResult[*billing.Invoice], error) {
	result := domain.ListResult[*billing.Invoice]{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	q := r.baseSelect()

	if !filter.IncludeDeleted {
		q = q.Where(squirrel.Eq{"deletion_mark": false})
	}

	if filter.CustomerMobile != nil {
		q = q.Where(squirrel.Eq{"customer_mobile": *filter.CustomerMobile})
	}

	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}

	if filter.PaymentMethod != nil {
		q = q.Where(squirrel.Eq{"payment_method": *filter.PaymentMethod})
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
			squirrel.ILike{"customer_name": searchPattern},
			squirrel.ILike{"customer_mobile": searchPattern},
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
