package purchasing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/core/id"
	"pharmapos/internal/core/types"
	"pharmapos/internal/domain"
	"pharmapos/internal/domain/inventory"
	"pharmapos/pkg/numerator"
)

// --- Fakes ---

// passthroughTx runs the function directly, no real transaction.
type passthroughTx struct{}

func (passthroughTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakePORepo struct {
	orders map[id.ID]*PurchaseOrder
	lines  map[id.ID][]PurchaseOrderLine
}

func newFakePORepo() *fakePORepo {
	return &fakePORepo{
		orders: make(map[id.ID]*PurchaseOrder),
		lines:  make(map[id.ID][]PurchaseOrderLine),
	}
}

func (f *fakePORepo) Create(ctx context.Context, po *PurchaseOrder) error {
	f.orders[po.ID] = po
	return nil
}

func (f *fakePORepo) GetByID(ctx context.Context, poID id.ID) (*PurchaseOrder, error) {
	if po, ok := f.orders[poID]; ok {
		return po, nil
	}
	return nil, apperror.NewNotFound("purchase order", poID.String())
}

func (f *fakePORepo) GetByNumber(ctx context.Context, number string) (*PurchaseOrder, error) {
	for _, po := range f.orders {
		if po.Number == number {
			return po, nil
		}
	}
	return nil, apperror.NewNotFound("purchase order", number)
}

func (f *fakePORepo) GetForUpdate(ctx context.Context, poID id.ID) (*PurchaseOrder, error) {
	return f.GetByID(ctx, poID)
}

func (f *fakePORepo) Update(ctx context.Context, po *PurchaseOrder) error {
	f.orders[po.ID] = po
	return nil
}

func (f *fakePORepo) GetLines(ctx context.Context, poID id.ID) ([]PurchaseOrderLine, error) {
	return f.lines[poID], nil
}

func (f *fakePORepo) SaveLines(ctx context.Context, poID id.ID, lines []PurchaseOrderLine) error {
	f.lines[poID] = lines
	return nil
}

func (f *fakePORepo) List(ctx context.Context, filter ListFilter) (domain.ListResult[*PurchaseOrder], error) {
	var items []*PurchaseOrder
	for _, po := range f.orders {
		items = append(items, po)
	}
	return domain.ListResult[*PurchaseOrder]{Items: items, TotalCount: int64(len(items))}, nil
}

// fakeReceiver records the batches booked into stock.
type fakeReceiver struct {
	batches []*inventory.Batch
}

func (f *fakeReceiver) AddStock(ctx context.Context, batch *inventory.Batch) (*inventory.Batch, error) {
	if err := batch.Validate(ctx); err != nil {
		return nil, err
	}
	f.batches = append(f.batches, batch)
	return batch, nil
}

// seqRow / seqQuerier back the numerator with an in-memory counter.
type seqRow struct{ val int64 }

func (r *seqRow) Scan(dest ...any) error {
	if ptr, ok := dest[0].(*int64); ok {
		*ptr = r.val
	}
	return nil
}

type seqQuerier struct{ current int64 }

func (q *seqQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.current++
	return &seqRow{val: q.current}
}

func newTestNumerator() *numerator.Service {
	return numerator.New(&seqQuerier{})
}

// --- Helpers ---

type fixture struct {
	svc   *Service
	repo  *fakePORepo
	stock *fakeReceiver
}

func newFixture() *fixture {
	repo := newFakePORepo()
	stock := &fakeReceiver{}
	svc := NewService(repo, stock, newTestNumerator(), passthroughTx{})
	return &fixture{svc: svc, repo: repo, stock: stock}
}

func orderLine(medID id.ID, number string, qty int64, price string) OrderLineRequest {
	now := time.Now().UTC()
	return OrderLineRequest{
		MedicineID:        medID,
		BatchNumber:       number,
		ManufacturingDate: now.AddDate(0, -1, 0),
		ExpiryDate:        now.AddDate(2, 0, 0),
		Quantity:          qty,
		UnitPrice:         types.MustMoney(price),
	}
}

// --- Tests ---

func TestCreate_NumbersAndTotals(t *testing.T) {
	f := newFixture()
	medA := id.New()
	medB := id.New()

	po, err := f.svc.Create(context.Background(), CreateRequest{
		SupplierID: id.New(),
		Lines: []OrderLineRequest{
			orderLine(medA, "LOT-A", 100, "2.50"),
			orderLine(medB, "LOT-B", 40, "10.00"),
		},
		OrderedBy: "manager-1",
	})
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("PO-%d-000001", time.Now().Year()), po.Number)
	assert.Equal(t, OrderPending, po.Status)
	require.Len(t, po.Lines, 2)
	assert.Equal(t, 1, po.Lines[0].LineNo)
	assert.Equal(t, 2, po.Lines[1].LineNo)

	// 100 × 2.50 + 40 × 10.00
	assert.True(t, po.Subtotal.Equal(types.MustMoney("650")), "subtotal %s", po.Subtotal)
	assert.True(t, po.Total.Equal(types.MustMoney("650")), "total %s", po.Total)

	assert.Len(t, f.repo.orders, 1)
	assert.Len(t, f.repo.lines[po.ID], 2)
}

func TestCreate_Validates(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), CreateRequest{
		SupplierID: id.New(),
		OrderedBy:  "manager-1",
	})
	require.Error(t, err, "no lines")

	_, err = f.svc.Create(context.Background(), CreateRequest{
		SupplierID: id.New(),
		Lines:      []OrderLineRequest{orderLine(id.New(), "LOT-A", 0, "2.50")},
		OrderedBy:  "manager-1",
	})
	require.Error(t, err, "zero quantity")

	_, err = f.svc.Create(context.Background(), CreateRequest{
		Lines:     []OrderLineRequest{orderLine(id.New(), "LOT-A", 10, "2.50")},
		OrderedBy: "manager-1",
	})
	require.Error(t, err, "missing supplier")
}

func TestReceive_FullDelivery(t *testing.T) {
	f := newFixture()
	medA := id.New()
	supID := id.New()

	po, err := f.svc.Create(context.Background(), CreateRequest{
		SupplierID: supID,
		Lines:      []OrderLineRequest{orderLine(medA, "LOT-A", 100, "2.00")},
		OrderedBy:  "manager-1",
	})
	require.NoError(t, err)

	received, err := f.svc.Receive(context.Background(), po.ID, ReceiveRequest{
		Lines:      []ReceiptLine{{LineNo: 1, ReceivedQuantity: 100}},
		ReceivedBy: "pharmacist-1",
	})
	require.NoError(t, err)

	assert.Equal(t, OrderReceived, received.Status)
	require.NotNil(t, received.ReceivedDate)
	require.NotNil(t, received.ReceivedBy)
	assert.Equal(t, "pharmacist-1", *received.ReceivedBy)

	require.Len(t, f.stock.batches, 1)
	batch := f.stock.batches[0]
	assert.Equal(t, medA, batch.MedicineID)
	assert.Equal(t, "LOT-A", batch.BatchNumber)
	assert.Equal(t, int64(100), batch.Quantity)
	assert.True(t, batch.PurchasePrice.Equal(types.MustMoney("2.00")))
	assert.True(t, batch.SellingPrice.Equal(types.MustMoney("2.60")), "30%% markup, got %s", batch.SellingPrice)
	require.NotNil(t, batch.SupplierID)
	assert.Equal(t, supID, *batch.SupplierID)
}

func TestReceive_PartialAndDamaged(t *testing.T) {
	f := newFixture()
	medA := id.New()
	medB := id.New()

	po, err := f.svc.Create(context.Background(), CreateRequest{
		SupplierID: id.New(),
		Lines: []OrderLineRequest{
			orderLine(medA, "LOT-A", 100, "2.00"),
			orderLine(medB, "LOT-B", 50, "4.00"),
		},
		OrderedBy: "manager-1",
	})
	require.NoError(t, err)

	// Only the first line arrives, with 5 damaged units.
	received, err := f.svc.Receive(context.Background(), po.ID, ReceiveRequest{
		Lines:      []ReceiptLine{{LineNo: 1, ReceivedQuantity: 100, DamagedQuantity: 5}},
		ReceivedBy: "pharmacist-1",
	})
	require.NoError(t, err)

	assert.Equal(t, OrderPartiallyReceived, received.Status)
	require.Len(t, f.stock.batches, 1)
	assert.Equal(t, int64(95), f.stock.batches[0].Quantity, "only the good quantity reaches stock")
}

func TestReceive_Guards(t *testing.T) {
	f := newFixture()
	medA := id.New()

	po, err := f.svc.Create(context.Background(), CreateRequest{
		SupplierID: id.New(),
		Lines:      []OrderLineRequest{orderLine(medA, "LOT-A", 10, "2.00")},
		OrderedBy:  "manager-1",
	})
	require.NoError(t, err)

	_, err = f.svc.Receive(context.Background(), po.ID, ReceiveRequest{
		Lines:      []ReceiptLine{{LineNo: 7, ReceivedQuantity: 10}},
		ReceivedBy: "pharmacist-1",
	})
	require.Error(t, err, "unknown line number")

	_, err = f.svc.Receive(context.Background(), po.ID, ReceiveRequest{
		Lines:      []ReceiptLine{{LineNo: 1, ReceivedQuantity: 5, DamagedQuantity: 8}},
		ReceivedBy: "pharmacist-1",
	})
	require.Error(t, err, "damaged exceeds received")

	_, err = f.svc.Receive(context.Background(), id.New(), ReceiveRequest{
		Lines:      []ReceiptLine{{LineNo: 1, ReceivedQuantity: 10}},
		ReceivedBy: "pharmacist-1",
	})
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestReceive_AlreadyReceived(t *testing.T) {
	f := newFixture()
	medA := id.New()

	po, err := f.svc.Create(context.Background(), CreateRequest{
		SupplierID: id.New(),
		Lines:      []OrderLineRequest{orderLine(medA, "LOT-A", 10, "2.00")},
		OrderedBy:  "manager-1",
	})
	require.NoError(t, err)

	_, err = f.svc.Receive(context.Background(), po.ID, ReceiveRequest{
		Lines:      []ReceiptLine{{LineNo: 1, ReceivedQuantity: 10}},
		ReceivedBy: "pharmacist-1",
	})
	require.NoError(t, err)

	_, err = f.svc.Receive(context.Background(), po.ID, ReceiveRequest{
		Lines:      []ReceiptLine{{LineNo: 1, ReceivedQuantity: 10}},
		ReceivedBy: "pharmacist-1",
	})
	require.Error(t, err)
	assert.Len(t, f.stock.batches, 1, "second receipt books nothing")
}

func TestCancel_OnlyPending(t *testing.T) {
	f := newFixture()
	medA := id.New()

	po, err := f.svc.Create(context.Background(), CreateRequest{
		SupplierID: id.New(),
		Lines:      []OrderLineRequest{orderLine(medA, "LOT-A", 10, "2.00")},
		OrderedBy:  "manager-1",
	})
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(context.Background(), po.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderCancelled, cancelled.Status)

	// A cancelled order accepts neither deliveries nor another cancel.
	_, err = f.svc.Receive(context.Background(), po.ID, ReceiveRequest{
		Lines:      []ReceiptLine{{LineNo: 1, ReceivedQuantity: 10}},
		ReceivedBy: "pharmacist-1",
	})
	require.Error(t, err)

	_, err = f.svc.Cancel(context.Background(), po.ID)
	require.Error(t, err)
}

func TestCancel_ReceivedOrderRejected(t *testing.T) {
	f := newFixture()
	medA := id.New()

	po, err := f.svc.Create(context.Background(), CreateRequest{
		SupplierID: id.New(),
		Lines:      []OrderLineRequest{orderLine(medA, "LOT-A", 10, "2.00")},
		OrderedBy:  "manager-1",
	})
	require.NoError(t, err)

	_, err = f.svc.Receive(context.Background(), po.ID, ReceiveRequest{
		Lines:      []ReceiptLine{{LineNo: 1, ReceivedQuantity: 4}},
		ReceivedBy: "pharmacist-1",
	})
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), po.ID)
	require.Error(t, err, "partially received orders cannot be cancelled")
}
