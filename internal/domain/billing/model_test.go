package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/core/id"
	"pharmapos/internal/core/types"
	"pharmapos/internal/domain/inventory"
)

func TestCollapseAllocations_WeightedAverage(t *testing.T) {
	medID := id.New()
	expiryA := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	expiryB := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	// Batch A: 5 @ 10, batch B: 3 @ 12.
	allocs := []inventory.Allocation{
		{BatchID: id.New(), BatchNumber: "A", ExpiryDate: expiryA, Quantity: 5, UnitPrice: types.MustMoney("10")},
		{BatchID: id.New(), BatchNumber: "B", ExpiryDate: expiryB, Quantity: 3, UnitPrice: types.MustMoney("12")},
	}

	line := CollapseAllocations(medID, 1, allocs)

	assert.Equal(t, int64(8), line.Quantity)
	// (5×10 + 3×12) / 8 = 9.5
	assert.True(t, line.UnitPrice.Equal(types.MustMoney("9.5")), "got %s", line.UnitPrice)
	assert.True(t, line.Subtotal.Equal(types.MustMoney("76")), "got %s", line.Subtotal)

	// Primary batch is the first (earliest expiry) allocation.
	assert.Equal(t, "A", line.BatchNumber)
	assert.Equal(t, expiryA, line.ExpiryDate)
}

func TestRecalculateTotals_TaxExample(t *testing.T) {
	inv := NewInvoice("cashier-1")
	inv.Lines = []InvoiceLine{
		{MedicineID: id.New(), Quantity: 8, Subtotal: types.MustMoney("76")},
	}

	inv.RecalculateTotals(false)

	// subtotal 76, discount 0, tax 13% → 9.88, total 85.88
	assert.True(t, inv.Subtotal.Equal(types.MustMoney("76")), "subtotal %s", inv.Subtotal)
	assert.True(t, inv.TaxAmount.Equal(types.MustMoney("9.88")), "tax %s", inv.TaxAmount)
	assert.True(t, inv.Total.Equal(types.MustMoney("85.88")), "total %s", inv.Total)

	// amountPaid defaults to total, so nothing is due.
	assert.True(t, inv.AmountPaid.Equal(inv.Total))
	assert.True(t, inv.AmountDue.IsZero())
	assert.Equal(t, PaymentPaid, inv.PaymentStatus)
}

func TestRecalculateTotals_DiscountAmount(t *testing.T) {
	inv := NewInvoice("cashier-1")
	inv.Lines = []InvoiceLine{
		{MedicineID: id.New(), Quantity: 10, Subtotal: types.MustMoney("100")},
	}
	inv.Discount = types.MustMoney("20")

	inv.RecalculateTotals(false)

	// (100 − 20) × 13% = 10.40; total = 80 + 10.40 = 90.40
	assert.True(t, inv.TaxAmount.Equal(types.MustMoney("10.40")), "tax %s", inv.TaxAmount)
	assert.True(t, inv.Total.Equal(types.MustMoney("90.40")), "total %s", inv.Total)
}

func TestRecalculateTotals_DiscountPercentage(t *testing.T) {
	inv := NewInvoice("cashier-1")
	inv.Lines = []InvoiceLine{
		{MedicineID: id.New(), Quantity: 10, Subtotal: types.MustMoney("200")},
	}
	inv.DiscountPercentage = types.MustMoney("10")

	inv.RecalculateTotals(false)

	assert.True(t, inv.Discount.Equal(types.MustMoney("20")), "discount %s", inv.Discount)
	// (200 − 20) × 13% = 23.40; total = 203.40
	assert.True(t, inv.Total.Equal(types.MustMoney("203.40")), "total %s", inv.Total)
}

func TestRecalculateTotals_PartialPayment(t *testing.T) {
	inv := NewInvoice("cashier-1")
	inv.Lines = []InvoiceLine{
		{MedicineID: id.New(), Quantity: 1, Subtotal: types.MustMoney("100")},
	}
	inv.AmountPaid = types.MustMoney("50")

	inv.RecalculateTotals(true)

	assert.True(t, inv.Total.Equal(types.MustMoney("113")), "total %s", inv.Total)
	assert.True(t, inv.AmountDue.Equal(types.MustMoney("63")), "due %s", inv.AmountDue)
	assert.Equal(t, PaymentPartial, inv.PaymentStatus)
}

func TestRecalculateTotals_NoPayment(t *testing.T) {
	inv := NewInvoice("cashier-1")
	inv.PaymentMethod = PayCredit
	inv.Lines = []InvoiceLine{
		{MedicineID: id.New(), Quantity: 1, Subtotal: types.MustMoney("100")},
	}
	inv.AmountPaid = types.Zero()

	inv.RecalculateTotals(true)

	assert.Equal(t, PaymentPending, inv.PaymentStatus)
	assert.True(t, inv.AmountDue.Equal(inv.Total))
}

func TestApplyRefund_Transitions(t *testing.T) {
	now := time.Now().UTC()

	t.Run("full refund", func(t *testing.T) {
		inv := NewInvoice("cashier-1")
		inv.Number = "INV-2026-000001"
		inv.Total = types.MustMoney("85.88")

		err := inv.ApplyRefund(types.MustMoney("85.88"), "customer return", now)
		require.NoError(t, err)
		assert.Equal(t, StatusRefunded, inv.Status)
		assert.True(t, inv.RefundAmount.Equal(types.MustMoney("85.88")))
		require.NotNil(t, inv.RefundReason)
		assert.Equal(t, "customer return", *inv.RefundReason)
		require.NotNil(t, inv.RefundDate)
	})

	t.Run("partial refund", func(t *testing.T) {
		inv := NewInvoice("cashier-1")
		inv.Number = "INV-2026-000002"
		inv.Total = types.MustMoney("85.88")

		err := inv.ApplyRefund(types.MustMoney("40"), "partial return", now)
		require.NoError(t, err)
		assert.Equal(t, StatusPartiallyRefunded, inv.Status)
		assert.True(t, inv.RefundAmount.Equal(types.MustMoney("40")))
	})

	t.Run("refund after full refund is rejected", func(t *testing.T) {
		inv := NewInvoice("cashier-1")
		inv.Number = "INV-2026-000003"
		inv.Total = types.MustMoney("100")

		require.NoError(t, inv.ApplyRefund(types.MustMoney("100"), "return", now))

		err := inv.ApplyRefund(types.MustMoney("10"), "again", now)
		require.Error(t, err)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeAlreadyRefunded, appErr.Code)
	})

	t.Run("partial refund can be completed later", func(t *testing.T) {
		inv := NewInvoice("cashier-1")
		inv.Number = "INV-2026-000004"
		inv.Total = types.MustMoney("100")

		require.NoError(t, inv.ApplyRefund(types.MustMoney("30"), "first", now))
		require.NoError(t, inv.ApplyRefund(types.MustMoney("100"), "rest", now))
		assert.Equal(t, StatusRefunded, inv.Status)
	})

	t.Run("refund exceeding total is rejected", func(t *testing.T) {
		inv := NewInvoice("cashier-1")
		inv.Total = types.MustMoney("50")

		err := inv.ApplyRefund(types.MustMoney("50.01"), "too much", now)
		require.Error(t, err)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeValidation, appErr.Code)
	})

	t.Run("non-positive refund is rejected", func(t *testing.T) {
		inv := NewInvoice("cashier-1")
		inv.Total = types.MustMoney("50")

		require.Error(t, inv.ApplyRefund(types.Zero(), "zero", now))
		require.Error(t, inv.ApplyRefund(types.MustMoney("-5"), "negative", now))
	})
}

func TestInvoiceValidate(t *testing.T) {
	ctx := context.Background()

	base := func() *Invoice {
		inv := NewInvoice("cashier-1")
		inv.Lines = []InvoiceLine{
			{MedicineID: id.New(), Quantity: 1, Subtotal: types.MustMoney("10")},
		}
		inv.RecalculateTotals(false)
		return inv
	}

	require.NoError(t, base().Validate(ctx))

	t.Run("no lines", func(t *testing.T) {
		inv := base()
		inv.Lines = nil
		require.Error(t, inv.Validate(ctx))
	})

	t.Run("bad payment method", func(t *testing.T) {
		inv := base()
		inv.PaymentMethod = "barter"
		require.Error(t, inv.Validate(ctx))
	})

	t.Run("discount exceeds subtotal", func(t *testing.T) {
		inv := base()
		inv.Discount = types.MustMoney("999")
		require.Error(t, inv.Validate(ctx))
	})

	t.Run("missing cashier", func(t *testing.T) {
		inv := base()
		inv.Cashier = ""
		require.Error(t, inv.Validate(ctx))
	})
}
