package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/internal/core/id"
)

func TestComputeStatus(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		batch *Batch
		want  BatchStatus
	}{
		{
			name: "available",
			batch: &Batch{
				ExpiryDate: now.AddDate(1, 0, 0),
				Quantity:   50,
			},
			want: StatusAvailable,
		},
		{
			name: "expired when expiry passed",
			batch: &Batch{
				ExpiryDate: now.AddDate(0, -1, 0),
				Quantity:   50,
			},
			want: StatusExpired,
		},
		{
			name: "expired exactly at expiry instant",
			batch: &Batch{
				ExpiryDate: now,
				Quantity:   50,
			},
			want: StatusExpired,
		},
		{
			name: "sold-out when empty",
			batch: &Batch{
				ExpiryDate: now.AddDate(1, 0, 0),
				Quantity:   0,
			},
			want: StatusSoldOut,
		},
		{
			name: "expired wins over sold-out",
			batch: &Batch{
				ExpiryDate: now.AddDate(0, -1, 0),
				Quantity:   0,
			},
			want: StatusExpired,
		},
		{
			name: "damaged is sticky",
			batch: &Batch{
				ExpiryDate: now.AddDate(1, 0, 0),
				Quantity:   50,
				Status:     StatusDamaged,
			},
			want: StatusDamaged,
		},
		{
			name: "damaged sticky even when expired",
			batch: &Batch{
				ExpiryDate: now.AddDate(0, -1, 0),
				Quantity:   0,
				Status:     StatusDamaged,
			},
			want: StatusDamaged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeStatus(tt.batch, now))
		})
	}
}

func TestBatchSellable(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	sellable := &Batch{
		ManufacturingDate: now.AddDate(-1, 0, 0),
		ExpiryDate:        now.AddDate(1, 0, 0),
		Quantity:          10,
	}
	assert.True(t, sellable.Sellable(now))

	futureMfg := &Batch{
		ManufacturingDate: now.AddDate(0, 0, 1),
		ExpiryDate:        now.AddDate(1, 0, 0),
		Quantity:          10,
	}
	assert.False(t, futureMfg.Sellable(now), "future manufacturing date must not be sellable")

	damaged := &Batch{
		ManufacturingDate: now.AddDate(-1, 0, 0),
		ExpiryDate:        now.AddDate(1, 0, 0),
		Quantity:          10,
		Status:            StatusDamaged,
	}
	assert.False(t, damaged.Sellable(now))
}

func TestBatchValidate(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	valid := NewBatch(id.New(), "LOT-1", now.AddDate(-1, 0, 0), now.AddDate(1, 0, 0), 100)
	require.NoError(t, valid.Validate(ctx))

	t.Run("expiry before manufacturing", func(t *testing.T) {
		b := NewBatch(id.New(), "LOT-2", now.AddDate(-1, 0, 0), now.AddDate(-2, 0, 0), 100)
		err := b.Validate(ctx)
		require.Error(t, err)
	})

	t.Run("manufacturing in the future", func(t *testing.T) {
		b := NewBatch(id.New(), "LOT-3", now.AddDate(0, 0, 2), now.AddDate(1, 0, 0), 100)
		err := b.Validate(ctx)
		require.Error(t, err)
	})

	t.Run("missing batch number", func(t *testing.T) {
		b := NewBatch(id.New(), "", now.AddDate(-1, 0, 0), now.AddDate(1, 0, 0), 100)
		err := b.Validate(ctx)
		require.Error(t, err)
	})

	t.Run("negative quantity", func(t *testing.T) {
		b := NewBatch(id.New(), "LOT-4", now.AddDate(-1, 0, 0), now.AddDate(1, 0, 0), -1)
		err := b.Validate(ctx)
		require.Error(t, err)
	})
}
