package inventory

import (
	"context"
	"fmt"
	"time"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/core/id"
	"pharmapos/internal/core/tx"
	"pharmapos/pkg/logger"
)

// DefaultNearExpiryWindow mirrors the stock report default of 3 months.
const DefaultNearExpiryWindow = 90 * 24 * time.Hour

// Service provides stock receipt, adjustment and reporting on batches.
// Allocation for sales lives in Allocator; this service covers the rest
// of the batch lifecycle.
type Service struct {
	repo      Repository
	txManager tx.Manager
}

// NewService creates a new inventory service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
	}
}

// AddStock books a delivery. When a batch with the same medicine and lot
// number already exists, the quantity is merged into it; otherwise a new
// batch is created.
func (s *Service) AddStock(ctx context.Context, batch *Batch) (*Batch, error) {
	if err := batch.Validate(ctx); err != nil {
		return nil, err
	}

	var result *Batch
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.repo.FindByMedicineAndNumber(ctx, batch.MedicineID, batch.BatchNumber)
		if err != nil {
			if !apperror.IsNotFound(err) {
				return fmt.Errorf("find batch: %w", err)
			}

			batch.Status = ComputeStatus(batch, time.Now().UTC())
			if err := s.repo.Create(ctx, batch); err != nil {
				return fmt.Errorf("create batch: %w", err)
			}
			result = batch
			return nil
		}

		existing, err = s.repo.GetForUpdate(ctx, existing.ID)
		if err != nil {
			return fmt.Errorf("lock batch: %w", err)
		}

		existing.Quantity += batch.Quantity
		existing.Status = ComputeStatus(existing, time.Now().UTC())
		existing.Touch()
		if err := s.repo.Update(ctx, existing); err != nil {
			return fmt.Errorf("update batch: %w", err)
		}
		result = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock received",
		"medicine_id", result.MedicineID,
		"batch_number", result.BatchNumber,
		"quantity", result.Quantity,
	)

	return result, nil
}

// AdjustStock applies a signed correction to a batch (returns, damages,
// recounts). The resulting quantity must stay non-negative. The reason
// is recorded on the batch.
func (s *Service) AdjustStock(ctx context.Context, batchID id.ID, delta int64, reason string) (*Batch, error) {
	if reason == "" {
		return nil, apperror.NewValidation("adjustment reason is required").
			WithDetail("field", "reason")
	}

	var result *Batch
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		batch, err := s.repo.GetForUpdate(ctx, batchID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewNotFound("batch", batchID.String())
			}
			return fmt.Errorf("lock batch: %w", err)
		}

		if batch.Quantity+delta < 0 {
			return apperror.NewBusinessRule(apperror.CodeBusinessRule,
				"stock cannot go negative").
				WithDetail("batchId", batchID.String()).
				WithDetail("quantity", batch.Quantity).
				WithDetail("delta", delta)
		}

		batch.Quantity += delta
		batch.Notes = &reason
		batch.Status = ComputeStatus(batch, time.Now().UTC())
		batch.Touch()

		if err := s.repo.Update(ctx, batch); err != nil {
			return fmt.Errorf("update batch: %w", err)
		}
		result = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock adjusted",
		"batch_id", batchID,
		"delta", delta,
		"reason", reason,
	)

	return result, nil
}

// MarkDamaged flags a batch as damaged. Damaged batches are excluded
// from allocation and the flag is never recomputed away.
func (s *Service) MarkDamaged(ctx context.Context, batchID id.ID, reason string) (*Batch, error) {
	var result *Batch
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		batch, err := s.repo.GetForUpdate(ctx, batchID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewNotFound("batch", batchID.String())
			}
			return fmt.Errorf("lock batch: %w", err)
		}

		batch.Status = StatusDamaged
		if reason != "" {
			batch.Notes = &reason
		}
		batch.Touch()

		if err := s.repo.Update(ctx, batch); err != nil {
			return fmt.Errorf("update batch: %w", err)
		}
		result = batch
		return nil
	})
	return result, err
}

// GetByID retrieves a batch by ID.
func (s *Service) GetByID(ctx context.Context, batchID id.ID) (*Batch, error) {
	batch, err := s.repo.GetByID(ctx, batchID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("batch", batchID.String())
		}
		return nil, err
	}
	return batch, nil
}

// ListByMedicine returns all batches of a medicine in FEFO order.
func (s *Service) ListByMedicine(ctx context.Context, medicineID id.ID) ([]*Batch, error) {
	return s.repo.ListByMedicine(ctx, medicineID)
}

// AvailableQuantity sums the sellable stock of a medicine.
func (s *Service) AvailableQuantity(ctx context.Context, medicineID id.ID) (int64, error) {
	return s.repo.SellableQuantity(ctx, medicineID, time.Now().UTC())
}

// ExpiredBatches returns batches past expiry that still hold stock.
func (s *Service) ExpiredBatches(ctx context.Context) ([]*Batch, error) {
	return s.repo.Expired(ctx, time.Now().UTC())
}

// NearExpiry returns sellable batches expiring within the window.
// A zero window falls back to DefaultNearExpiryWindow.
func (s *Service) NearExpiry(ctx context.Context, window time.Duration) ([]*Batch, error) {
	if window <= 0 {
		window = DefaultNearExpiryWindow
	}
	return s.repo.NearExpiry(ctx, time.Now().UTC(), window)
}

// LowStock returns active medicines whose sellable stock is below their
// minimum stock level.
func (s *Service) LowStock(ctx context.Context) ([]LowStockItem, error) {
	return s.repo.LowStock(ctx, time.Now().UTC())
}
