package medicine

import (
	"context"
	"fmt"
	"time"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/core/id"
	"pharmapos/internal/core/tx"
	"pharmapos/internal/domain"
	"pharmapos/pkg/numerator"
)

// Service provides business logic for the Medicine catalog.
// Uses composition with domain.CatalogService for common CRUD operations.
type Service struct {
	*domain.CatalogService[*Medicine]
	repo      Repository
	numerator *numerator.Service
}

// NewService creates a new Medicine service.
func NewService(
	repo Repository,
	txManager tx.Manager,
	numerator *numerator.Service,
) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Medicine]{
		Repo:       repo,
		TxManager:  txManager,
		Numerator:  numerator,
		EntityName: "medicine",
	})

	svc := &Service{
		CatalogService: base,
		repo:           repo,
		numerator:      numerator,
	}

	base.Hooks().OnBeforeCreate(svc.prepareForCreate)
	base.Hooks().OnBeforeUpdate(svc.prepareForUpdate)

	return svc
}

// prepareForCreate handles code generation and uniqueness checks before create.
func (s *Service) prepareForCreate(ctx context.Context, m *Medicine) error {
	// Generate code if not provided
	if m.Code == "" {
		cfg := numerator.DefaultConfig("MED")
		cfg.IncludeYear = false
		cfg.ResetPeriod = "never"
		code, err := s.numerator.GetNextNumber(ctx, cfg, nil, time.Now())
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		m.Code = code
	}

	if m.Status == "" {
		m.Status = StatusActive
	}
	if m.MinimumStockLevel == 0 {
		m.MinimumStockLevel = DefaultMinimumStockLevel
	}

	return s.checkUnique(ctx, m)
}

// prepareForUpdate handles uniqueness checks before update.
func (s *Service) prepareForUpdate(ctx context.Context, m *Medicine) error {
	return s.checkUnique(ctx, m)
}

// checkUnique verifies name and barcode are not used by another medicine.
func (s *Service) checkUnique(ctx context.Context, m *Medicine) error {
	existing, err := s.findOther(ctx, m.ID, func(ctx context.Context) (*Medicine, error) {
		return s.repo.FindByName(ctx, m.Name)
	})
	if err != nil {
		return err
	}
	if existing != nil {
		return apperror.NewDuplicate("medicine", "name", m.Name)
	}

	if m.Barcode != nil && *m.Barcode != "" {
		existing, err = s.findOther(ctx, m.ID, func(ctx context.Context) (*Medicine, error) {
			return s.repo.FindByBarcode(ctx, *m.Barcode)
		})
		if err != nil {
			return err
		}
		if existing != nil {
			return apperror.NewDuplicate("medicine", "barcode", *m.Barcode)
		}
	}

	return nil
}

// findOther runs a lookup and returns the found medicine only when it is a
// different record than excludeID. Not-found is not an error here.
func (s *Service) findOther(ctx context.Context, excludeID id.ID, find func(context.Context) (*Medicine, error)) (*Medicine, error) {
	found, err := find(ctx)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if found.ID == excludeID {
		return nil, nil
	}
	return found, nil
}

// --- Entity-specific methods (not in base CatalogService) ---

// FindByBarcode retrieves a medicine by barcode.
func (s *Service) FindByBarcode(ctx context.Context, barcode string) (*Medicine, error) {
	m, err := s.repo.FindByBarcode(ctx, barcode)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("medicine", barcode)
		}
		return nil, err
	}
	return m, nil
}

// Deactivate marks a medicine as not sellable without deleting it.
func (s *Service) Deactivate(ctx context.Context, medicineID id.ID) error {
	m, err := s.GetByID(ctx, medicineID)
	if err != nil {
		return err
	}
	if m.Status == StatusInactive {
		return nil
	}
	m.Status = StatusInactive
	return s.Update(ctx, m)
}
