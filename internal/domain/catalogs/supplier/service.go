package supplier

import (
	"context"
	"fmt"
	"time"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/core/tx"
	"pharmapos/internal/domain"
	"pharmapos/pkg/numerator"
)

// Service provides business logic for the Supplier catalog.
type Service struct {
	*domain.CatalogService[*Supplier]
	repo      Repository
	numerator *numerator.Service
}

// NewService creates a new Supplier service.
func NewService(
	repo Repository,
	txManager tx.Manager,
	numerator *numerator.Service,
) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Supplier]{
		Repo:       repo,
		TxManager:  txManager,
		Numerator:  numerator,
		EntityName: "supplier",
	})

	svc := &Service{
		CatalogService: base,
		repo:           repo,
		numerator:      numerator,
	}

	base.Hooks().OnBeforeCreate(svc.prepareForCreate)
	base.Hooks().OnBeforeUpdate(svc.checkNameUnique)

	return svc
}

func (s *Service) prepareForCreate(ctx context.Context, sp *Supplier) error {
	if sp.Code == "" {
		cfg := numerator.DefaultConfig("SUP")
		cfg.IncludeYear = false
		cfg.ResetPeriod = "never"
		code, err := s.numerator.GetNextNumber(ctx, cfg, nil, time.Now())
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		sp.Code = code
	}
	if sp.Status == "" {
		sp.Status = StatusActive
	}
	if sp.PaymentTerms == "" {
		sp.PaymentTerms = TermsCash
	}
	return s.checkNameUnique(ctx, sp)
}

func (s *Service) checkNameUnique(ctx context.Context, sp *Supplier) error {
	existing, err := s.repo.FindByName(ctx, sp.Name)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil
		}
		return err
	}
	if existing.ID != sp.ID {
		return apperror.NewDuplicate("supplier", "name", sp.Name)
	}
	return nil
}
