package customer

import (
	"context"
	"fmt"
	"time"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/core/tx"
	"pharmapos/internal/core/types"
	"pharmapos/internal/domain"
	"pharmapos/pkg/numerator"
)

// Service provides business logic for the Customer catalog.
type Service struct {
	*domain.CatalogService[*Customer]
	repo      Repository
	txManager tx.Manager
	numerator *numerator.Service
}

// NewService creates a new Customer service.
func NewService(
	repo Repository,
	txManager tx.Manager,
	numerator *numerator.Service,
) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Customer]{
		Repo:       repo,
		TxManager:  txManager,
		Numerator:  numerator,
		EntityName: "customer",
	})

	svc := &Service{
		CatalogService: base,
		repo:           repo,
		txManager:      txManager,
		numerator:      numerator,
	}

	base.Hooks().OnBeforeCreate(svc.prepareForCreate)
	base.Hooks().OnBeforeUpdate(svc.prepareForUpdate)

	return svc
}

func (s *Service) prepareForCreate(ctx context.Context, c *Customer) error {
	if c.Code == "" {
		cfg := numerator.DefaultConfig("CUST")
		cfg.IncludeYear = false
		cfg.ResetPeriod = "never"
		code, err := s.numerator.GetNextNumber(ctx, cfg, nil, time.Now())
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		c.Code = code
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	return s.checkMobileUnique(ctx, c)
}

func (s *Service) prepareForUpdate(ctx context.Context, c *Customer) error {
	return s.checkMobileUnique(ctx, c)
}

func (s *Service) checkMobileUnique(ctx context.Context, c *Customer) error {
	existing, err := s.repo.FindByMobile(ctx, c.Mobile)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil
		}
		return err
	}
	if existing.ID != c.ID {
		return apperror.NewDuplicate("customer", "mobile", c.Mobile)
	}
	return nil
}

// FindByMobile retrieves a customer by mobile number.
func (s *Service) FindByMobile(ctx context.Context, mobile string) (*Customer, error) {
	c, err := s.repo.FindByMobile(ctx, mobile)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("customer", mobile)
		}
		return nil, err
	}
	return c, nil
}

// RecordSale creates the customer if the mobile is unknown and folds the
// sale total into its purchase stats. Called by the outbox worker after a
// completed sale, so a failure here never affects the sale itself.
func (s *Service) RecordSale(ctx context.Context, mobile, name string, total types.Money, soldAt time.Time) error {
	if mobile == "" {
		return nil
	}

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		c, err := s.repo.FindByMobile(ctx, mobile)
		if err != nil {
			if !apperror.IsNotFound(err) {
				return err
			}
			if name == "" {
				name = "Unknown"
			}
			c = NewCustomer("", name, mobile)
			if err := s.prepareForCreate(ctx, c); err != nil {
				return err
			}
			c.ApplySale(total, soldAt)
			return s.repo.Create(ctx, c)
		}

		// Row lock so concurrent sales for the same customer serialize.
		c, err = s.repo.GetForUpdate(ctx, c.ID)
		if err != nil {
			return err
		}
		c.ApplySale(total, soldAt)
		return s.repo.Update(ctx, c)
	})
}

// RecordRefund subtracts a refunded amount from the customer stats.
func (s *Service) RecordRefund(ctx context.Context, mobile string, amount types.Money) error {
	if mobile == "" {
		return nil
	}

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		c, err := s.repo.FindByMobile(ctx, mobile)
		if err != nil {
			if apperror.IsNotFound(err) {
				// Customer was never created; nothing to adjust.
				return nil
			}
			return err
		}
		c, err = s.repo.GetForUpdate(ctx, c.ID)
		if err != nil {
			return err
		}
		c.ApplyRefund(amount)
		return s.repo.Update(ctx, c)
	})
}
