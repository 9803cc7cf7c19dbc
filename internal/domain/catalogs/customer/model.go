// Package customer provides the Customer catalog.
// Customers are optional on sales: a walk-in sale carries no customer,
// but when a mobile number is given the customer record is created or
// updated and its purchase stats are maintained asynchronously.
package customer

import (
	"context"
	"regexp"
	"time"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/core/entity"
	"pharmapos/internal/core/types"
)

var (
	mobileRE = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	emailRE  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// Status defines whether a customer record is active.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Customer represents a pharmacy customer identified by mobile number.
type Customer struct {
	entity.Catalog

	// Mobile is the unique customer identifier used at the register
	Mobile string `db:"mobile" json:"mobile"`

	// Email is optional contact info
	Email *string `db:"email" json:"email,omitempty"`

	// Address is a free-form street address
	Address *string `db:"address" json:"address,omitempty"`

	// PreferredPaymentMethod remembers how the customer usually pays
	PreferredPaymentMethod *string `db:"preferred_payment_method" json:"preferredPaymentMethod,omitempty"`

	// Status controls whether the record is active
	Status Status `db:"status" json:"status"`

	// Purchase stats, maintained from completed sales
	TotalPurchases   int64       `db:"total_purchases" json:"totalPurchases"`
	TotalSpent       types.Money `db:"total_spent" json:"totalSpent"`
	LastPurchaseDate *time.Time  `db:"last_purchase_date" json:"lastPurchaseDate,omitempty"`
}

// NewCustomer creates a new Customer with required fields.
func NewCustomer(code, name, mobile string) *Customer {
	return &Customer{
		Catalog:    entity.NewCatalog(code, name),
		Mobile:     mobile,
		Status:     StatusActive,
		TotalSpent: types.Zero(),
	}
}

// Validate implements entity.Validatable interface.
func (c *Customer) Validate(ctx context.Context) error {
	if err := c.Catalog.Validate(ctx); err != nil {
		return err
	}

	if c.Mobile == "" {
		return apperror.NewValidation("mobile number is required").
			WithDetail("field", "mobile")
	}
	if !mobileRE.MatchString(c.Mobile) {
		return apperror.NewValidation("invalid mobile number format").
			WithDetail("field", "mobile")
	}

	if c.Email != nil && *c.Email != "" && !emailRE.MatchString(*c.Email) {
		return apperror.NewValidation("invalid email format").
			WithDetail("field", "email")
	}

	if c.Status != "" && c.Status != StatusActive && c.Status != StatusInactive {
		return apperror.NewValidation("invalid customer status").
			WithDetail("field", "status").
			WithDetail("value", string(c.Status))
	}

	return nil
}

// ApplySale folds a completed sale into the purchase stats.
func (c *Customer) ApplySale(total types.Money, soldAt time.Time) {
	c.TotalPurchases++
	c.TotalSpent = c.TotalSpent.Add(total)
	if c.LastPurchaseDate == nil || soldAt.After(*c.LastPurchaseDate) {
		t := soldAt
		c.LastPurchaseDate = &t
	}
}

// ApplyRefund reverses a refunded amount from the purchase stats.
// The purchase count is kept; only the spent total shrinks.
func (c *Customer) ApplyRefund(amount types.Money) {
	c.TotalSpent = c.TotalSpent.Sub(amount)
	if c.TotalSpent.IsNegative() {
		c.TotalSpent = types.Zero()
	}
}
