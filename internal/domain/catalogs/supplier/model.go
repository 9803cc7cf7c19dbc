// Package supplier provides the Supplier catalog.
// Suppliers are referenced by inventory batches to trace where a
// delivery came from.
package supplier

import (
	"context"
	"regexp"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/core/entity"
	"pharmapos/internal/core/types"
)

var (
	mobileRE = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	emailRE  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// PaymentTerms defines how a supplier expects to be paid.
type PaymentTerms string

const (
	TermsCash     PaymentTerms = "cash"
	TermsCredit7  PaymentTerms = "credit-7"
	TermsCredit15 PaymentTerms = "credit-15"
	TermsCredit30 PaymentTerms = "credit-30"
	TermsCredit60 PaymentTerms = "credit-60"
)

// Status defines whether a supplier is active.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Supplier represents a medicine supplier.
type Supplier struct {
	entity.Catalog

	// ContactPerson is the primary contact name
	ContactPerson string `db:"contact_person" json:"contactPerson"`

	// Mobile is the primary contact number
	Mobile string `db:"mobile" json:"mobile"`

	// Email is optional contact info
	Email *string `db:"email" json:"email,omitempty"`

	// Address is a free-form address
	Address *string `db:"address" json:"address,omitempty"`

	// TaxID is the supplier's tax registration number
	TaxID *string `db:"tax_id" json:"taxId,omitempty"`

	// PaymentTerms defaults to cash
	PaymentTerms PaymentTerms `db:"payment_terms" json:"paymentTerms"`

	// CreditLimit caps outstanding credit purchases
	CreditLimit types.Money `db:"credit_limit" json:"creditLimit"`

	// Status controls whether new deliveries can reference the supplier
	Status Status `db:"status" json:"status"`
}

// NewSupplier creates a new Supplier with required fields.
func NewSupplier(code, name, contactPerson, mobile string) *Supplier {
	return &Supplier{
		Catalog:       entity.NewCatalog(code, name),
		ContactPerson: contactPerson,
		Mobile:        mobile,
		PaymentTerms:  TermsCash,
		Status:        StatusActive,
		CreditLimit:   types.Zero(),
	}
}

// Validate implements entity.Validatable interface.
func (s *Supplier) Validate(ctx context.Context) error {
	if err := s.Catalog.Validate(ctx); err != nil {
		return err
	}

	if s.ContactPerson == "" {
		return apperror.NewValidation("contact person is required").
			WithDetail("field", "contactPerson")
	}

	if s.Mobile == "" || !mobileRE.MatchString(s.Mobile) {
		return apperror.NewValidation("invalid mobile number format").
			WithDetail("field", "mobile")
	}

	if s.Email != nil && *s.Email != "" && !emailRE.MatchString(*s.Email) {
		return apperror.NewValidation("invalid email format").
			WithDetail("field", "email")
	}

	if s.PaymentTerms != "" && !isValidTerms(s.PaymentTerms) {
		return apperror.NewValidation("invalid payment terms").
			WithDetail("field", "paymentTerms").
			WithDetail("value", string(s.PaymentTerms))
	}

	if s.CreditLimit.IsNegative() {
		return apperror.NewValidation("credit limit cannot be negative").
			WithDetail("field", "creditLimit")
	}

	return nil
}

func isValidTerms(t PaymentTerms) bool {
	switch t {
	case TermsCash, TermsCredit7, TermsCredit15, TermsCredit30, TermsCredit60:
		return true
	}
	return false
}
