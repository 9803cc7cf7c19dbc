// Package medicine provides the Medicine catalog.
// Medicines are the sellable products of the pharmacy; physical stock
// lives in inventory batches that reference a medicine by ID.
package medicine

import (
	"context"
	"regexp"

	"pharmapos/internal/core/apperror"
	"pharmapos/internal/core/entity"
)

// Pre-compiled regex patterns for validation
var (
	barcodeRE = regexp.MustCompile(`^[0-9]{8,14}$`)
)

// Category defines the medicine category.
type Category string

const (
	CategoryTablet    Category = "tablet"
	CategoryCapsule   Category = "capsule"
	CategorySyrup     Category = "syrup"
	CategoryInjection Category = "injection"
	CategoryOintment  Category = "ointment"
	CategoryDrops     Category = "drops"
	CategoryOther     Category = "other"
)

// Status defines whether a medicine is sellable at all.
// Inactive medicines keep their history but are excluded from sale.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Medicine represents a sellable pharmacy product.
type Medicine struct {
	entity.Catalog

	// GenericName is the non-proprietary (INN) name
	GenericName string `db:"generic_name" json:"genericName"`

	// Manufacturer is the producing company
	Manufacturer string `db:"manufacturer" json:"manufacturer"`

	// Category groups medicines by form
	Category Category `db:"category" json:"category"`

	// DosageForm describes how the medicine is administered (e.g., "oral")
	DosageForm string `db:"dosage_form" json:"dosageForm"`

	// Strength is the dose per unit (e.g., "500mg")
	Strength string `db:"strength" json:"strength"`

	// Barcode is the EAN/UPC code, optional but unique when set
	Barcode *string `db:"barcode" json:"barcode,omitempty"`

	// PrescriptionRequired marks medicines that need a prescription
	PrescriptionRequired bool `db:"prescription_required" json:"prescriptionRequired"`

	// Description is a free-form note
	Description *string `db:"description" json:"description,omitempty"`

	// SideEffects lists known side effects
	SideEffects *string `db:"side_effects" json:"sideEffects,omitempty"`

	// Status controls whether the medicine can be sold
	Status Status `db:"status" json:"status"`

	// MinimumStockLevel is the low-stock alert threshold in units
	MinimumStockLevel int64 `db:"minimum_stock_level" json:"minimumStockLevel"`
}

// NewMedicine creates a new Medicine with required fields.
func NewMedicine(code, name, genericName, manufacturer string, category Category) *Medicine {
	return &Medicine{
		Catalog:           entity.NewCatalog(code, name),
		GenericName:       genericName,
		Manufacturer:      manufacturer,
		Category:          category,
		Status:            StatusActive,
		MinimumStockLevel: DefaultMinimumStockLevel,
	}
}

// DefaultMinimumStockLevel is used when no per-medicine threshold is set.
const DefaultMinimumStockLevel = 10

// Validate implements entity.Validatable interface.
func (m *Medicine) Validate(ctx context.Context) error {
	// Base catalog validation
	if err := m.Catalog.Validate(ctx); err != nil {
		return err
	}

	if m.GenericName == "" {
		return apperror.NewValidation("generic name is required").
			WithDetail("field", "genericName")
	}

	if m.Manufacturer == "" {
		return apperror.NewValidation("manufacturer is required").
			WithDetail("field", "manufacturer")
	}

	if !isValidCategory(m.Category) {
		return apperror.NewValidation("invalid medicine category").
			WithDetail("field", "category").
			WithDetail("value", string(m.Category))
	}

	if m.Status != "" && !isValidStatus(m.Status) {
		return apperror.NewValidation("invalid medicine status").
			WithDetail("field", "status").
			WithDetail("value", string(m.Status))
	}

	if m.Barcode != nil && *m.Barcode != "" && !barcodeRE.MatchString(*m.Barcode) {
		return apperror.NewValidation("barcode must be 8-14 digits").
			WithDetail("field", "barcode")
	}

	if m.MinimumStockLevel < 0 {
		return apperror.NewValidation("minimum stock level cannot be negative").
			WithDetail("field", "minimumStockLevel")
	}

	return nil
}

// IsActive returns true if the medicine can be sold.
func (m *Medicine) IsActive() bool {
	return m.Status == StatusActive && !m.DeletionMark
}

// --- Validation Helpers ---

func isValidCategory(c Category) bool {
	switch c {
	case CategoryTablet, CategoryCapsule, CategorySyrup, CategoryInjection,
		CategoryOintment, CategoryDrops, CategoryOther:
		return true
	}
	return false
}

func isValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusInactive:
		return true
	}
	return false
}
