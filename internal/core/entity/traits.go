package entity

import (
	"comercia/internal/core/apperror"
)

// CurrencyAware is a trait for documents that carry monetary totals.
// Used for composition in models like PurchaseOrder.
type CurrencyAware struct {
	// Currency is the ISO 4217 code for financial amounts in this entity
	Currency string `db:"moneda" json:"currency"`
}

// ValidateCurrency ensures a currency is set.
func (c *CurrencyAware) ValidateCurrency() error {
	if c.Currency == "" {
		return apperror.NewValidation("currency is required").
			WithDetail("field", "currency")
	}
	return nil
}

// GetCurrency returns the currency code (useful for interfaces).
func (c *CurrencyAware) GetCurrency() string {
	return c.Currency
}
