package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DateOnly is a custom type for handling date-only strings from JSON
type DateOnly struct {
	time.Time
}

// UnmarshalJSON implements custom unmarshaling for date-only strings
func (d *DateOnly) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	// Handle null/empty dates
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}

	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return err
	}
	d.Time = t.UTC()
	return nil
}

// MarshalJSON implements custom marshaling for date-only strings
func (d DateOnly) MarshalJSON() ([]byte, error) {
	if d.Time.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Time.Format("2006-01-02"))
}

// Invoice represents the core domain entity for an invoice.
// Exactly one active (DeletedAt == nil) row may exist per invoice number;
// soft-deleted rows with the same number may coexist as history.
type Invoice struct {
	ID            int64
	InvoiceNumber string
	IssuedDate    time.Time
	VendorName    string
	TotalAmount   decimal.Decimal
	Items         []InvoiceItem
	Adjustments   []InvoiceAdjustment
	CreatedAt     time.Time
	UpdatedAt     *time.Time
	DeletedAt     *time.Time
}

// InvoiceItem is a single line item owned by an invoice
type InvoiceItem struct {
	ID          int64
	ItemID      string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Unit        string
	Amount      decimal.Decimal
}

// InvoiceAdjustment is a non-line-item charge or credit (discount, fee)
type InvoiceAdjustment struct {
	ID          int64
	Description string
	Amount      decimal.Decimal
}

// ExtractedPageInfo is one image's extraction result. All fields are
// optional because extraction is unreliable; it is never persisted as-is.
type ExtractedPageInfo struct {
	InvoiceNumber *string               `json:"invoiceNumber"`
	IssuedDate    *DateOnly             `json:"issuedDate"`
	VendorName    *string               `json:"vendorName"`
	TotalAmount   *decimal.Decimal      `json:"totalAmount"`
	Items         []ExtractedLineItem   `json:"items"`
	Adjustments   []ExtractedAdjustment `json:"adjustments"`
}

// ExtractedLineItem mirrors InvoiceItem with every field optional
type ExtractedLineItem struct {
	ItemID      *string          `json:"itemId"`
	Description *string          `json:"description"`
	Quantity    *decimal.Decimal `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unitPrice"`
	Unit        *string          `json:"unit"`
	Amount      *decimal.Decimal `json:"amount"`
}

// ExtractedAdjustment mirrors InvoiceAdjustment with every field optional
type ExtractedAdjustment struct {
	Description *string          `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
}

// IsEmpty reports whether the extraction produced no usable data at all
func (p ExtractedPageInfo) IsEmpty() bool {
	return p.InvoiceNumber == nil && p.IssuedDate == nil && p.VendorName == nil &&
		p.TotalAmount == nil && len(p.Items) == 0 && len(p.Adjustments) == 0
}

// LastEdited returns UpdatedAt when set, otherwise CreatedAt
func (i *Invoice) LastEdited() time.Time {
	if i.UpdatedAt != nil {
		return *i.UpdatedAt
	}
	return i.CreatedAt
}
