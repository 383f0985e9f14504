package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/prasetyawan/billing-extractor-service/internal/domain"
)

// InvoiceItemDTO represents a persisted line item for data transfer
type InvoiceItemDTO struct {
	ItemID      string          `json:"itemId"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Unit        string          `json:"unit"`
	Amount      decimal.Decimal `json:"amount"`
}

// InvoiceAdjustmentDTO represents a persisted adjustment for data transfer
type InvoiceAdjustmentDTO struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// InvoiceSummaryDTO is the read-only projection served by list endpoints
// and the summary cache. LastEdited is UpdatedAt when set, else CreatedAt.
type InvoiceSummaryDTO struct {
	InvoiceNumber string          `json:"invoiceNumber"`
	IssuedDate    string          `json:"issuedDate"` // Format: YYYY-MM-DD
	VendorName    string          `json:"vendorName"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	LastEdited    string          `json:"lastEdited"`
}

// InvoiceDetailDTO extends the summary with items and adjustments
type InvoiceDetailDTO struct {
	InvoiceNumber string                 `json:"invoiceNumber"`
	IssuedDate    string                 `json:"issuedDate"` // Format: YYYY-MM-DD
	VendorName    string                 `json:"vendorName"`
	TotalAmount   decimal.Decimal        `json:"totalAmount"`
	LastEdited    string                 `json:"lastEdited"`
	Items         []InvoiceItemDTO       `json:"items"`
	Adjustments   []InvoiceAdjustmentDTO `json:"adjustments"`
}

// FileFailureDTO reports one image that could not be extracted
type FileFailureDTO struct {
	FileName string `json:"fileName"`
	Error    string `json:"error"`
}

// ExtractionResponse is the result of processing one upload batch
type ExtractionResponse struct {
	SavedInvoices           []InvoiceSummaryDTO `json:"savedInvoices"`
	DuplicateInvoiceNumbers []string            `json:"duplicateInvoiceNumbers"`
	Warnings                []string            `json:"warnings,omitempty"`
	FailedFiles             []FileFailureDTO    `json:"failedFiles,omitempty"`
}

// ExtractionErrorResponse carries batch-level validation errors with
// per-file detail
type ExtractionErrorResponse struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
}

// ErrorResponse represents a generic API error response
type ErrorResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail represents detailed error information
type ErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339
)

// NewInvoiceSummaryDTO projects a domain invoice into its summary form
func NewInvoiceSummaryDTO(inv *domain.Invoice) InvoiceSummaryDTO {
	return InvoiceSummaryDTO{
		InvoiceNumber: inv.InvoiceNumber,
		IssuedDate:    inv.IssuedDate.UTC().Format(dateLayout),
		VendorName:    inv.VendorName,
		TotalAmount:   inv.TotalAmount,
		LastEdited:    inv.LastEdited().UTC().Format(timeLayout),
	}
}

// NewInvoiceDetailDTO projects a domain invoice into its detail form
func NewInvoiceDetailDTO(inv *domain.Invoice) InvoiceDetailDTO {
	detail := InvoiceDetailDTO{
		InvoiceNumber: inv.InvoiceNumber,
		IssuedDate:    inv.IssuedDate.UTC().Format(dateLayout),
		VendorName:    inv.VendorName,
		TotalAmount:   inv.TotalAmount,
		LastEdited:    inv.LastEdited().UTC().Format(timeLayout),
		Items:         make([]InvoiceItemDTO, 0, len(inv.Items)),
		Adjustments:   make([]InvoiceAdjustmentDTO, 0, len(inv.Adjustments)),
	}

	for _, item := range inv.Items {
		detail.Items = append(detail.Items, InvoiceItemDTO{
			ItemID:      item.ItemID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Unit:        item.Unit,
			Amount:      item.Amount,
		})
	}

	for _, adj := range inv.Adjustments {
		detail.Adjustments = append(detail.Adjustments, InvoiceAdjustmentDTO{
			Description: adj.Description,
			Amount:      adj.Amount,
		})
	}

	return detail
}
