package repository

import (
	"context"
	"errors"

	"github.com/prasetyawan/billing-extractor-service/internal/domain"
)

// ErrDuplicateInvoiceNumber is returned when an insert collides with an
// existing active invoice. Concurrent uploads can race between the active
// lookup and the insert; the unique index is the actual safety net and
// callers treat this error as a duplicate, not a failure.
var ErrDuplicateInvoiceNumber = errors.New("an active invoice with this invoice number already exists")

// InvoiceRepository defines the interface for invoice persistence with
// soft-delete semantics
type InvoiceRepository interface {
	// FindActiveByNumber returns the active invoice with the given number,
	// or nil when none exists
	FindActiveByNumber(ctx context.Context, invoiceNumber string) (*domain.Invoice, error)

	// FindDeletedByNumber returns the most recently soft-deleted invoice
	// with the given number, or nil when none exists
	FindDeletedByNumber(ctx context.Context, invoiceNumber string) (*domain.Invoice, error)

	// ListActive returns all active invoices without their items
	ListActive(ctx context.Context) ([]domain.Invoice, error)

	// Insert persists a new invoice with its items and adjustments.
	// Returns ErrDuplicateInvoiceNumber when the active unique index rejects it.
	Insert(ctx context.Context, invoice *domain.Invoice) (*domain.Invoice, error)

	// SoftDelete tombstones the active invoice with the given number and
	// reports whether a row was actually deleted
	SoftDelete(ctx context.Context, invoiceNumber string) (bool, error)

	// Restore revives a soft-deleted invoice in place: financial fields are
	// overwritten from newData, the tombstone is cleared, and the original
	// identity and CreatedAt are preserved
	Restore(ctx context.Context, existingID int64, newData *domain.Invoice) (*domain.Invoice, error)
}
