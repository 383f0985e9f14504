package service

import (
	"context"
	"fmt"
	"log"

	"github.com/prasetyawan/billing-extractor-service/internal/cache"
	"github.com/prasetyawan/billing-extractor-service/internal/domain"
	"github.com/prasetyawan/billing-extractor-service/internal/model"
	"github.com/prasetyawan/billing-extractor-service/internal/repository"
)

// InvoiceServiceError represents an error in the invoice service
type InvoiceServiceError struct {
	Op  string
	Err error
}

func (e *InvoiceServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

// Unwrap returns the underlying error
func (e *InvoiceServiceError) Unwrap() error {
	return e.Err
}

// InvoiceService defines application-level invoice queries and commands
type InvoiceService interface {
	// GetByInvoiceNumber returns the invoice detail, or nil when no active
	// invoice has that number
	GetByInvoiceNumber(ctx context.Context, invoiceNumber string) (*model.InvoiceDetailDTO, error)

	// GetAll returns summaries of every active invoice
	GetAll(ctx context.Context) ([]model.InvoiceSummaryDTO, error)

	// Create persists an aggregated invoice, restoring a soft-deleted row
	// with the same number when one exists. Returns
	// repository.ErrDuplicateInvoiceNumber when an active row wins a
	// concurrent race for the number.
	Create(ctx context.Context, invoice *domain.Invoice) (*domain.Invoice, error)

	// Delete soft-deletes an invoice and reports whether a row was removed
	Delete(ctx context.Context, invoiceNumber string) (bool, error)
}

// InvoiceServiceImpl implements InvoiceService with a cache-aside layer in
// front of the relational store. The cache is a derived accelerator: its
// failures are logged and reads fall through to the store.
type InvoiceServiceImpl struct {
	repository repository.InvoiceRepository
	cache      cache.InvoiceCache
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(repo repository.InvoiceRepository, invoiceCache cache.InvoiceCache) *InvoiceServiceImpl {
	return &InvoiceServiceImpl{
		repository: repo,
		cache:      invoiceCache,
	}
}

// GetByInvoiceNumber serves the detail from cache when possible; on a miss
// it loads from the store and populates both detail and summary entries.
// A store miss populates nothing and returns nil.
func (s *InvoiceServiceImpl) GetByInvoiceNumber(ctx context.Context, invoiceNumber string) (*model.InvoiceDetailDTO, error) {
	cached, err := s.cache.GetDetail(ctx, invoiceNumber)
	if err != nil {
		log.Printf("Cache read failed for invoice %s: %v", invoiceNumber, err)
	}
	if cached != nil {
		return cached, nil
	}

	invoice, err := s.repository.FindActiveByNumber(ctx, invoiceNumber)
	if err != nil {
		return nil, &InvoiceServiceError{Op: "get_invoice", Err: err}
	}
	if invoice == nil {
		return nil, nil
	}

	detail := model.NewInvoiceDetailDTO(invoice)
	if err := s.cache.SetDetail(ctx, invoiceNumber, detail); err != nil {
		log.Printf("Cache write failed for invoice %s: %v", invoiceNumber, err)
	}
	if err := s.cache.SetSummary(ctx, invoiceNumber, model.NewInvoiceSummaryDTO(invoice)); err != nil {
		log.Printf("Cache write failed for invoice %s: %v", invoiceNumber, err)
	}

	return &detail, nil
}

// GetAll serves the full summary list from cache when possible; on a miss
// it loads all active invoices and populates the list entry
func (s *InvoiceServiceImpl) GetAll(ctx context.Context) ([]model.InvoiceSummaryDTO, error) {
	cached, found, err := s.cache.GetAllSummaries(ctx)
	if err != nil {
		log.Printf("Cache read failed for summary list: %v", err)
	}
	if found {
		return cached, nil
	}

	invoices, err := s.repository.ListActive(ctx)
	if err != nil {
		return nil, &InvoiceServiceError{Op: "list_invoices", Err: err}
	}

	summaries := make([]model.InvoiceSummaryDTO, 0, len(invoices))
	for i := range invoices {
		summaries = append(summaries, model.NewInvoiceSummaryDTO(&invoices[i]))
	}

	if err := s.cache.SetAllSummaries(ctx, summaries); err != nil {
		log.Printf("Cache write failed for summary list: %v", err)
	}

	return summaries, nil
}

// Create persists the invoice, restoring a soft-deleted row with the same
// number when one exists, then writes through the per-invoice cache
// entries and invalidates the list entry
func (s *InvoiceServiceImpl) Create(ctx context.Context, invoice *domain.Invoice) (*domain.Invoice, error) {
	deleted, err := s.repository.FindDeletedByNumber(ctx, invoice.InvoiceNumber)
	if err != nil {
		return nil, &InvoiceServiceError{Op: "find_deleted_invoice", Err: err}
	}

	var result *domain.Invoice
	if deleted != nil {
		result, err = s.repository.Restore(ctx, deleted.ID, invoice)
	} else {
		result, err = s.repository.Insert(ctx, invoice)
	}
	if err != nil {
		// ErrDuplicateInvoiceNumber passes through for the caller to
		// reclassify; everything else is a real failure
		return nil, err
	}

	if err := s.cache.SetDetail(ctx, result.InvoiceNumber, model.NewInvoiceDetailDTO(result)); err != nil {
		log.Printf("Cache write failed for invoice %s: %v", result.InvoiceNumber, err)
	}
	if err := s.cache.SetSummary(ctx, result.InvoiceNumber, model.NewInvoiceSummaryDTO(result)); err != nil {
		log.Printf("Cache write failed for invoice %s: %v", result.InvoiceNumber, err)
	}
	if err := s.cache.InvalidateAllSummaries(ctx); err != nil {
		log.Printf("Cache invalidation failed after creating invoice %s: %v", result.InvoiceNumber, err)
	}

	return result, nil
}

// Delete soft-deletes the invoice and, only when the store confirms a row
// was removed, evicts it from the cache
func (s *InvoiceServiceImpl) Delete(ctx context.Context, invoiceNumber string) (bool, error) {
	deleted, err := s.repository.SoftDelete(ctx, invoiceNumber)
	if err != nil {
		return false, &InvoiceServiceError{Op: "delete_invoice", Err: err}
	}
	if !deleted {
		return false, nil
	}

	if err := s.cache.Delete(ctx, invoiceNumber); err != nil {
		log.Printf("Cache eviction failed for invoice %s: %v", invoiceNumber, err)
	}

	return true, nil
}
