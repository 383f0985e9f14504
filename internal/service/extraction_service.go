package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/prasetyawan/billing-extractor-service/internal/domain"
	"github.com/prasetyawan/billing-extractor-service/internal/model"
	"github.com/prasetyawan/billing-extractor-service/internal/repository"
)

// ExtractionServiceError represents an error in the extraction pipeline
type ExtractionServiceError struct {
	Op  string
	Err error
}

func (e *ExtractionServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

// Unwrap returns the underlying error
func (e *ExtractionServiceError) Unwrap() error {
	return e.Err
}

// BatchValidationError rejects a whole batch when any group is missing
// required fields. Nothing is committed: the caller cannot tell which
// pages belong together, so partial commits would be worse than none.
type BatchValidationError struct {
	GroupErrors []*GroupValidationError
}

// Error implements the error interface
func (e *BatchValidationError) Error() string {
	messages := e.Messages()
	return "batch validation failed: " + strings.Join(messages, "; ")
}

// Messages returns one human-readable line per failing group
func (e *BatchValidationError) Messages() []string {
	messages := make([]string, 0, len(e.GroupErrors))
	for _, groupErr := range e.GroupErrors {
		messages = append(messages, groupErr.Error())
	}
	return messages
}

// PageExtractor reads one invoice page from an image
type PageExtractor interface {
	ExtractFromImage(ctx context.Context, imageData []byte, mimeType string) (domain.ExtractedPageInfo, error)
}

// ImageArchiver stores uploaded originals for audit purposes
type ImageArchiver interface {
	ArchiveImage(imageData []byte, filename string) (string, error)
}

// ExtractionService runs the full pipeline for an upload batch: bounded
// concurrent extraction, aggregation, and persistence
type ExtractionService interface {
	ProcessBatch(ctx context.Context, files []model.ImageFile) (*model.ExtractionResponse, error)
}

// ExtractionServiceImpl implements ExtractionService
type ExtractionServiceImpl struct {
	extractor      PageExtractor
	invoiceService InvoiceService
	repository     repository.InvoiceRepository
	archiver       ImageArchiver
	workerPool     chan struct{}
}

// NewExtractionService creates a new ExtractionService. The archiver is
// optional; pass nil to skip archival.
func NewExtractionService(extractor PageExtractor, invoiceService InvoiceService, repo repository.InvoiceRepository, archiver ImageArchiver, maxWorkers int) *ExtractionServiceImpl {
	if maxWorkers <= 0 {
		maxWorkers = 5 // Default to 5 concurrent extraction calls
	}

	return &ExtractionServiceImpl{
		extractor:      extractor,
		invoiceService: invoiceService,
		repository:     repo,
		archiver:       archiver,
		workerPool:     make(chan struct{}, maxWorkers),
	}
}

// ProcessBatch extracts every image with bounded parallelism, restores
// upload order, aggregates pages into invoices, and commits them. A single
// image's failure never aborts the batch; a group missing required fields
// aborts the commit phase for the whole batch.
func (s *ExtractionServiceImpl) ProcessBatch(ctx context.Context, files []model.ImageFile) (*model.ExtractionResponse, error) {
	pages, failures := s.extractAll(ctx, files)

	result := AggregatePages(pages)
	if len(result.Errors) > 0 {
		return nil, &BatchValidationError{GroupErrors: result.Errors}
	}

	response := &model.ExtractionResponse{
		SavedInvoices:           []model.InvoiceSummaryDTO{},
		DuplicateInvoiceNumbers: []string{},
		FailedFiles:             failures,
	}

	for _, aggregated := range result.Invoices {
		saved, duplicate, err := s.commit(ctx, aggregated.Invoice)
		if err != nil {
			return nil, &ExtractionServiceError{Op: "commit_invoice", Err: err}
		}
		if duplicate {
			response.DuplicateInvoiceNumbers = append(response.DuplicateInvoiceNumbers, aggregated.Invoice.InvoiceNumber)
			continue
		}

		response.SavedInvoices = append(response.SavedInvoices, model.NewInvoiceSummaryDTO(saved))
		if aggregated.Warning != "" {
			response.Warnings = append(response.Warnings, aggregated.Warning)
		}
	}

	return response, nil
}

// extractAll runs the per-image extraction calls under the worker pool.
// Results carry their submission index so aggregation can restore upload
// order regardless of completion order.
func (s *ExtractionServiceImpl) extractAll(ctx context.Context, files []model.ImageFile) ([]PageExtraction, []model.FileFailureDTO) {
	type slot struct {
		page *PageExtraction
		fail *model.FileFailureDTO
	}

	slots := make([]slot, len(files))
	var wg sync.WaitGroup

	for i, file := range files {
		wg.Add(1)
		go func(idx int, file model.ImageFile) {
			defer wg.Done()

			select {
			case s.workerPool <- struct{}{}:
				defer func() { <-s.workerPool }()
			case <-ctx.Done():
				slots[idx].fail = &model.FileFailureDTO{FileName: file.FileName, Error: ctx.Err().Error()}
				return
			}

			s.archive(file)

			info, err := s.extractor.ExtractFromImage(ctx, file.Data, file.ContentType)
			if err != nil {
				log.Printf("Extraction failed for %s: %v", file.FileName, err)
				slots[idx].fail = &model.FileFailureDTO{FileName: file.FileName, Error: err.Error()}
				return
			}

			slots[idx].page = &PageExtraction{
				Index:          idx,
				SourceFileName: file.FileName,
				Info:           info,
			}
		}(i, file)
	}

	wg.Wait()

	pages := []PageExtraction{}
	failures := []model.FileFailureDTO{}
	for _, result := range slots {
		if result.page != nil {
			pages = append(pages, *result.page)
		}
		if result.fail != nil {
			failures = append(failures, *result.fail)
		}
	}
	return pages, failures
}

// archive stores the original image when an archiver is configured.
// Archival is best-effort and never blocks extraction.
func (s *ExtractionServiceImpl) archive(file model.ImageFile) {
	if s.archiver == nil {
		return
	}

	filename := fmt.Sprintf("upload_%s_%s", uuid.NewString(), file.FileName)
	if _, err := s.archiver.ArchiveImage(file.Data, filename); err != nil {
		log.Printf("Image archival failed for %s: %v", file.FileName, err)
	}
}

// commit resolves duplicate versus new versus restore for one aggregated
// invoice. A unique-key violation from a concurrent upload is reclassified
// as a duplicate.
func (s *ExtractionServiceImpl) commit(ctx context.Context, invoice *domain.Invoice) (*domain.Invoice, bool, error) {
	active, err := s.repository.FindActiveByNumber(ctx, invoice.InvoiceNumber)
	if err != nil {
		return nil, false, err
	}
	if active != nil {
		return nil, true, nil
	}

	saved, err := s.invoiceService.Create(ctx, invoice)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateInvoiceNumber) {
			return nil, true, nil
		}
		return nil, false, err
	}

	return saved, false, nil
}
