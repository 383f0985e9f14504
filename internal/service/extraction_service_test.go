package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prasetyawan/billing-extractor-service/internal/domain"
	"github.com/prasetyawan/billing-extractor-service/internal/model"
)

// fakeExtractor returns canned results keyed by image payload and tracks
// how many extractions run at once
type fakeExtractor struct {
	mu          sync.Mutex
	results     map[string]domain.ExtractedPageInfo
	errs        map[string]error
	delays      map[string]time.Duration
	inFlight    int
	maxInFlight int
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		results: map[string]domain.ExtractedPageInfo{},
		errs:    map[string]error{},
		delays:  map[string]time.Duration{},
	}
}

func (f *fakeExtractor) ExtractFromImage(ctx context.Context, imageData []byte, mimeType string) (domain.ExtractedPageInfo, error) {
	key := string(imageData)

	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay := f.delays[key]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.inFlight--
	result := f.results[key]
	err := f.errs[key]
	f.mu.Unlock()

	return result, err
}

// fakeArchiver records every archived upload
type fakeArchiver struct {
	mu        sync.Mutex
	filenames []string
}

func (f *fakeArchiver) ArchiveImage(imageData []byte, filename string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filenames = append(f.filenames, filename)
	return filename, nil
}

func imageFile(name, payload string) model.ImageFile {
	return model.ImageFile{FileName: name, ContentType: "image/jpeg", Data: []byte(payload)}
}

func TestProcessBatchSavesAggregatedInvoice(t *testing.T) {
	extractor := newFakeExtractor()
	extractor.results["p1"] = domain.ExtractedPageInfo{
		InvoiceNumber: strPtr("INV-1"),
		IssuedDate:    datePtr("2024-02-01"),
		VendorName:    strPtr("Acme Corp"),
		Items: []domain.ExtractedLineItem{
			{Description: strPtr("Item A"), Quantity: decPtr(2), UnitPrice: decPtr(25.00)},
		},
		Adjustments: []domain.ExtractedAdjustment{
			{Description: strPtr("Discount"), Amount: decPtr(-5.00)},
		},
	}
	extractor.results["p2"] = domain.ExtractedPageInfo{
		InvoiceNumber: strPtr("INV-1"),
		TotalAmount:   decPtr(65.00),
		Items: []domain.ExtractedLineItem{
			{Description: strPtr("Item B"), Quantity: decPtr(1), UnitPrice: decPtr(20.00)},
		},
	}
	// The first page finishes last; its items must still come first
	extractor.delays["p1"] = 30 * time.Millisecond

	repo := newFakeRepository()
	invoiceService := NewInvoiceService(repo, newFakeCache())
	svc := NewExtractionService(extractor, invoiceService, repo, nil, 2)

	response, err := svc.ProcessBatch(context.Background(), []model.ImageFile{
		imageFile("page1.jpg", "p1"),
		imageFile("page2.jpg", "p2"),
	})

	require.NoError(t, err)
	require.Len(t, response.SavedInvoices, 1)
	assert.Equal(t, "INV-1", response.SavedInvoices[0].InvoiceNumber)
	assert.Equal(t, "65", response.SavedInvoices[0].TotalAmount.String())
	assert.Empty(t, response.DuplicateInvoiceNumbers)
	assert.Empty(t, response.Warnings)
	assert.Empty(t, response.FailedFiles)

	saved := repo.active["INV-1"]
	require.NotNil(t, saved)
	require.Len(t, saved.Items, 2)
	assert.Equal(t, "Item A", saved.Items[0].Description)
	assert.Equal(t, "Item B", saved.Items[1].Description)
	require.Len(t, saved.Adjustments, 1)
}

func TestProcessBatchFailedFileDoesNotAbort(t *testing.T) {
	extractor := newFakeExtractor()
	extractor.results["good"] = domain.ExtractedPageInfo{
		InvoiceNumber: strPtr("INV-1"),
		IssuedDate:    datePtr("2024-02-01"),
		VendorName:    strPtr("Acme"),
	}
	extractor.errs["bad"] = errors.New("model timeout")

	repo := newFakeRepository()
	invoiceService := NewInvoiceService(repo, newFakeCache())
	svc := NewExtractionService(extractor, invoiceService, repo, nil, 2)

	response, err := svc.ProcessBatch(context.Background(), []model.ImageFile{
		imageFile("bad.jpg", "bad"),
		imageFile("good.jpg", "good"),
	})

	require.NoError(t, err)
	require.Len(t, response.SavedInvoices, 1)
	require.Len(t, response.FailedFiles, 1)
	assert.Equal(t, "bad.jpg", response.FailedFiles[0].FileName)
	assert.Contains(t, response.FailedFiles[0].Error, "model timeout")
}

func TestProcessBatchValidationAbortsWholeBatch(t *testing.T) {
	extractor := newFakeExtractor()
	// One complete invoice and one missing its vendor and date
	extractor.results["ok"] = domain.ExtractedPageInfo{
		InvoiceNumber: strPtr("INV-1"),
		IssuedDate:    datePtr("2024-02-01"),
		VendorName:    strPtr("Acme"),
	}
	extractor.results["partial"] = domain.ExtractedPageInfo{
		InvoiceNumber: strPtr("INV-2"),
	}

	repo := newFakeRepository()
	invoiceService := NewInvoiceService(repo, newFakeCache())
	svc := NewExtractionService(extractor, invoiceService, repo, nil, 2)

	_, err := svc.ProcessBatch(context.Background(), []model.ImageFile{
		imageFile("ok.jpg", "ok"),
		imageFile("partial.jpg", "partial"),
	})

	var batchErr *BatchValidationError
	require.ErrorAs(t, err, &batchErr)
	require.Len(t, batchErr.Messages(), 1)
	assert.Contains(t, batchErr.Messages()[0], "INV-2")

	// Nothing was committed, the complete invoice included
	assert.Zero(t, repo.insertCalls)
	assert.Empty(t, repo.active)
}

func TestProcessBatchReportsDuplicates(t *testing.T) {
	extractor := newFakeExtractor()
	extractor.results["p1"] = domain.ExtractedPageInfo{
		InvoiceNumber: strPtr("INV-1"),
		IssuedDate:    datePtr("2024-02-01"),
		VendorName:    strPtr("Acme"),
	}

	repo := newFakeRepository()
	_, err := repo.Insert(context.Background(), testInvoice("INV-1"))
	require.NoError(t, err)

	invoiceService := NewInvoiceService(repo, newFakeCache())
	svc := NewExtractionService(extractor, invoiceService, repo, nil, 2)

	response, err := svc.ProcessBatch(context.Background(), []model.ImageFile{
		imageFile("p1.jpg", "p1"),
	})

	require.NoError(t, err)
	assert.Empty(t, response.SavedInvoices)
	assert.Equal(t, []string{"INV-1"}, response.DuplicateInvoiceNumbers)
}

func TestProcessBatchPropagatesMismatchWarning(t *testing.T) {
	extractor := newFakeExtractor()
	extractor.results["p1"] = domain.ExtractedPageInfo{
		InvoiceNumber: strPtr("INV-1"),
		IssuedDate:    datePtr("2024-02-01"),
		VendorName:    strPtr("Acme"),
		TotalAmount:   decPtr(110.00),
		Items: []domain.ExtractedLineItem{
			{Description: strPtr("x"), Quantity: decPtr(4), UnitPrice: decPtr(25.00)},
		},
	}

	repo := newFakeRepository()
	invoiceService := NewInvoiceService(repo, newFakeCache())
	svc := NewExtractionService(extractor, invoiceService, repo, nil, 2)

	response, err := svc.ProcessBatch(context.Background(), []model.ImageFile{
		imageFile("p1.jpg", "p1"),
	})

	require.NoError(t, err)
	require.Len(t, response.SavedInvoices, 1)
	require.Len(t, response.Warnings, 1)
	assert.Contains(t, response.Warnings[0], "mismatch")
	// The recomputed total is persisted, not the extracted one
	assert.Equal(t, "100", response.SavedInvoices[0].TotalAmount.String())
}

func TestProcessBatchBoundsConcurrency(t *testing.T) {
	extractor := newFakeExtractor()
	files := make([]model.ImageFile, 0, 6)
	for _, payload := range []string{"a", "b", "c", "d", "e", "f"} {
		extractor.results[payload] = domain.ExtractedPageInfo{
			InvoiceNumber: strPtr("INV-" + strings.ToUpper(payload)),
			IssuedDate:    datePtr("2024-02-01"),
			VendorName:    strPtr("Acme"),
		}
		extractor.delays[payload] = 10 * time.Millisecond
		files = append(files, imageFile(payload+".jpg", payload))
	}

	repo := newFakeRepository()
	invoiceService := NewInvoiceService(repo, newFakeCache())
	svc := NewExtractionService(extractor, invoiceService, repo, nil, 2)

	response, err := svc.ProcessBatch(context.Background(), files)

	require.NoError(t, err)
	assert.Len(t, response.SavedInvoices, 6)
	assert.LessOrEqual(t, extractor.maxInFlight, 2)
}

func TestProcessBatchArchivesUploads(t *testing.T) {
	extractor := newFakeExtractor()
	extractor.results["p1"] = domain.ExtractedPageInfo{
		InvoiceNumber: strPtr("INV-1"),
		IssuedDate:    datePtr("2024-02-01"),
		VendorName:    strPtr("Acme"),
	}

	repo := newFakeRepository()
	archiver := &fakeArchiver{}
	invoiceService := NewInvoiceService(repo, newFakeCache())
	svc := NewExtractionService(extractor, invoiceService, repo, archiver, 2)

	_, err := svc.ProcessBatch(context.Background(), []model.ImageFile{
		imageFile("page1.jpg", "p1"),
	})

	require.NoError(t, err)
	require.Len(t, archiver.filenames, 1)
	assert.Contains(t, archiver.filenames[0], "page1.jpg")
}
