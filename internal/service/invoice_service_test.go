package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prasetyawan/billing-extractor-service/internal/domain"
	"github.com/prasetyawan/billing-extractor-service/internal/model"
	"github.com/prasetyawan/billing-extractor-service/internal/repository"
)

// fakeRepository is an in-memory InvoiceRepository keyed by invoice number
type fakeRepository struct {
	mu      sync.Mutex
	active  map[string]*domain.Invoice
	deleted map[string]*domain.Invoice
	nextID  int64

	insertErr error

	findActiveCalls int
	insertCalls     int
	restoreCalls    int
	listCalls       int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		active:  map[string]*domain.Invoice{},
		deleted: map[string]*domain.Invoice{},
		nextID:  1,
	}
}

func (r *fakeRepository) FindActiveByNumber(ctx context.Context, invoiceNumber string) (*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findActiveCalls++
	return r.active[invoiceNumber], nil
}

func (r *fakeRepository) FindDeletedByNumber(ctx context.Context, invoiceNumber string) (*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleted[invoiceNumber], nil
}

func (r *fakeRepository) ListActive(ctx context.Context) ([]domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	invoices := []domain.Invoice{}
	for _, inv := range r.active {
		invoices = append(invoices, *inv)
	}
	return invoices, nil
}

func (r *fakeRepository) Insert(ctx context.Context, invoice *domain.Invoice) (*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertCalls++

	if r.insertErr != nil {
		return nil, r.insertErr
	}
	if _, exists := r.active[invoice.InvoiceNumber]; exists {
		return nil, repository.ErrDuplicateInvoiceNumber
	}

	invoice.ID = r.nextID
	r.nextID++
	invoice.CreatedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r.active[invoice.InvoiceNumber] = invoice
	return invoice, nil
}

func (r *fakeRepository) SoftDelete(ctx context.Context, invoiceNumber string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	invoice, exists := r.active[invoiceNumber]
	if !exists {
		return false, nil
	}
	now := time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)
	invoice.DeletedAt = &now
	delete(r.active, invoiceNumber)
	r.deleted[invoiceNumber] = invoice
	return true, nil
}

func (r *fakeRepository) Restore(ctx context.Context, existingID int64, newData *domain.Invoice) (*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restoreCalls++

	var old *domain.Invoice
	for _, inv := range r.deleted {
		if inv.ID == existingID {
			old = inv
			break
		}
	}
	if old == nil {
		return nil, errors.New("no deleted invoice with that id")
	}

	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	restored := &domain.Invoice{
		ID:            existingID,
		InvoiceNumber: newData.InvoiceNumber,
		IssuedDate:    newData.IssuedDate,
		VendorName:    newData.VendorName,
		TotalAmount:   newData.TotalAmount,
		Items:         newData.Items,
		Adjustments:   newData.Adjustments,
		CreatedAt:     old.CreatedAt,
		UpdatedAt:     &now,
	}
	delete(r.deleted, old.InvoiceNumber)
	r.active[restored.InvoiceNumber] = restored
	return restored, nil
}

// fakeCache is an in-memory InvoiceCache with switchable failures
type fakeCache struct {
	mu        sync.Mutex
	summaries map[string]model.InvoiceSummaryDTO
	details   map[string]model.InvoiceDetailDTO
	all       []model.InvoiceSummaryDTO
	allSet    bool

	failReads  bool
	failWrites bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		summaries: map[string]model.InvoiceSummaryDTO{},
		details:   map[string]model.InvoiceDetailDTO{},
	}
}

func (c *fakeCache) GetSummary(ctx context.Context, invoiceNumber string) (*model.InvoiceSummaryDTO, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failReads {
		return nil, errors.New("cache unavailable")
	}
	if summary, ok := c.summaries[invoiceNumber]; ok {
		return &summary, nil
	}
	return nil, nil
}

func (c *fakeCache) GetDetail(ctx context.Context, invoiceNumber string) (*model.InvoiceDetailDTO, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failReads {
		return nil, errors.New("cache unavailable")
	}
	if detail, ok := c.details[invoiceNumber]; ok {
		return &detail, nil
	}
	return nil, nil
}

func (c *fakeCache) GetAllSummaries(ctx context.Context) ([]model.InvoiceSummaryDTO, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failReads {
		return nil, false, errors.New("cache unavailable")
	}
	if !c.allSet {
		return nil, false, nil
	}
	return c.all, true, nil
}

func (c *fakeCache) SetSummary(ctx context.Context, invoiceNumber string, summary model.InvoiceSummaryDTO) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errors.New("cache unavailable")
	}
	c.summaries[invoiceNumber] = summary
	return nil
}

func (c *fakeCache) SetDetail(ctx context.Context, invoiceNumber string, detail model.InvoiceDetailDTO) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errors.New("cache unavailable")
	}
	c.details[invoiceNumber] = detail
	return nil
}

func (c *fakeCache) SetAllSummaries(ctx context.Context, summaries []model.InvoiceSummaryDTO) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errors.New("cache unavailable")
	}
	c.all = summaries
	c.allSet = true
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, invoiceNumber string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.summaries, invoiceNumber)
	delete(c.details, invoiceNumber)
	c.all = nil
	c.allSet = false
	return nil
}

func (c *fakeCache) InvalidateAllSummaries(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all = nil
	c.allSet = false
	return nil
}

func testInvoice(number string) *domain.Invoice {
	return &domain.Invoice{
		InvoiceNumber: number,
		IssuedDate:    time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		VendorName:    "Acme Corp",
		TotalAmount:   decimal.NewFromFloat(65.00),
		Items: []domain.InvoiceItem{
			{Description: "Item A", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromFloat(25.00)},
		},
		Adjustments: []domain.InvoiceAdjustment{
			{Description: "Shipping Fee", Amount: decimal.NewFromFloat(15.00)},
		},
	}
}

func TestGetByInvoiceNumberCacheHit(t *testing.T) {
	repo := newFakeRepository()
	invoiceCache := newFakeCache()
	invoiceCache.details["INV-1"] = model.InvoiceDetailDTO{InvoiceNumber: "INV-1", VendorName: "Cached Vendor"}

	svc := NewInvoiceService(repo, invoiceCache)
	detail, err := svc.GetByInvoiceNumber(context.Background(), "INV-1")

	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, "Cached Vendor", detail.VendorName)
	assert.Zero(t, repo.findActiveCalls)
}

func TestGetByInvoiceNumberCacheMiss(t *testing.T) {
	repo := newFakeRepository()
	_, err := repo.Insert(context.Background(), testInvoice("INV-1"))
	require.NoError(t, err)
	invoiceCache := newFakeCache()

	svc := NewInvoiceService(repo, invoiceCache)
	detail, err := svc.GetByInvoiceNumber(context.Background(), "INV-1")

	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, "INV-1", detail.InvoiceNumber)
	assert.Equal(t, "2024-03-15", detail.IssuedDate)
	require.Len(t, detail.Items, 1)

	// Both projections are now cached
	assert.Contains(t, invoiceCache.details, "INV-1")
	assert.Contains(t, invoiceCache.summaries, "INV-1")
}

func TestGetByInvoiceNumberNotFound(t *testing.T) {
	repo := newFakeRepository()
	invoiceCache := newFakeCache()

	svc := NewInvoiceService(repo, invoiceCache)
	detail, err := svc.GetByInvoiceNumber(context.Background(), "INV-404")

	require.NoError(t, err)
	assert.Nil(t, detail)
	assert.Empty(t, invoiceCache.details)
}

func TestGetByInvoiceNumberCacheDown(t *testing.T) {
	repo := newFakeRepository()
	_, err := repo.Insert(context.Background(), testInvoice("INV-1"))
	require.NoError(t, err)
	invoiceCache := newFakeCache()
	invoiceCache.failReads = true
	invoiceCache.failWrites = true

	svc := NewInvoiceService(repo, invoiceCache)
	detail, err := svc.GetByInvoiceNumber(context.Background(), "INV-1")

	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, "INV-1", detail.InvoiceNumber)
}

func TestGetAllServesCachedEmptyList(t *testing.T) {
	repo := newFakeRepository()
	invoiceCache := newFakeCache()
	require.NoError(t, invoiceCache.SetAllSummaries(context.Background(), []model.InvoiceSummaryDTO{}))

	svc := NewInvoiceService(repo, invoiceCache)
	summaries, err := svc.GetAll(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, summaries)
	assert.Empty(t, summaries)
	assert.Zero(t, repo.listCalls, "a cached empty list must not fall through to the store")
}

func TestGetAllCacheMiss(t *testing.T) {
	repo := newFakeRepository()
	_, err := repo.Insert(context.Background(), testInvoice("INV-1"))
	require.NoError(t, err)
	_, err = repo.Insert(context.Background(), testInvoice("INV-2"))
	require.NoError(t, err)
	invoiceCache := newFakeCache()

	svc := NewInvoiceService(repo, invoiceCache)
	summaries, err := svc.GetAll(context.Background())

	require.NoError(t, err)
	assert.Len(t, summaries, 2)
	assert.True(t, invoiceCache.allSet)
}

func TestCreateWritesThroughCache(t *testing.T) {
	repo := newFakeRepository()
	invoiceCache := newFakeCache()
	require.NoError(t, invoiceCache.SetAllSummaries(context.Background(), []model.InvoiceSummaryDTO{}))

	svc := NewInvoiceService(repo, invoiceCache)
	saved, err := svc.Create(context.Background(), testInvoice("INV-1"))

	require.NoError(t, err)
	assert.NotZero(t, saved.ID)
	assert.Contains(t, invoiceCache.details, "INV-1")
	assert.Contains(t, invoiceCache.summaries, "INV-1")
	assert.False(t, invoiceCache.allSet, "the list entry must be invalidated after a create")
}

func TestCreateRestoresSoftDeleted(t *testing.T) {
	repo := newFakeRepository()
	invoiceCache := newFakeCache()
	svc := NewInvoiceService(repo, invoiceCache)

	original, err := svc.Create(context.Background(), testInvoice("INV-1"))
	require.NoError(t, err)
	originalCreatedAt := original.CreatedAt

	deleted, err := svc.Delete(context.Background(), "INV-1")
	require.NoError(t, err)
	require.True(t, deleted)

	replacement := testInvoice("INV-1")
	replacement.VendorName = "New Vendor"
	restored, err := svc.Create(context.Background(), replacement)

	require.NoError(t, err)
	assert.Equal(t, original.ID, restored.ID, "restoration keeps the row's identity")
	assert.Equal(t, originalCreatedAt, restored.CreatedAt)
	assert.NotNil(t, restored.UpdatedAt)
	assert.Equal(t, "New Vendor", restored.VendorName)
	assert.Equal(t, 1, repo.restoreCalls)
	assert.Equal(t, 1, repo.insertCalls)
}

func TestCreateDuplicatePassesThrough(t *testing.T) {
	repo := newFakeRepository()
	invoiceCache := newFakeCache()
	svc := NewInvoiceService(repo, invoiceCache)

	_, err := svc.Create(context.Background(), testInvoice("INV-1"))
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), testInvoice("INV-1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrDuplicateInvoiceNumber))
}

func TestDeleteEvictsCache(t *testing.T) {
	repo := newFakeRepository()
	invoiceCache := newFakeCache()
	svc := NewInvoiceService(repo, invoiceCache)

	_, err := svc.Create(context.Background(), testInvoice("INV-1"))
	require.NoError(t, err)
	require.Contains(t, invoiceCache.details, "INV-1")

	deleted, err := svc.Delete(context.Background(), "INV-1")

	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NotContains(t, invoiceCache.details, "INV-1")
	assert.NotContains(t, invoiceCache.summaries, "INV-1")
	assert.False(t, invoiceCache.allSet)
}

func TestDeleteMissingInvoice(t *testing.T) {
	repo := newFakeRepository()
	invoiceCache := newFakeCache()
	require.NoError(t, invoiceCache.SetAllSummaries(context.Background(), []model.InvoiceSummaryDTO{}))

	svc := NewInvoiceService(repo, invoiceCache)
	deleted, err := svc.Delete(context.Background(), "INV-404")

	require.NoError(t, err)
	assert.False(t, deleted)
	assert.True(t, invoiceCache.allSet, "a no-op delete must not touch the cache")
}
