package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prasetyawan/billing-extractor-service/internal/model"
)

// Key layout. Every invoice has a summary and a detail entry; the full
// list lives under a single aggregate key.
const (
	summaryKeyPrefix = "invoice:summary:"
	detailKeyPrefix  = "invoice:detail:"
	allSummariesKey  = "invoice:all_summaries"
)

// DefaultTTL is the expiry backstop applied to every entry, independent of
// explicit invalidation
const DefaultTTL = 24 * time.Hour

// InvoiceCache is the cache-aside layer for invoice read projections.
// A nil result with a nil error means the entry is absent; for the
// aggregate list the found flag distinguishes a miss from a cached empty
// list.
type InvoiceCache interface {
	GetSummary(ctx context.Context, invoiceNumber string) (*model.InvoiceSummaryDTO, error)
	GetDetail(ctx context.Context, invoiceNumber string) (*model.InvoiceDetailDTO, error)
	GetAllSummaries(ctx context.Context) ([]model.InvoiceSummaryDTO, bool, error)

	SetSummary(ctx context.Context, invoiceNumber string, summary model.InvoiceSummaryDTO) error
	SetDetail(ctx context.Context, invoiceNumber string, detail model.InvoiceDetailDTO) error
	SetAllSummaries(ctx context.Context, summaries []model.InvoiceSummaryDTO) error

	// Delete removes the summary and detail entries for an invoice and
	// unconditionally invalidates the aggregate list
	Delete(ctx context.Context, invoiceNumber string) error

	// InvalidateAllSummaries removes only the aggregate list entry
	InvalidateAllSummaries(ctx context.Context) error
}

// RedisInvoiceCache implements InvoiceCache on top of Redis
type RedisInvoiceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisInvoiceCache creates a Redis-backed invoice cache. A non-positive
// ttl falls back to DefaultTTL.
func NewRedisInvoiceCache(client *redis.Client, ttl time.Duration) *RedisInvoiceCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisInvoiceCache{
		client: client,
		ttl:    ttl,
	}
}

// GetSummary returns the cached summary for an invoice, or nil on a miss
func (c *RedisInvoiceCache) GetSummary(ctx context.Context, invoiceNumber string) (*model.InvoiceSummaryDTO, error) {
	var summary model.InvoiceSummaryDTO
	found, err := c.get(ctx, summaryKeyPrefix+invoiceNumber, &summary)
	if err != nil || !found {
		return nil, err
	}
	return &summary, nil
}

// GetDetail returns the cached detail for an invoice, or nil on a miss
func (c *RedisInvoiceCache) GetDetail(ctx context.Context, invoiceNumber string) (*model.InvoiceDetailDTO, error) {
	var detail model.InvoiceDetailDTO
	found, err := c.get(ctx, detailKeyPrefix+invoiceNumber, &detail)
	if err != nil || !found {
		return nil, err
	}
	return &detail, nil
}

// GetAllSummaries returns the cached full list. The found flag is false on
// a miss; a cached empty list returns an empty slice with found true.
func (c *RedisInvoiceCache) GetAllSummaries(ctx context.Context) ([]model.InvoiceSummaryDTO, bool, error) {
	var summaries []model.InvoiceSummaryDTO
	found, err := c.get(ctx, allSummariesKey, &summaries)
	if err != nil || !found {
		return nil, false, err
	}
	if summaries == nil {
		summaries = []model.InvoiceSummaryDTO{}
	}
	return summaries, true, nil
}

// SetSummary overwrites the summary entry and refreshes its TTL
func (c *RedisInvoiceCache) SetSummary(ctx context.Context, invoiceNumber string, summary model.InvoiceSummaryDTO) error {
	return c.set(ctx, summaryKeyPrefix+invoiceNumber, summary)
}

// SetDetail overwrites the detail entry and refreshes its TTL
func (c *RedisInvoiceCache) SetDetail(ctx context.Context, invoiceNumber string, detail model.InvoiceDetailDTO) error {
	return c.set(ctx, detailKeyPrefix+invoiceNumber, detail)
}

// SetAllSummaries overwrites the aggregate list entry and refreshes its TTL
func (c *RedisInvoiceCache) SetAllSummaries(ctx context.Context, summaries []model.InvoiceSummaryDTO) error {
	if summaries == nil {
		summaries = []model.InvoiceSummaryDTO{}
	}
	return c.set(ctx, allSummariesKey, summaries)
}

// Delete evicts both per-invoice entries and the aggregate list. Working
// out whether the list actually contained the invoice is not worth the
// complexity.
func (c *RedisInvoiceCache) Delete(ctx context.Context, invoiceNumber string) error {
	if err := c.client.Del(ctx,
		summaryKeyPrefix+invoiceNumber,
		detailKeyPrefix+invoiceNumber,
		allSummariesKey,
	).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entries: %w", err)
	}
	return nil
}

// InvalidateAllSummaries evicts the aggregate list entry only, leaving
// individual summary and detail entries intact
func (c *RedisInvoiceCache) InvalidateAllSummaries(ctx context.Context) error {
	if err := c.client.Del(ctx, allSummariesKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate summaries cache: %w", err)
	}
	return nil
}

func (c *RedisInvoiceCache) get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache key %s: %w", key, err)
	}
	return true, nil
}

func (c *RedisInvoiceCache) set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache key %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}
