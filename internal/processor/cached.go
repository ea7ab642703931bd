package processor

import (
	"context"
	"time"

	"github.com/blnkfinance/payq/internal/cache"
)

// CachedProcessor serves GetOutboundPayment from a cache. Payment metadata is immutable once
// created so the cached copy stays valid for correlation lookups.
type CachedProcessor struct {
	Processor
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedProcessor(p Processor, c cache.Cache, ttl time.Duration) *CachedProcessor {
	return &CachedProcessor{Processor: p, cache: c, ttl: ttl}
}

func paymentCacheKey(id string) string {
	return "payq:outbound_payment:" + id
}

func (c *CachedProcessor) GetOutboundPayment(ctx context.Context, id string) (*OutboundPayment, error) {
	var payment OutboundPayment
	err := c.cache.Once(ctx, paymentCacheKey(id), &payment, c.ttl, func() (interface{}, error) {
		return c.Processor.GetOutboundPayment(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}
