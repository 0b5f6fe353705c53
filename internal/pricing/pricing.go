// Package pricing provides historical USD price lookup for tokens.
// Unknown symbols resolve to nil, never an error, so callers can treat
// missing prices as zero-cost rather than failures.
package pricing

import (
	"context"
	"time"

	"github.com/vietddude/basis/internal/core/domain"
)

// PricePoint is one resolved price.
type PricePoint struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// Lookup resolves a token's USD price at a point in time. Implementations
// must return (nil, nil) for unknown symbols and should cache recent
// lookups with a short TTL to bound upstream call volume.
type Lookup interface {
	GetHistoricalPrice(ctx context.Context, symbol string, at time.Time, chain domain.Chain) (*PricePoint, error)
}

// Cache stores serialized price points with a TTL. Implementations must be
// safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key string, value string, ttl time.Duration)
}
