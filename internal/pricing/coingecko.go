package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	logger "log/slog"
	"strconv"
	"time"

	"github.com/vietddude/basis/internal/control/metrics"
	"github.com/vietddude/basis/internal/core/domain"
	"github.com/vietddude/basis/internal/infra/rpc"
)

const (
	defaultBaseURL = "https://api.coingecko.com/api/v3"
	cacheTTL       = 5 * time.Minute
	// A window around the requested timestamp; the closest sample wins.
	lookupWindow = 12 * time.Hour
)

// CoinGecko implements Lookup against the CoinGecko market_chart/range API.
type CoinGecko struct {
	provider *rpc.HTTPProvider
	cache    Cache
	log      logger.Logger
}

// NewCoinGecko creates a price lookup. baseURL "" uses the public API;
// cache nil uses an in-process map.
func NewCoinGecko(baseURL, apiKey string, cache Cache) *CoinGecko {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	p := rpc.NewHTTPProvider("coingecko", baseURL, 15*time.Second)
	if apiKey != "" {
		p.SetAPIKey(apiKey)
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &CoinGecko{
		provider: p,
		cache:    cache,
		log:      *logger.Default(),
	}
}

type marketChart struct {
	Prices [][2]float64 `json:"prices"` // [ms, price]
}

// GetHistoricalPrice resolves the USD price of symbol at the given time.
// Unknown symbols return (nil, nil).
func (c *CoinGecko) GetHistoricalPrice(
	ctx context.Context,
	symbol string,
	at time.Time,
	chain domain.Chain,
) (*PricePoint, error) {
	id := coinID(symbol, chain)
	if id == "" {
		metrics.PriceLookups.WithLabelValues("unknown").Inc()
		return nil, nil
	}

	key := fmt.Sprintf("price:%s:%d", id, at.Truncate(time.Hour).Unix())
	if cached, ok := c.cache.Get(ctx, key); ok {
		var pt PricePoint
		if err := json.Unmarshal([]byte(cached), &pt); err == nil {
			metrics.PriceLookups.WithLabelValues("cached").Inc()
			return &pt, nil
		}
	}

	from := at.Add(-lookupWindow).Unix()
	to := at.Add(lookupWindow).Unix()
	path := fmt.Sprintf("/coins/%s/market_chart/range?vs_currency=usd&from=%s&to=%s",
		id, strconv.FormatInt(from, 10), strconv.FormatInt(to, 10))

	var chart marketChart
	if err := c.provider.Get(ctx, path, &chart); err != nil {
		metrics.PriceLookups.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("price fetch %s: %w", id, err)
	}
	if len(chart.Prices) == 0 {
		metrics.PriceLookups.WithLabelValues("empty").Inc()
		return nil, nil
	}

	// Pick the sample closest to the requested time.
	target := at.UnixMilli()
	best := chart.Prices[0]
	for _, sample := range chart.Prices[1:] {
		if abs64(int64(sample[0])-target) < abs64(int64(best[0])-target) {
			best = sample
		}
	}

	pt := &PricePoint{
		Price:     best[1],
		Timestamp: time.UnixMilli(int64(best[0])).UTC(),
		Source:    "coingecko",
	}

	if data, err := json.Marshal(pt); err == nil {
		c.cache.Set(ctx, key, string(data), cacheTTL)
	}

	metrics.PriceLookups.WithLabelValues("ok").Inc()
	return pt, nil
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
