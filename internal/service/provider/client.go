package provider

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jpillora/backoff"

	"FinSight/internal/domain/models"
	pkghttp "FinSight/pkg/http"
	applogger "FinSight/pkg/logger"
	"FinSight/pkg/util"
)

// Config holds the market-data provider settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxAttempts int
}

// Client fetches historical daily OHLCV bars over the provider's REST
// API. Transient failures are retried with exponential backoff; an error
// from FetchBars means retries are exhausted.
type Client struct {
	http        *pkghttp.Client
	baseURL     string
	apiKey      string
	maxAttempts int
	l           *applogger.Logger
}

func NewClient(cfg Config, l *applogger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &Client{
		http:        pkghttp.NewClient(pkghttp.WithTimeout(timeout)),
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		maxAttempts: attempts,
		l:           l,
	}
}

// candleResponse is the provider's column-oriented candle payload.
type candleResponse struct {
	Status string    `json:"s"`
	Open   []float64 `json:"o"`
	High   []float64 `json:"h"`
	Low    []float64 `json:"l"`
	Close  []float64 `json:"c"`
	Volume []float64 `json:"v"`
	Times  []int64   `json:"t"` // unix seconds
}

// FetchBars returns daily bars for the ticker covering the lookback
// window, oldest first.
func (c *Client) FetchBars(ctx context.Context, ticker string, lookbackDays int) ([]models.Bar, error) {
	now := time.Now()
	from, to := util.AlignDayRange(now.AddDate(0, 0, -lookbackDays), now)

	opts := &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    c.baseURL + "/stock/candle",
		QueryParams: map[string][]string{
			"symbol":     {ticker},
			"resolution": {"D"},
			"from":       {fmt.Sprintf("%d", from.Unix())},
			"to":         {fmt.Sprintf("%d", to.Unix())},
			"token":      {c.apiKey},
		},
	}

	b := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 5 * time.Second, Factor: 2, Jitter: true}
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var resp candleResponse
		lastErr = c.http.SendAndParse(ctx, opts, &resp)
		if lastErr == nil {
			bars, err := resp.toBars()
			if err != nil {
				lastErr = err
			} else {
				return bars, nil
			}
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < c.maxAttempts {
			d := b.Duration()
			if c.l != nil {
				c.l.Warn("bar fetch retry",
					applogger.String("ticker", ticker),
					applogger.Int("attempt", attempt),
					applogger.Duration("backoff", d),
					applogger.Error(lastErr),
				)
			}
			select {
			case <-time.After(d):
			case <-ctx.Done():
			}
		}
	}
	return nil, fmt.Errorf("%w: %s: %v", models.ErrDataProvider, ticker, lastErr)
}

func (r *candleResponse) toBars() ([]models.Bar, error) {
	if r.Status != "ok" {
		return nil, fmt.Errorf("provider status %q", r.Status)
	}
	n := len(r.Times)
	if n == 0 {
		return nil, fmt.Errorf("provider returned no candles")
	}
	if len(r.Open) != n || len(r.High) != n || len(r.Low) != n || len(r.Close) != n || len(r.Volume) != n {
		return nil, fmt.Errorf("provider candle columns disagree on length")
	}

	bars := make([]models.Bar, n)
	for i := 0; i < n; i++ {
		bars[i] = models.Bar{
			Timestamp: time.Unix(r.Times[i], 0).UTC(),
			Open:      r.Open[i],
			High:      r.High[i],
			Low:       r.Low[i],
			Close:     r.Close[i],
			Volume:    r.Volume[i],
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}
