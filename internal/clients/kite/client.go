// Package kite fetches holdings from a Zerodha Kite Connect account.
package kite

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/aristath/sentinel-insights/internal/modules/risk"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	sourceName     = "kite"
	apiVersion     = "3"
	holdingsPath   = "/portfolio/holdings"
	defaultTimeout = 20 * time.Second
)

// Config configures the Kite client
type Config struct {
	APIKey      string
	AccessToken string
	BaseURL     string
	Timeout     time.Duration
}

// holding is one entry of the holdings response
type holding struct {
	TradingSymbol string  `json:"tradingsymbol"`
	Exchange      string  `json:"exchange"`
	ISIN          string  `json:"isin"`
	Quantity      int64   `json:"quantity"`
	T1Quantity    int64   `json:"t1_quantity"`
	AveragePrice  float64 `json:"average_price"`
	LastPrice     float64 `json:"last_price"`
	ClosePrice    float64 `json:"close_price"`
	PnL           float64 `json:"pnl"`
}

// holdingsResponse is the success body of the holdings endpoint
type holdingsResponse struct {
	Status    string    `json:"status"`
	Data      []holding `json:"data"`
	Message   string    `json:"message"`
	ErrorType string    `json:"error_type"`
}

// apiError is the body Kite sends with 4xx and 5xx responses
type apiError struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
}

// Client implements domain.HoldingsFetcher with the read-only holdings endpoint
type Client struct {
	http    *resty.Client
	hasAuth bool
	now     func() time.Time
	log     zerolog.Logger
}

// NewClient creates a Kite client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.kite.trade"
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("X-Kite-Version", apiVersion).
		SetHeader("Authorization", fmt.Sprintf("token %s:%s", cfg.APIKey, cfg.AccessToken))

	return &Client{
		http:    rc,
		hasAuth: cfg.APIKey != "" && cfg.AccessToken != "",
		now:     time.Now,
		log:     log.With().Str("client", sourceName).Logger(),
	}
}

// Name implements domain.HoldingsFetcher
func (c *Client) Name() string { return sourceName }

// Fetch implements domain.HoldingsFetcher
func (c *Client) Fetch(ctx context.Context) (*domain.Snapshot, error) {
	const op = "kite.holdings"

	if !c.hasAuth {
		return nil, domain.NewFetchError(domain.FetchUnauthorized, op, errors.New("api key and access token are required"))
	}

	start := time.Now()
	var result holdingsResponse
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		SetError(&apiErr).
		Get(holdingsPath)
	if err != nil && (resp == nil || resp.RawResponse == nil) {
		return nil, domain.NewFetchError(domain.FetchUnavailable, op, err)
	}
	// With a response in hand, err can only be a body that failed to decode
	decodeErr := err

	if status := resp.StatusCode(); status != http.StatusOK {
		c.log.Warn().
			Int("status_code", status).
			Str("error_type", apiErr.ErrorType).
			Str("message", apiErr.Message).
			Msg("Holdings request rejected")
		return nil, statusError(op, status, apiErr)
	}
	if decodeErr != nil {
		return nil, domain.NewFetchError(domain.FetchMalformed, op, fmt.Errorf("invalid response body: %w", decodeErr))
	}
	if result.Status != "success" {
		if result.ErrorType == "TokenException" || result.ErrorType == "PermissionException" {
			return nil, domain.NewFetchError(domain.FetchUnauthorized, op, errors.New(result.Message))
		}
		return nil, domain.NewFetchError(domain.FetchMalformed, op, fmt.Errorf("unexpected status %q: %s", result.Status, result.Message))
	}

	snap, err := domain.NewSnapshot(c.now(), sourceName, risk.Enrich(transform(result.Data)))
	if err != nil {
		return nil, domain.NewFetchError(domain.FetchMalformed, op, err)
	}

	c.log.Debug().
		Int("holdings", snap.Len()).
		Dur("duration_ms", time.Since(start)).
		Msg("Fetched holdings")
	return snap, nil
}

// transform maps broker rows to domain holdings. Settled and T1 shares are both counted.
// A symbol held on more than one exchange becomes one holding: quantities add up,
// the average cost is quantity weighted and prices come from the first row seen.
func transform(raw []holding) []domain.Holding {
	out := make([]domain.Holding, 0, len(raw))
	costs := make([]decimal.Decimal, 0, len(raw))
	index := make(map[string]int, len(raw))
	for _, h := range raw {
		qty := h.Quantity + h.T1Quantity
		if qty == 0 {
			continue
		}
		cost := decimal.NewFromFloat(h.AveragePrice).Mul(decimal.NewFromInt(qty))

		if i, ok := index[h.TradingSymbol]; ok {
			out[i].Quantity += qty
			costs[i] = costs[i].Add(cost)
			continue
		}

		closePrice := h.ClosePrice
		if closePrice == 0 {
			closePrice = h.LastPrice
		}
		index[h.TradingSymbol] = len(out)
		costs = append(costs, cost)
		out = append(out, domain.Holding{
			Symbol:     h.TradingSymbol,
			Quantity:   qty,
			LastPrice:  round2(h.LastPrice),
			ClosePrice: round2(closePrice),
		})
	}

	merged := out[:0]
	for i, h := range out {
		if h.Quantity == 0 {
			continue
		}
		h.AverageCost = costs[i].Div(decimal.NewFromInt(h.Quantity)).Round(2).InexactFloat64()
		merged = append(merged, h)
	}
	return merged
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func statusError(op string, status int, env apiError) error {
	err := fmt.Errorf("status %d", status)
	if env.Message != "" {
		err = fmt.Errorf("status %d: %s", status, env.Message)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden || env.ErrorType == "TokenException":
		return domain.NewFetchError(domain.FetchUnauthorized, op, err)
	case status == http.StatusTooManyRequests || status >= 500:
		return domain.NewFetchError(domain.FetchUnavailable, op, err)
	}
	return domain.NewFetchError(domain.FetchMalformed, op, err)
}
