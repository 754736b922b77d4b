// Package tradernet fetches holdings from a Tradernet (Freedom24) account.
package tradernet

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aristath/sentinel-insights/internal/clients/tradernet/sdk"
	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/aristath/sentinel-insights/internal/modules/risk"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const sourceName = "tradernet"

// Fetcher implements domain.HoldingsFetcher on top of getPositionJson
type Fetcher struct {
	client *sdk.Client
	now    func() time.Time
	log    zerolog.Logger
}

// NewFetcher creates a fetcher that owns its SDK client
func NewFetcher(apiKey, apiSecret string, log zerolog.Logger, opts ...sdk.Option) *Fetcher {
	return &Fetcher{
		client: sdk.NewClient(apiKey, apiSecret, log, opts...),
		now:    time.Now,
		log:    log.With().Str("client", sourceName).Logger(),
	}
}

// Name implements domain.HoldingsFetcher
func (f *Fetcher) Name() string { return sourceName }

// Close stops the SDK worker
func (f *Fetcher) Close() {
	f.client.Close()
}

// Fetch implements domain.HoldingsFetcher
func (f *Fetcher) Fetch(ctx context.Context) (*domain.Snapshot, error) {
	const op = "tradernet.positions"

	raw, err := f.client.AccountSummary(ctx)
	if err != nil {
		return nil, classify(op, err)
	}

	positions, err := transformPositions(raw)
	if err != nil {
		return nil, domain.NewFetchError(domain.FetchMalformed, op, err)
	}

	holdings := make([]domain.Holding, 0, len(positions))
	for _, p := range positions {
		// Fractional share counts are rounded to whole shares
		qty := decimal.NewFromFloat(p.Quantity).Round(0).IntPart()
		if qty == 0 {
			continue
		}
		holdings = append(holdings, domain.Holding{
			Symbol:      p.Symbol,
			Quantity:    qty,
			AverageCost: roundPrice(p.AvgPrice),
			LastPrice:   roundPrice(p.CurrentPrice),
			ClosePrice:  roundPrice(p.ClosePrice),
		})
	}

	snap, err := domain.NewSnapshot(f.now(), sourceName, risk.Enrich(holdings))
	if err != nil {
		return nil, domain.NewFetchError(domain.FetchMalformed, op, err)
	}

	f.log.Debug().Int("holdings", snap.Len()).Msg("Fetched positions")
	return snap, nil
}

func roundPrice(v float64) float64 {
	return decimal.NewFromFloat(v).Round(4).InexactFloat64()
}

// classify maps SDK failures onto fetch error kinds
func classify(op string, err error) error {
	var apiErr *sdk.APIError
	var respErr *sdk.ResponseError
	var decodeErr *sdk.DecodeError

	switch {
	case errors.Is(err, sdk.ErrInvalidKeypair):
		return domain.NewFetchError(domain.FetchUnauthorized, op, err)
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == 401 || apiErr.StatusCode == 403 {
			return domain.NewFetchError(domain.FetchUnauthorized, op, err)
		}
		return domain.NewFetchError(domain.FetchUnavailable, op, err)
	case errors.As(err, &respErr):
		if respErr.Code == 401 || respErr.Code == 403 || looksLikeAuth(respErr.Message) {
			return domain.NewFetchError(domain.FetchUnauthorized, op, err)
		}
		return domain.NewFetchError(domain.FetchUnavailable, op, err)
	case errors.As(err, &decodeErr):
		return domain.NewFetchError(domain.FetchMalformed, op, err)
	}
	return domain.NewFetchError(domain.FetchUnavailable, op, err)
}

func looksLikeAuth(msg string) bool {
	msg = strings.ToLower(msg)
	for _, needle := range []string{"auth", "signature", "key", "session"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
