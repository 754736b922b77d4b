package kite

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/portfolio/holdings", r.URL.Path)
		assert.Equal(t, "3", r.Header.Get("X-Kite-Version"))
		assert.Equal(t, "token key:tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func newClient(url string) *Client {
	return NewClient(Config{APIKey: "key", AccessToken: "tok", BaseURL: url, Timeout: 2 * time.Second},
		zerolog.New(nil).Level(zerolog.Disabled))
}

func TestFetch_TransformsHoldings(t *testing.T) {
	server := newServer(t, http.StatusOK, `{"status":"success","data":[
		{"tradingsymbol":"INFY","exchange":"NSE","quantity":25,"t1_quantity":5,"average_price":1400.456,"last_price":1500,"close_price":1510,"pnl":2500},
		{"tradingsymbol":"ITC","exchange":"NSE","quantity":100,"average_price":380,"last_price":430,"close_price":0},
		{"tradingsymbol":"GONE","exchange":"NSE","quantity":0,"average_price":10,"last_price":10}
	]}`)
	c := newClient(server.URL)
	taken := time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)
	c.now = func() time.Time { return taken }

	snap, err := c.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "kite", snap.Source)
	require.Equal(t, 2, snap.Len())

	infy, ok := snap.Holding("INFY")
	require.True(t, ok)
	assert.Equal(t, int64(30), infy.Quantity)
	assert.InDelta(t, 1400.46, infy.AverageCost, 1e-9)
	assert.Equal(t, "IT Services", infy.Sector)

	itc, ok := snap.Holding("ITC")
	require.True(t, ok)
	assert.InDelta(t, 430, itc.ClosePrice, 1e-9, "missing close falls back to last price")
}

func TestFetch_MergesSymbolListedOnTwoExchanges(t *testing.T) {
	server := newServer(t, http.StatusOK, `{"status":"success","data":[
		{"tradingsymbol":"SBIN","exchange":"NSE","quantity":10,"average_price":500,"last_price":600,"close_price":590},
		{"tradingsymbol":"SBIN","exchange":"BSE","quantity":20,"t1_quantity":10,"average_price":560,"last_price":601,"close_price":591},
		{"tradingsymbol":"ITC","exchange":"NSE","quantity":5,"average_price":380,"last_price":430}
	]}`)

	snap, err := newClient(server.URL).Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, snap.Len())

	sbin, ok := snap.Holding("SBIN")
	require.True(t, ok)
	assert.Equal(t, int64(40), sbin.Quantity)
	// (10*500 + 30*560) / 40
	assert.InDelta(t, 545, sbin.AverageCost, 1e-9)
	assert.InDelta(t, 600, sbin.LastPrice, 1e-9)
	assert.InDelta(t, 590, sbin.ClosePrice, 1e-9)
}

func TestTransform_DropsSymbolsThatNetToZero(t *testing.T) {
	out := transform([]holding{
		{TradingSymbol: "X", Exchange: "NSE", Quantity: 3, AveragePrice: 10, LastPrice: 10},
		{TradingSymbol: "X", Exchange: "BSE", Quantity: -3, AveragePrice: 10, LastPrice: 10},
		{TradingSymbol: "Y", Exchange: "NSE", Quantity: 1, AveragePrice: 2.345, LastPrice: 3},
	})
	require.Len(t, out, 1)
	assert.Equal(t, "Y", out[0].Symbol)
	assert.InDelta(t, 2.35, out[0].AverageCost, 1e-9)
}

func TestFetch_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   domain.FetchErrorKind
	}{
		{"token exception", http.StatusForbidden, `{"status":"error","message":"Incorrect api_key or access_token.","error_type":"TokenException"}`, domain.FetchUnauthorized},
		{"rate limited", http.StatusTooManyRequests, `{"status":"error","message":"Too many requests","error_type":"NetworkException"}`, domain.FetchUnavailable},
		{"gateway", http.StatusBadGateway, `<html>bad gateway</html>`, domain.FetchUnavailable},
		{"bad json", http.StatusOK, `{"status":"success","data":[`, domain.FetchMalformed},
		{"data not a list", http.StatusOK, `{"status":"success","data":{"x":1}}`, domain.FetchMalformed},
		{"negative quantity", http.StatusOK, `{"status":"success","data":[{"tradingsymbol":"X","quantity":-1,"last_price":1}]}`, domain.FetchMalformed},
		{"error status in success body", http.StatusOK, `{"status":"error","message":"maintenance"}`, domain.FetchMalformed},
		{"token exception in success body", http.StatusOK, `{"status":"error","message":"expired","error_type":"TokenException"}`, domain.FetchUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newServer(t, tt.status, tt.body)

			_, err := newClient(server.URL).Fetch(context.Background())
			var fe *domain.FetchError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.kind, fe.Kind)
		})
	}
}

func TestFetch_MissingCredentials(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, zerolog.Nop())

	_, err := c.Fetch(context.Background())
	assert.True(t, domain.IsUnauthorized(err))
}

func TestFetch_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newClient(server.URL).Fetch(ctx)
	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, domain.FetchUnavailable, fe.Kind)
}
