// Package coingecko implements the price service boundary against the
// CoinGecko REST API: one /simple/price call covers every configured
// currency, and /coins/bitcoin/history serves dated prices.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"loanperf/internal/application/port"
)

const coinID = "bitcoin"

type Client struct {
	baseURL    string
	apiKey     string
	currencies []string
	client     *http.Client
}

// New creates a client quoting the given vs-currencies. apiKey may be
// empty; the public endpoints work without one, just with tighter
// limits.
func New(baseURL, apiKey string, currencies []string) *Client {
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	lowered := make([]string, 0, len(currencies))
	for _, c := range currencies {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			lowered = append(lowered, c)
		}
	}
	if len(lowered) == 0 {
		lowered = []string{"eur", "usd"}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		currencies: lowered,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// FetchCurrentPrices returns the current price in every configured
// currency from a single call.
func (c *Client) FetchCurrentPrices(ctx context.Context) (map[string]float64, error) {
	q := url.Values{}
	q.Set("ids", coinID)
	q.Set("vs_currencies", strings.Join(c.currencies, ","))

	body, err := c.get(ctx, "/simple/price", q)
	if err != nil {
		return nil, err
	}

	var result map[string]map[string]float64
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode current prices: %w", err)
	}
	prices, ok := result[coinID]
	if !ok || len(prices) == 0 {
		return nil, fmt.Errorf("no prices for %s in response", coinID)
	}
	return prices, nil
}

// FetchHistoricalPrice returns the price on the given calendar date in
// the given currency. The endpoint wants dd-mm-yyyy.
func (c *Client) FetchHistoricalPrice(ctx context.Context, date time.Time, currency string) (float64, error) {
	q := url.Values{}
	q.Set("date", date.Format("02-01-2006"))
	q.Set("localization", "false")

	body, err := c.get(ctx, "/coins/"+coinID+"/history", q)
	if err != nil {
		return 0, err
	}

	var result struct {
		MarketData struct {
			CurrentPrice map[string]float64 `json:"current_price"`
		} `json:"market_data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("decode historical price: %w", err)
	}

	price, ok := result.MarketData.CurrentPrice[strings.ToLower(currency)]
	if !ok {
		return 0, fmt.Errorf("no %s price on %s", currency, date.Format("02-01-2006"))
	}
	return price, nil
}

// get performs one API call. Failures come back as port.UpstreamError
// so the throttler sees the status code when there is one, and the
// error text when there is not.
func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	endpoint := c.baseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &port.UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &port.UpstreamError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &port.UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

var _ port.PriceService = (*Client)(nil)
