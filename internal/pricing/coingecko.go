// Package pricing fetches historical fiat prices from CoinGecko.
package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"symbol-price-recorder/internal/domain"
)

// Default configuration values.
const (
	DefaultBaseURL    = "https://api.coingecko.com/api/v3"
	DefaultVsCurrency = "jpy"
	DefaultTimeout    = 30 * time.Second
)

var (
	// ErrPriceUnavailable is returned when the response has no usable price.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrNetwork is returned when the request fails or the API answers non-2xx.
	ErrNetwork = errors.New("price api request failed")
)

// Fetcher returns the fiat price of coinID on a given day.
type Fetcher interface {
	FetchPrice(ctx context.Context, day domain.Day, coinID string) (decimal.Decimal, error)
}

// Client implements Fetcher against the CoinGecko REST API.
type Client struct {
	baseURL    string
	vsCurrency string
	apiKey     string
	apiKeyPro  bool
	userAgent  string
	client     *http.Client
	logger     *logrus.Entry
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithVsCurrency sets the fiat currency to read from the response.
func WithVsCurrency(currency string) ClientOption {
	return func(c *Client) {
		if currency = strings.ToLower(strings.TrimSpace(currency)); currency != "" {
			c.vsCurrency = currency
		}
	}
}

// WithAPIKey sends a demo API key, or a pro key when pro is true.
func WithAPIKey(key string, pro bool) ClientOption {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
		c.apiKeyPro = pro
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithLogger sets the logger used for failure context.
func WithLogger(logger *logrus.Entry) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a CoinGecko client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		vsCurrency: DefaultVsCurrency,
		client:     &http.Client{Timeout: DefaultTimeout},
		logger:     logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// VsCurrency returns the fiat currency prices are quoted in.
func (c *Client) VsCurrency() string { return c.vsCurrency }

// historyResponse is the subset of /coins/{id}/history this client reads.
type historyResponse struct {
	MarketData *struct {
		CurrentPrice map[string]json.RawMessage `json:"current_price"`
	} `json:"market_data"`
}

// FetchPrice returns the price of coinID on day, in the client's vs currency.
// The day is sent as DD-MM-YYYY; CoinGecko reports the price at 00:00 UTC of that date.
func (c *Client) FetchPrice(ctx context.Context, day domain.Day, coinID string) (decimal.Decimal, error) {
	date := day.Format(domain.LayoutDMY)
	log := c.logger.WithFields(logrus.Fields{"date": date, "coin_id": coinID})

	price, err := c.fetch(ctx, date, coinID)
	if err != nil {
		log.WithError(err).Error("coingecko price fetch failed")
		return decimal.Decimal{}, err
	}

	log.WithField(c.vsCurrency, price.String()).Debug("coingecko price fetched")
	return price, nil
}

func (c *Client) fetch(ctx context.Context, date, coinID string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("date", date)
	q.Set("localization", "false")
	u := fmt.Sprintf("%s/coins/%s/history?%s", c.baseURL, url.PathEscape(coinID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: create request: %v", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.apiKey != "" {
		if c.apiKeyPro {
			req.Header.Set("x-cg-pro-api-key", c.apiKey)
		} else {
			req.Header.Set("x-cg-demo-api-key", c.apiKey)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: read response: %v", ErrNetwork, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return decimal.Decimal{}, fmt.Errorf("%w: rate limited (429)", ErrNetwork)
	}
	if resp.StatusCode/100 != 2 {
		return decimal.Decimal{}, fmt.Errorf("%w: unexpected status %d: %s", ErrNetwork, resp.StatusCode, truncate(body, 200))
	}

	var data historyResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: unmarshal response: %v", ErrPriceUnavailable, err)
	}
	if data.MarketData == nil {
		return decimal.Decimal{}, fmt.Errorf("%w: no market_data for %s on %s", ErrPriceUnavailable, coinID, date)
	}

	raw, ok := data.MarketData.CurrentPrice[c.vsCurrency]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: no %s price for %s on %s", ErrPriceUnavailable, c.vsCurrency, coinID, date)
	}
	return parsePrice(raw)
}

// parsePrice accepts only a JSON number that is strictly positive.
func parsePrice(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !(raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9')) {
		return decimal.Decimal{}, fmt.Errorf("%w: price is not a number: %s", ErrPriceUnavailable, truncate(raw, 40))
	}

	price, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: parse price %s: %v", ErrPriceUnavailable, raw, err)
	}
	if !price.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: price %s is not positive", ErrPriceUnavailable, price)
	}
	return price, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
