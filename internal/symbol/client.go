package symbol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds a single REST call.
const DefaultTimeout = 30 * time.Second

// APIError is a non-2xx answer from the node.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("node error %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("node error %d: %s", e.StatusCode, e.Message)
}

// HTTPClient implements NodeClient over the node REST gateway.
type HTTPClient struct {
	endpoint string
	client   *http.Client
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a client for the node at endpoint, e.g. https://node:3001.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the node base URL.
func (c *HTTPClient) Endpoint() string { return c.endpoint }

// SearchMetadata calls GET /metadata.
func (c *HTTPClient) SearchMetadata(ctx context.Context, q MetadataQuery) ([]MetadataEntry, error) {
	params := url.Values{}
	if !q.Target.IsZero() {
		params.Set("targetAddress", q.Target.String())
	}
	if !q.Source.IsZero() {
		params.Set("sourceAddress", q.Source.String())
	}
	params.Set("scopedMetadataKey", fmt.Sprintf("%016X", q.ScopedKey))
	params.Set("metadataType", strconv.Itoa(int(q.Type)))

	var page metadataPage
	if err := c.do(ctx, http.MethodGet, "/metadata?"+params.Encode(), nil, &page); err != nil {
		return nil, err
	}

	entries := make([]MetadataEntry, 0, len(page.Data))
	for _, item := range page.Data {
		entry, err := item.MetadataEntry.toEntry()
		if err != nil {
			return nil, fmt.Errorf("decode metadata entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Announce calls PUT /transactions.
func (c *HTTPClient) Announce(ctx context.Context, tx *SignedTransaction) error {
	if tx == nil {
		return errors.New("announce: nil transaction")
	}
	body, err := json.Marshal(announceRequest{Payload: tx.PayloadHex()})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPut, "/transactions", body, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, result interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var e errorResponse
		if json.Unmarshal(respBody, &e) == nil && (e.Code != "" || e.Message != "") {
			apiErr.Code, apiErr.Message = e.Code, e.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

type announceRequest struct {
	Payload string `json:"payload"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type metadataPage struct {
	Data []struct {
		MetadataEntry rawMetadataEntry `json:"metadataEntry"`
	} `json:"data"`
}

type rawMetadataEntry struct {
	CompositeHash     string       `json:"compositeHash"`
	SourceAddress     Address      `json:"sourceAddress"`
	TargetAddress     Address      `json:"targetAddress"`
	ScopedMetadataKey string       `json:"scopedMetadataKey"`
	MetadataType      MetadataType `json:"metadataType"`
	ValueSize         int          `json:"valueSize"`
	Value             string       `json:"value"`
}

func (r rawMetadataEntry) toEntry() (MetadataEntry, error) {
	key, err := strconv.ParseUint(r.ScopedMetadataKey, 16, 64)
	if err != nil {
		return MetadataEntry{}, fmt.Errorf("scoped key %q: %w", r.ScopedMetadataKey, err)
	}
	value, err := decodeHex(r.Value)
	if err != nil {
		return MetadataEntry{}, fmt.Errorf("value: %w", err)
	}
	return MetadataEntry{
		CompositeHash: r.CompositeHash,
		Source:        r.SourceAddress,
		Target:        r.TargetAddress,
		ScopedKey:     key,
		Type:          r.MetadataType,
		ValueSize:     r.ValueSize,
		Value:         value,
	}, nil
}
