// Package binance is the spot exchange adapter: a REST client that quotes
// and places orders, and a depth stream reader for the live feed.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hftbot/internal/crypto"
	"github.com/alanyoungcy/hftbot/internal/domain"
)

// DefaultBaseURL is the spot REST endpoint.
const DefaultBaseURL = "https://api.binance.com"

// Client is the REST client for spot market data and order entry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       *crypto.QueryAuth
	depthLimit int
}

var _ domain.ExecutionVenue = (*Client)(nil)

// NewClient creates a Client. auth may be nil for market data only use.
func NewClient(baseURL string, auth *crypto.QueryAuth, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		auth:       auth,
		depthLimit: 5,
	}
}

// Depth fetches the top limit levels of the book.
func (c *Client) Depth(ctx context.Context, symbol string, limit int) (DepthMessage, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("limit", strconv.Itoa(limit))

	body, err := c.do(ctx, http.MethodGet, "/api/v3/depth?"+q.Encode(), false)
	if err != nil {
		return DepthMessage{}, fmt.Errorf("binance: depth %s: %w", symbol, err)
	}
	var msg DepthMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return DepthMessage{}, fmt.Errorf("binance: decode depth: %w", err)
	}
	return msg, nil
}

// BestBid returns the highest bid price.
func (c *Client) BestBid(ctx context.Context, symbol string) (decimal.Decimal, error) {
	msg, err := c.Depth(ctx, symbol, c.depthLimit)
	if err != nil {
		return decimal.Zero, err
	}
	return best("bid", msg.Bids, func(a, b decimal.Decimal) bool { return a.GreaterThan(b) })
}

// BestAsk returns the lowest ask price.
func (c *Client) BestAsk(ctx context.Context, symbol string) (decimal.Decimal, error) {
	msg, err := c.Depth(ctx, symbol, c.depthLimit)
	if err != nil {
		return decimal.Zero, err
	}
	return best("ask", msg.Asks, func(a, b decimal.Decimal) bool { return a.LessThan(b) })
}

func best(side string, levels []domain.RawLevel, better func(a, b decimal.Decimal) bool) (decimal.Decimal, error) {
	var out *decimal.Decimal
	for _, l := range levels {
		if l.Price == nil {
			continue
		}
		if out == nil || better(*l.Price, *out) {
			out = l.Price
		}
	}
	if out == nil {
		return decimal.Zero, fmt.Errorf("binance: empty %s side: %w", side, domain.ErrNotFound)
	}
	return *out, nil
}

// PlaceOrder sends a signed LIMIT IOC order and reports what filled. Callers
// price it at the opposite side of the book; an IOC order that found no
// liquidity at price comes back EXPIRED with a zero FilledAmount.
func (c *Client) PlaceOrder(ctx context.Context, symbol string, side domain.Side, price, amount decimal.Decimal) (domain.FillConfirmation, error) {
	if c.auth == nil {
		return domain.FillConfirmation{}, fmt.Errorf("binance: place order: %w", domain.ErrUnauthorized)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", strings.ToUpper(string(side)))
	params.Set("type", "LIMIT")
	params.Set("timeInForce", "IOC")
	params.Set("quantity", amount.String())
	params.Set("price", price.String())
	params.Set("newOrderRespType", "RESULT")

	body, err := c.do(ctx, http.MethodPost, "/api/v3/order?"+c.auth.SignedQuery(params), true)
	if err != nil {
		return domain.FillConfirmation{}, fmt.Errorf("binance: place order: %w", err)
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.FillConfirmation{}, fmt.Errorf("binance: decode order: %w", err)
	}
	return resp.fill(), nil
}

func (c *Client) do(ctx context.Context, method, pathQuery string, signed bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+pathQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if signed {
		for k, v := range c.auth.Headers() {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx responses to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	msg := decodeAPIError(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case http.StatusTooManyRequests, http.StatusTeapot:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, msg)
	}
}
