// Package kite is a minimal Kite Connect REST client covering the two
// calls the penalty path needs: last traded price and order placement.
package kite

import (
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

const (
	VarietyRegular = "regular"
	VarietyAMO     = "amo"

	ExchangeNSE     = "NSE"
	TransactionBuy  = "BUY"
	TransactionSell = "SELL"
	OrderTypeMarket = "MARKET"
	ProductCNC      = "CNC"
	ValidityDay     = "DAY"

	kiteVersion = "3"
)

// ErrMarketClosed reports that the exchange rejected a regular order
// because the market is not open. Callers retry the same order as AMO.
var ErrMarketClosed = errors.New("kite: markets are closed")

// OrderParams describes a single order. Zero-valued optional fields are
// omitted from the request.
type OrderParams struct {
	Exchange        string
	TradingSymbol   string
	TransactionType string
	Quantity        int
	OrderType       string
	Product         string
	Validity        string
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	token      string
}

func NewClient(baseURL, apiKey, accessToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		token:      accessToken,
	}
}

type envelope struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
}

// LTP fetches the last traded price for an instrument like "NSE:IDEA".
func (c *Client) LTP(ctx context.Context, instrument string) (float64, error) {
	u := c.baseURL + "/quote/ltp?i=" + url.QueryEscape(instrument)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	env, err := c.do(req)
	if err != nil {
		return 0, err
	}

	var quotes map[string]struct {
		LastPrice float64 `json:"last_price"`
	}
	if err := json.Unmarshal(env.Data, &quotes); err != nil {
		return 0, fmt.Errorf("kite: decode ltp: %w", err)
	}
	q, ok := quotes[instrument]
	if !ok {
		return 0, fmt.Errorf("kite: no quote for %s", instrument)
	}
	return q.LastPrice, nil
}

// PlaceOrder places an order under the given variety and returns the
// exchange order id. A regular order rejected for a closed market
// returns ErrMarketClosed.
func (c *Client) PlaceOrder(ctx context.Context, variety string, p OrderParams) (string, error) {
	form := url.Values{}
	form.Set("exchange", p.Exchange)
	form.Set("tradingsymbol", p.TradingSymbol)
	form.Set("transaction_type", p.TransactionType)
	form.Set("quantity", strconv.Itoa(p.Quantity))
	form.Set("order_type", p.OrderType)
	form.Set("product", p.Product)
	if p.Validity != "" {
		form.Set("validity", p.Validity)
	}

	u := c.baseURL + "/orders/" + variety
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	env, err := c.do(req)
	if err != nil {
		return "", err
	}

	var out struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return "", fmt.Errorf("kite: decode order response: %w", err)
	}
	return out.OrderID, nil
}

func (c *Client) do(req *http.Request) (*envelope, error) {
	req.Header.Set("X-Kite-Version", kiteVersion)
	req.Header.Set("Authorization", "token "+c.apiKey+":"+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kite: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("kite: read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("kite: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if env.Status == "error" || resp.StatusCode >= 400 {
		if isMarketClosed(env) {
			return nil, ErrMarketClosed
		}
		return nil, fmt.Errorf("kite: %s: %s", env.ErrorType, env.Message)
	}
	return &env, nil
}

func isMarketClosed(env envelope) bool {
	return env.ErrorType == "InputException" &&
		strings.Contains(env.Message, "Markets are closed")
}
