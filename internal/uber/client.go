// Package uber wraps the handful of Uber riders API endpoints used to track
// an active ride, plus the OAuth2 token lifecycle behind them.
package uber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erbarraud/ha-uber-ride-tracker/internal/clock"
	"github.com/erbarraud/ha-uber-ride-tracker/internal/observability"
)

const (
	DefaultBaseURL = "https://api.uber.com"
	apiVersion     = "v1.2"

	requestTimeout = 30 * time.Second

	rateLimitCalls  = 2000
	rateLimitWindow = time.Hour
)

// TokenSource supplies a valid bearer token before each outbound request.
// Implemented by TokenManager.
type TokenSource interface {
	EnsureValid(ctx context.Context) (string, error)
}

// Client is the REST client for the ride endpoints. The local rate-limit
// budget fails calls fast once exhausted and resets when the window elapses;
// server-reported limits in response headers override the local estimate.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	clock   clock.Clock
	logger  *zap.Logger

	mu            sync.Mutex
	rateRemaining int
	rateReset     time.Time
}

// NewClient creates a ride API client. baseURL may be empty to use the
// production API.
func NewClient(baseURL string, tokens TokenSource, clk clock.Clock, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:       baseURL,
		http:          &http.Client{Timeout: requestTimeout},
		tokens:        tokens,
		clock:         clk,
		logger:        logger.Named("uber"),
		rateRemaining: rateLimitCalls,
		rateReset:     clk.Now().Add(rateLimitWindow),
	}
}

// GetCurrentRide returns the raw payload of the active ride, or (nil, nil)
// when no ride is active (the API reports that as a 404).
func (c *Client) GetCurrentRide(ctx context.Context) (json.RawMessage, error) {
	body, err := c.request(ctx, http.MethodGet, c.endpoint("requests/current"), nil)
	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		c.logger.Debug("No active ride")
		return nil, nil
	}
	return body, err
}

// GetRideReceipt fetches the receipt for a ride. Receipts are typically only
// available once the ride completes.
func (c *Client) GetRideReceipt(ctx context.Context, requestID string) (json.RawMessage, error) {
	return c.request(ctx, http.MethodGet, c.endpoint("requests/"+requestID+"/receipt"), nil)
}

// GetRideMap fetches the live map link for a ride.
func (c *Client) GetRideMap(ctx context.Context, requestID string) (json.RawMessage, error) {
	return c.request(ctx, http.MethodGet, c.endpoint("requests/"+requestID+"/map"), nil)
}

// GetTripHistory fetches the rider's past trips.
func (c *Client) GetTripHistory(ctx context.Context, limit, offset int) ([]HistoryItem, error) {
	query := url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
	body, err := c.request(ctx, http.MethodGet, c.endpoint("history"), query)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Count   int           `json:"count"`
		History []HistoryItem `json:"history"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &APIError{Message: fmt.Sprintf("malformed history response: %v", err)}
	}
	return payload.History, nil
}

// GetProfile fetches the authenticated rider's profile.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	body, err := c.request(ctx, http.MethodGet, c.endpoint("me"), nil)
	if err != nil {
		return nil, err
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, &APIError{Message: fmt.Sprintf("malformed profile response: %v", err)}
	}
	return &profile, nil
}

func (c *Client) endpoint(suffix string) string {
	return "/" + apiVersion + "/" + suffix
}

// checkBudget enforces the local rate-limit budget, resetting it when the
// window has elapsed.
func (c *Client) checkBudget() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if c.rateRemaining <= 0 {
		if now.Before(c.rateReset) {
			c.logger.Warn("Local rate-limit budget exhausted",
				zap.Time("reset_at", c.rateReset))
			return &RateLimitError{ResetAt: c.rateReset}
		}
		c.rateRemaining = rateLimitCalls
		c.rateReset = now.Add(rateLimitWindow)
	}
	c.rateRemaining--
	return nil
}

// updateBudgetFromHeaders takes the server's word over the local estimate
// when the response reports limits.
func (c *Client) updateBudgetFromHeaders(h http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := h.Get("X-Rate-Limit-Remaining"); v != "" {
		if remaining, err := strconv.Atoi(v); err == nil {
			c.rateRemaining = remaining
		}
	}
	if v := h.Get("X-Rate-Limit-Reset"); v != "" {
		if reset, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.rateReset = time.Unix(reset, 0)
		}
	}
}

// request performs one authenticated call and maps the outcome onto the
// error taxonomy. A 404 is returned as *NotFoundError; GetCurrentRide
// translates that into the no-active-ride result.
func (c *Client) request(ctx context.Context, method, endpoint string, query url.Values) (json.RawMessage, error) {
	if err := c.checkBudget(); err != nil {
		observability.APICallsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
		return nil, err
	}

	token, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", "en_US")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("Request failed", zap.String("endpoint", endpoint), zap.Error(err))
		observability.APICallsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &TransientNetworkError{Err: err}
	}
	defer resp.Body.Close()

	c.updateBudgetFromHeaders(resp.Header)
	observability.APICallsTotal.WithLabelValues(endpoint, statusClass(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &TransientNetworkError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &AuthenticationError{StatusCode: resp.StatusCode, Body: string(body)}
	case resp.StatusCode == http.StatusTooManyRequests:
		c.mu.Lock()
		reset := c.rateReset
		c.mu.Unlock()
		return nil, &RateLimitError{ResetAt: reset}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{Endpoint: endpoint}
	case resp.StatusCode >= 400:
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, body)}
	}

	return body, nil
}

// errorMessage pulls the API's message field out of an error body when one
// is present.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return fmt.Sprintf("HTTP %d", status)
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}
