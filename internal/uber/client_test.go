package uber

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erbarraud/ha-uber-ride-tracker/internal/clock"
)

// staticTokens is a TokenSource that always yields the same bearer token.
type staticTokens struct {
	token string
	err   error
}

func (s *staticTokens) EnsureValid(ctx context.Context) (string, error) {
	return s.token, s.err
}

func newTestClient(t *testing.T, serverURL string, clk clock.Clock) *Client {
	logger, _ := zap.NewDevelopment()
	return NewClient(serverURL, &staticTokens{token: "test-token"}, clk, logger)
}

func TestGetCurrentRideSendsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1.2/requests/current", r.URL.Path)
		w.Write([]byte(`{"request_id":"abc","status":"accepted"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, clock.NewMockClock(time.Now()))
	body, err := client.GetCurrentRide(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(body), "accepted")
}

func TestGetCurrentRideNoActiveRide(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"No current trip found"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, clock.NewMockClock(time.Now()))
	body, err := client.GetCurrentRide(context.Background())

	// A 404 on the current-ride endpoint means no active ride, not an error
	require.NoError(t, err)
	assert.Nil(t, body)
}

func TestReceiptNotFoundIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, clock.NewMockClock(time.Now()))
	_, err := client.GetRideReceipt(context.Background(), "abc")
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "401 maps to AuthenticationError",
			status: http.StatusUnauthorized,
			body:   `{"message":"This endpoint requires at least one of the following scopes"}`,
			check: func(t *testing.T, err error) {
				assert.True(t, IsAuthenticationError(err))
			},
		},
		{
			name:   "429 maps to RateLimitError",
			status: http.StatusTooManyRequests,
			body:   `{}`,
			check: func(t *testing.T, err error) {
				assert.True(t, IsRateLimitError(err))
			},
		},
		{
			name:   "500 maps to APIError with the API's message",
			status: http.StatusInternalServerError,
			body:   `{"message":"Internal Server Error"}`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
				assert.Equal(t, "Internal Server Error", apiErr.Message)
			},
		},
		{
			name:   "422 with unparseable body falls back to the status code",
			status: http.StatusUnprocessableEntity,
			body:   `not json`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, "HTTP 422", apiErr.Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL, clock.NewMockClock(time.Now()))
			_, err := client.GetRideReceipt(context.Background(), "abc")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestTransientNetworkError(t *testing.T) {
	// Point at a server that is already closed
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newTestClient(t, server.URL, clock.NewMockClock(time.Now()))
	_, err := client.GetCurrentRide(context.Background())
	require.Error(t, err)

	var netErr *TransientNetworkError
	assert.ErrorAs(t, err, &netErr)
}

func TestRateBudgetFailsFastAndRecovers(t *testing.T) {
	mockClock := clock.NewMockClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	reset := mockClock.Now().Add(30 * time.Minute)

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		// Server reports the budget as exhausted
		w.Header().Set("X-Rate-Limit-Remaining", "0")
		w.Header().Set("X-Rate-Limit-Reset", strconv.FormatInt(reset.Unix(), 10))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, mockClock)

	// First call succeeds and learns the exhausted budget from the headers
	_, err := client.GetRideReceipt(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	// Second call fails fast without touching the network
	_, err = client.GetRideReceipt(context.Background(), "abc")
	require.Error(t, err)
	assert.True(t, IsRateLimitError(err))
	assert.Equal(t, int32(1), hits.Load())

	var rlErr *RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, reset.Unix(), rlErr.ResetAt.Unix())

	// Once the window elapses the budget resets and calls flow again
	mockClock.Advance(31 * time.Minute)
	_, err = client.GetRideReceipt(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestGetTripHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1.2/history", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "0", r.URL.Query().Get("offset"))
		w.Write([]byte(`{
			"count": 2,
			"history": [
				{"request_id":"r1","status":"completed","distance":3.2,"start_city":{"display_name":"San Francisco"}},
				{"request_id":"r2","status":"completed","distance":1.1}
			]
		}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, clock.NewMockClock(time.Now()))
	items, err := client.GetTripHistory(context.Background(), 5, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "r1", items[0].RequestID)
	assert.Equal(t, "San Francisco", items[0].StartCity.DisplayName)
	assert.Equal(t, 1.1, items[1].Distance)
}

func TestGetProfile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1.2/me", r.URL.Path)
		w.Write([]byte(`{"first_name":"Ada","last_name":"Lovelace","uuid":"u-1"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, clock.NewMockClock(time.Now()))
	profile, err := client.GetProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ada", profile.FirstName)
	assert.Equal(t, "u-1", profile.UUID)
}
