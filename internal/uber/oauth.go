package uber

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erbarraud/ha-uber-ride-tracker/internal/clock"
	"github.com/erbarraud/ha-uber-ride-tracker/internal/observability"
)

// OAuth2 endpoints for the Uber riders API.
const (
	DefaultAuthorizeURL = "https://login.uber.com/oauth/v2/authorize"
	DefaultTokenURL     = "https://login.uber.com/oauth/v2/token"
)

const (
	// Tokens are treated as expired this long before their actual expiry.
	tokenExpiryMargin = 5 * time.Minute

	// Fallback when the token response omits expires_in.
	defaultExpiresIn = 3600
)

// Token is the OAuth2 access/refresh token pair held by the TokenManager.
// ExpiresAt is absolute so the pair survives a round trip through the token
// store.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether the token exists and its expiry, minus the safety
// margin, is still ahead of now.
func (t Token) Valid(now time.Time) bool {
	if t.AccessToken == "" {
		return false
	}
	return now.Before(t.ExpiresAt.Add(-tokenExpiryMargin))
}

// OAuthConfig carries the client credentials and endpoint overrides for the
// TokenManager. Endpoints default to the production Uber URLs.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthorizeURL string
	TokenURL     string
	HTTPClient   *http.Client
}

// TokenManager owns the OAuth2 token pair and refreshes it when stale.
// Authentication failures are never retried here; they propagate so the
// caller can trigger re-authorization. Persistence is the caller's job via
// the OnChange hook.
type TokenManager struct {
	cfg    OAuthConfig
	http   *http.Client
	clock  clock.Clock
	logger *zap.Logger

	mu       sync.Mutex
	token    Token
	onChange func(Token)
}

// NewTokenManager creates a TokenManager seeded with a previously persisted
// token pair (zero value when none exists yet).
func NewTokenManager(cfg OAuthConfig, initial Token, clk clock.Clock, logger *zap.Logger) *TokenManager {
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = DefaultAuthorizeURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &TokenManager{
		cfg:    cfg,
		http:   httpClient,
		clock:  clk,
		logger: logger.Named("oauth"),
		token:  initial,
	}
}

// OnChange registers a hook invoked with the new token pair after every
// successful exchange or refresh. Used by the host to persist the pair.
func (m *TokenManager) OnChange(fn func(Token)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Snapshot returns a copy of the current token pair.
func (m *TokenManager) Snapshot() Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// HasToken reports whether any token pair is held at all.
func (m *TokenManager) HasToken() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token.AccessToken != "" || m.token.RefreshToken != ""
}

// EnsureValid returns a bearer token that is guaranteed not to be within the
// expiry margin, refreshing first when needed. Safe to call before every
// outbound request; repeated calls without time passing perform at most one
// refresh.
func (m *TokenManager) EnsureValid(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token.Valid(m.clock.Now()) {
		return m.token.AccessToken, nil
	}
	if err := m.refreshLocked(ctx); err != nil {
		return "", err
	}
	return m.token.AccessToken, nil
}

// Refresh exchanges the stored refresh token for a new token pair.
func (m *TokenManager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx)
}

func (m *TokenManager) refreshLocked(ctx context.Context) error {
	if m.token.RefreshToken == "" {
		return &AuthenticationError{Body: "no refresh token available, re-authorization required"}
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {m.token.RefreshToken},
	}
	if err := m.tokenRequestLocked(ctx, form); err != nil {
		return err
	}

	observability.TokenRefreshesTotal.Inc()
	m.logger.Debug("Refreshed access token",
		zap.Time("expires_at", m.token.ExpiresAt))
	return nil
}

// ExchangeCode performs the one-time exchange of an authorization code for
// the initial token pair. The code is supplied out-of-band by the operator
// after visiting the authorize URL.
func (m *TokenManager) ExchangeCode(ctx context.Context, code, redirectURI string) error {
	if redirectURI == "" {
		redirectURI = m.cfg.RedirectURI
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
	}
	if err := m.tokenRequestLocked(ctx, form); err != nil {
		return err
	}

	m.logger.Info("Authorization code exchanged for token pair",
		zap.Time("expires_at", m.token.ExpiresAt))
	return nil
}

// tokenRequestLocked POSTs the form-encoded grant to the token endpoint and
// updates the held token in place. Caller must hold m.mu.
func (m *TokenManager) tokenRequestLocked(ctx context.Context, form url.Values) error {
	form.Set("client_id", m.cfg.ClientID)
	form.Set("client_secret", m.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		return &TransientNetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &TransientNetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		m.logger.Error("Token request rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return &AuthenticationError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return &AuthenticationError{StatusCode: resp.StatusCode, Body: "malformed token response"}
	}

	m.token.AccessToken = payload.AccessToken
	// Some grants rotate the refresh token, some do not. Keep the old one
	// when the response omits it.
	if payload.RefreshToken != "" {
		m.token.RefreshToken = payload.RefreshToken
	}
	expiresIn := payload.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}
	m.token.ExpiresAt = m.clock.Now().Add(time.Duration(expiresIn) * time.Second)

	if m.onChange != nil {
		m.onChange(m.token)
	}
	return nil
}

// AuthorizeURL builds the URL the operator must visit to grant access. The
// state parameter is echoed back on the callback page.
func (m *TokenManager) AuthorizeURL(state string) string {
	params := url.Values{
		"client_id":     {m.cfg.ClientID},
		"redirect_uri":  {m.cfg.RedirectURI},
		"response_type": {"code"},
		"state":         {state},
	}
	return m.cfg.AuthorizeURL + "?" + params.Encode()
}
