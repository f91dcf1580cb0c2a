package trackmania

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
	"github.com/riskibarqy/tm-alerts/internal/platform/resilience"
)

const (
	defaultTokenTTL = 55 * time.Minute
	tokenExpirySkew = time.Minute
	renewTimeout    = 30 * time.Second
)

// Token is an access token with an optional refresh token.
type Token struct {
	Access    string
	Refresh   string
	ExpiresAt time.Time
}

func (t Token) validAt(now time.Time) bool {
	return t.Access != "" && now.Add(tokenExpirySkew).Before(t.ExpiresAt)
}

// Authenticator talks to one auth domain.
type Authenticator interface {
	Login(ctx context.Context) (Token, error)
	Refresh(ctx context.Context, refreshToken string) (Token, error)
	Authorize(req *http.Request, accessToken string)
}

// TokenStore owns the credentials of one auth domain. Concurrent callers that
// need a new token share one in-flight renewal.
type TokenStore struct {
	name   string
	auth   Authenticator
	logger *logging.Logger
	now    func() time.Time

	mu     sync.RWMutex
	token  Token
	flight resilience.SingleFlight[Token]
}

func NewTokenStore(name string, auth Authenticator, logger *logging.Logger) *TokenStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &TokenStore{
		name:   name,
		auth:   auth,
		logger: logger,
		now:    time.Now,
	}
}

// Current returns a usable token, logging in or refreshing when the held one
// is missing or about to expire.
func (s *TokenStore) Current(ctx context.Context) (Token, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token.validAt(s.now()) {
		return token, nil
	}
	return s.Renew(ctx, token, false)
}

// Renew replaces stale. When another caller already replaced it the newer
// token is returned without a call. forceLogin skips the refresh grant.
// The shared renewal is not tied to any one caller's ctx; a caller whose ctx
// ends stops waiting for it.
func (s *TokenStore) Renew(ctx context.Context, stale Token, forceLogin bool) (Token, error) {
	type result struct {
		token  Token
		err    error
		shared bool
	}
	done := make(chan result, 1)
	go func() {
		token, err, shared := s.flight.Do(s.name, func() (Token, error) {
			renewCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), renewTimeout)
			defer cancel()
			return s.renew(renewCtx, stale, forceLogin)
		})
		done <- result{token: token, err: err, shared: shared}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		return Token{}, fmt.Errorf("renew %s token: %w", s.name, ctx.Err())
	}
	if r.err != nil {
		return Token{}, fmt.Errorf("renew %s token: %w", s.name, r.err)
	}
	if r.shared {
		s.logger.DebugContext(ctx, "reused in-flight token renewal", "auth_domain", s.name)
	}
	return r.token, nil
}

func (s *TokenStore) renew(ctx context.Context, stale Token, forceLogin bool) (Token, error) {
	s.mu.RLock()
	held := s.token
	s.mu.RUnlock()
	if held.Access != "" && held.Access != stale.Access && held.validAt(s.now()) {
		return held, nil
	}

	if !forceLogin && held.Refresh != "" {
		refreshed, err := s.auth.Refresh(ctx, held.Refresh)
		if err == nil {
			s.store(refreshed)
			return refreshed, nil
		}
		s.logger.WarnContext(ctx, "token refresh failed, logging in again", "auth_domain", s.name, "error", err)
	}

	fresh, err := s.auth.Login(ctx)
	if err != nil {
		return Token{}, err
	}
	s.store(fresh)
	return fresh, nil
}

func (s *TokenStore) store(token Token) {
	if token.ExpiresAt.IsZero() {
		token.ExpiresAt = s.now().Add(defaultTokenTTL)
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// NadeoAuth is the leaderboard credential: a dedicated server or service
// account exchanged for an audience-scoped token pair.
type NadeoAuth struct {
	HTTPClient   *http.Client
	BaseURL      string
	AccountLogin string
	Password     string
	Audience     string
	UserAgent    string
}

var _ Authenticator = (*NadeoAuth)(nil)

type nadeoTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (a *NadeoAuth) Login(ctx context.Context) (Token, error) {
	body, err := sonic.Marshal(map[string]string{"audience": a.Audience})
	if err != nil {
		return Token{}, fmt.Errorf("marshal login body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(a.BaseURL, "/")+"/v2/authentication/token/basic", strings.NewReader(string(body)))
	if err != nil {
		return Token{}, fmt.Errorf("build login request: %w", err)
	}
	req.SetBasicAuth(a.AccountLogin, a.Password)
	req.Header.Set("content-type", "application/json")
	return a.exchange(req)
}

func (a *NadeoAuth) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(a.BaseURL, "/")+"/v2/authentication/token/refresh", nil)
	if err != nil {
		return Token{}, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("authorization", "nadeo_v1 t="+refreshToken)
	return a.exchange(req)
}

func (a *NadeoAuth) Authorize(req *http.Request, accessToken string) {
	req.Header.Set("authorization", "nadeo_v1 t="+accessToken)
}

func (a *NadeoAuth) exchange(req *http.Request) (Token, error) {
	if a.UserAgent != "" {
		req.Header.Set("user-agent", a.UserAgent)
	}
	req.Header.Set("accept", "application/json")

	raw, err := doAuthRequest(httpClientOrDefault(a.HTTPClient), req)
	if err != nil {
		return Token{}, err
	}
	var payload nadeoTokenResponse
	if err := sonic.Unmarshal(raw, &payload); err != nil {
		return Token{}, fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return Token{}, fmt.Errorf("token response without access token")
	}
	return Token{
		Access:    payload.AccessToken,
		Refresh:   payload.RefreshToken,
		ExpiresAt: jwtExpiry(payload.AccessToken),
	}, nil
}

// OAuthClientCredentials is the account-naming credential. The grant has no
// refresh token, so Refresh issues a new one.
type OAuthClientCredentials struct {
	HTTPClient   *http.Client
	BaseURL      string
	ClientID     string
	ClientSecret string
	now          func() time.Time
}

type oauthTokenResponse struct {
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	AccessToken string `json:"access_token"`
}

func (o *OAuthClientCredentials) Login(ctx context.Context) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", o.ClientID)
	form.Set("client_secret", o.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(o.BaseURL, "/")+"/api/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("build oauth request: %w", err)
	}
	req.Header.Set("content-type", "application/x-www-form-urlencoded")
	req.Header.Set("accept", "application/json")

	raw, err := doAuthRequest(httpClientOrDefault(o.HTTPClient), req)
	if err != nil {
		return Token{}, err
	}
	var payload oauthTokenResponse
	if err := sonic.Unmarshal(raw, &payload); err != nil {
		return Token{}, fmt.Errorf("decode oauth response: %w", err)
	}
	if payload.AccessToken == "" {
		return Token{}, fmt.Errorf("oauth response without access token")
	}

	now := time.Now
	if o.now != nil {
		now = o.now
	}
	expiresAt := now().Add(defaultTokenTTL)
	if payload.ExpiresIn > 0 {
		expiresAt = now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return Token{Access: payload.AccessToken, ExpiresAt: expiresAt}, nil
}

func (o *OAuthClientCredentials) Refresh(ctx context.Context, _ string) (Token, error) {
	return o.Login(ctx)
}

func (o *OAuthClientCredentials) Authorize(req *http.Request, accessToken string) {
	req.Header.Set("authorization", "Bearer "+accessToken)
}

func doAuthRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send auth request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read auth response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("auth status=%d body=%s", resp.StatusCode, abbreviateBody(raw))
	}
	return raw, nil
}

// jwtExpiry reads the exp claim without verifying the signature.
func jwtExpiry(token string) time.Time {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}
	}
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := sonic.Unmarshal(payload, &claims); err != nil || claims.Exp <= 0 {
		return time.Time{}
	}
	return time.Unix(claims.Exp, 0).UTC()
}

func httpClientOrDefault(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: 15 * time.Second}
}
