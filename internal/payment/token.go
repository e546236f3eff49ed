package payment

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/fills-ai/payments-api/internal/common"
	"github.com/fills-ai/payments-api/internal/config"
	"github.com/fills-ai/payments-api/internal/obs"
)

const (
	// DefaultTokenType is sent when the token endpoint omits token_type.
	DefaultTokenType = "O-Bearer"

	// tokenRefreshMargin is the minimum remaining lifetime for a cached token to be reused.
	tokenRefreshMargin = 60 * time.Second
)

// CachedToken is an access token together with its absolute expiry.
type CachedToken struct {
	Token     string
	Type      string
	ExpiresAt time.Time
}

// AuthorizationHeader renders the value for the Authorization header.
func (t CachedToken) AuthorizationHeader() string {
	kind := strings.TrimSpace(t.Type)
	if kind == "" {
		kind = DefaultTokenType
	}
	return kind + " " + t.Token
}

// usableAt reports whether the token has more than the refresh margin left.
func (t CachedToken) usableAt(now time.Time) bool {
	return t.Token != "" && t.ExpiresAt.Sub(now) > tokenRefreshMargin
}

// TokenCache is a single process-wide token slot. Reads and writes are atomic
// but a check followed by a refresh is not: two requests may both refresh and
// the last write wins.
type TokenCache struct {
	slot atomic.Pointer[CachedToken]
}

// Get returns the cached token when it is still usable at now.
func (c *TokenCache) Get(now time.Time) (CachedToken, bool) {
	tok := c.slot.Load()
	if tok == nil || !tok.usableAt(now) {
		return CachedToken{}, false
	}
	return *tok, true
}

// Set replaces the cached token.
func (c *TokenCache) Set(tok CachedToken) {
	c.slot.Store(&tok)
}

// Clear drops the cached token so the next lookup refreshes.
func (c *TokenCache) Clear() {
	c.slot.Store(nil)
}

// TokenProvider obtains access tokens through the OAuth client-credentials grant.
type TokenProvider struct {
	Cache  *TokenCache
	Client *http.Client
	Now    func() time.Time
}

// NewTokenProvider constructs a TokenProvider with its own cache.
func NewTokenProvider(client *http.Client) *TokenProvider {
	return &TokenProvider{Cache: &TokenCache{}, Client: client, Now: time.Now}
}

// AccessToken returns a cached token or exchanges the client credentials for a
// new one.
func (p *TokenProvider) AccessToken(ctx context.Context, cfg config.Gateway) (CachedToken, error) {
	now := p.now()
	if tok, ok := p.Cache.Get(now); ok {
		recordToken("cache", "hit")
		return tok, nil
	}

	tok, err := p.exchange(ctx, cfg, now)
	if err != nil {
		recordToken("upstream", "error")
		zerolog.Ctx(ctx).Warn().Err(err).Msg("phonepe_token_exchange_failed")
		return CachedToken{}, err
	}
	p.Cache.Set(tok)
	recordToken("upstream", "success")
	zerolog.Ctx(ctx).Info().Time("expires_at", tok.ExpiresAt).Msg("phonepe_token_refreshed")
	return tok, nil
}

// Invalidate clears the cache, typically after the gateway rejected a token.
func (p *TokenProvider) Invalidate() {
	if p != nil && p.Cache != nil {
		p.Cache.Clear()
	}
}

func (p *TokenProvider) exchange(ctx context.Context, cfg config.Gateway, now time.Time) (CachedToken, error) {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.OAuthURL,
		AuthStyle:    oauth2.AuthStyleInParams,
		EndpointParams: url.Values{
			"client_version": {cfg.ClientVersion},
		},
	}
	if p.Client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.Client)
	}

	start := time.Now()
	tok, err := cc.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			status := retrieveErr.Response.StatusCode
			obs.ObserveUpstream("oauth_token", status, time.Since(start))
			return CachedToken{}, common.UpstreamAuthError("failed to obtain access token", status, err).
				WithDetails(map[string]any{"raw": string(retrieveErr.Body)})
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			obs.ObserveUpstream("oauth_token", 0, time.Since(start))
			return CachedToken{}, transportError(common.KindUpstreamAuth, "token endpoint unreachable", err)
		}
		obs.ObserveUpstream("oauth_token", http.StatusOK, time.Since(start))
		return CachedToken{}, common.UpstreamAuthError("malformed token response", 0, err)
	}
	obs.ObserveUpstream("oauth_token", http.StatusOK, time.Since(start))

	return CachedToken{
		Token:     tok.AccessToken,
		Type:      tok.TokenType,
		ExpiresAt: tokenExpiry(tok, now),
	}, nil
}

func (p *TokenProvider) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// tokenExpiry prefers the absolute expires_at (epoch seconds) the gateway
// returns, then the expires_in derived expiry. A token with neither is treated
// as already expired so it is never reused.
func tokenExpiry(tok *oauth2.Token, now time.Time) time.Time {
	switch v := tok.Extra("expires_at").(type) {
	case float64:
		if v > 0 {
			return time.UnixMilli(int64(v * 1000))
		}
	case string:
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts
		}
	}
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	return now
}

func recordToken(source, result string) {
	if obs.TokenRequestsTotal != nil {
		obs.TokenRequestsTotal.WithLabelValues(source, result).Inc()
	}
}
