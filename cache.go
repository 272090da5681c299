package gcpauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/oauth2"
)

// TokenSourceFactory allows callers to override how per-key token sources are built.
type TokenSourceFactory func(context.Context, *ServiceAccountCredential, Scope, ...AssertionOption) oauth2.TokenSource

// TokenCacheConfig defines how cached tokens are minted.
type TokenCacheConfig struct {
	Acquirer *Acquirer
	Factory  TokenSourceFactory
}

// TokenCache reuses access tokens until they are close to expiry.
// Entries are keyed by (client email, key id, key fingerprint, subject, scope).
// Acquirer never caches; use TokenCache when a caller wants reuse.
type TokenCache struct {
	mu      sync.RWMutex
	factory TokenSourceFactory
	entries map[cacheKey]*tokenSourceEntry
}

type cacheKey struct {
	ClientEmail string
	KeyID       string
	Fingerprint string
	Subject     string
	Scope       Scope
}

type tokenSourceEntry struct {
	source oauth2.TokenSource
}

// NewTokenCache constructs a TokenCache. A nil Acquirer uses the package default.
func NewTokenCache(cfg TokenCacheConfig) *TokenCache {
	factory := cfg.Factory
	if factory == nil {
		acquirer := cfg.Acquirer
		if acquirer == nil {
			acquirer = defaultAcquirer
		}
		factory = acquirer.TokenSource
	}
	return &TokenCache{
		factory: factory,
		entries: make(map[cacheKey]*tokenSourceEntry),
	}
}

// Token returns a cached access token or exchanges a new assertion.
func (c *TokenCache) Token(ctx context.Context, cred *ServiceAccountCredential, scope Scope, opts ...AssertionOption) (string, error) {
	if err := cred.Validate(); err != nil {
		return "", err
	}

	var params assertionParams
	for _, opt := range opts {
		opt(&params)
	}
	key := cacheKey{
		ClientEmail: strings.ToLower(strings.TrimSpace(cred.ClientEmail)),
		KeyID:       cred.PrivateKeyID,
		Fingerprint: fingerprint(cred.PrivateKey),
		Subject:     params.Subject,
		Scope:       scope,
	}

	entry := c.getOrCreate(ctx, key, cred, scope, opts)
	tok, err := entry.source.Token()
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("empty access token returned")
	}
	return tok.AccessToken, nil
}

// Invalidate drops every cached token, for example after a 401 from a Google API.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]*tokenSourceEntry)
}

// Len reports the number of cached token sources.
func (c *TokenCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *TokenCache) getOrCreate(ctx context.Context, key cacheKey, cred *ServiceAccountCredential, scope Scope, opts []AssertionOption) *tokenSourceEntry {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return entry
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok = c.entries[key]; ok {
		return entry
	}

	ts := c.factory(persistentContext(ctx), cloneCredential(cred), scope, opts...)
	entry = &tokenSourceEntry{source: oauth2.ReuseTokenSource(nil, ts)}
	c.entries[key] = entry
	return entry
}

func fingerprint(privateKey string) string {
	sum := sha256.Sum256([]byte(privateKey))
	return hex.EncodeToString(sum[:8])
}

// persistentContext keeps request-scoped values but drops cancellation, so a cached
// token source keeps working after the request that created it has finished.
func persistentContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
