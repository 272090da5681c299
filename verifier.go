package gcpauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Verifier checks JWT-bearer assertions against the public keys each service account
// publishes. It is the receiving side of SignAssertion, for emulators and diagnostics.
type Verifier struct {
	mu       sync.RWMutex
	accounts map[string]*accountState
	logger   logr.Logger
	cancel   context.CancelFunc
}

type accountState struct {
	cfg   AccountConfig
	cache *jwk.Cache
}

// NewVerifier builds a verifier from the given configuration.
// Call Close to stop background JWKS refreshes.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	index, err := cfg.accountIndex()
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	v := &Verifier{
		accounts: make(map[string]*accountState, len(index)),
		logger:   logger,
		cancel:   cancel,
	}
	for email, accountCfg := range index {
		cache := jwk.NewCache(ctx)
		httpClient := &http.Client{
			Timeout: accountCfg.HTTPTimeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
		}
		if err := cache.Register(
			accountCfg.JWKSURL,
			jwk.WithMinRefreshInterval(accountCfg.MinRefresh),
			jwk.WithHTTPClient(httpClient),
		); err != nil {
			cancel()
			return nil, fmt.Errorf("register jwks for %q: %w", email, err)
		}
		v.accounts[email] = &accountState{cfg: accountCfg, cache: cache}
	}
	return v, nil
}

// Close stops the background refresh of every registered JWKS.
func (v *Verifier) Close() {
	v.cancel()
}

// Warmup fetches the JWKS of the given service account.
func (v *Verifier) Warmup(ctx context.Context, clientEmail string) error {
	state, ok := v.lookupAccount(clientEmail)
	if !ok {
		return newError(ErrCodeAccountNotRegistered, fmt.Errorf("service account %q not found", clientEmail))
	}
	refreshCtx, cancel := context.WithTimeout(ctx, state.cfg.HTTPTimeout)
	defer cancel()
	if _, err := state.cache.Refresh(refreshCtx, state.cfg.JWKSURL); err != nil {
		return newError(ErrCodeJWKSUnavailable, err)
	}
	return nil
}

// Verify checks the signature, issuer, audience, time window and lifetime of an assertion.
func (v *Verifier) Verify(ctx context.Context, assertion string) (*AssertionClaims, error) {
	assertion = strings.TrimSpace(assertion)
	if assertion == "" {
		return nil, newError(ErrCodeInvalidAssertion, errors.New("assertion is empty"))
	}

	msg, err := jws.Parse([]byte(assertion))
	if err != nil {
		return nil, newError(ErrCodeInvalidAssertion, err)
	}
	var unverified AssertionClaims
	if err := json.Unmarshal(msg.Payload(), &unverified); err != nil {
		return nil, newError(ErrCodeInvalidAssertion, fmt.Errorf("decode payload: %w", err))
	}

	state, ok := v.lookupAccount(unverified.Issuer)
	if !ok {
		return nil, newError(ErrCodeAccountNotRegistered, fmt.Errorf("service account %q not found", unverified.Issuer))
	}

	keySet, err := state.cache.Get(ctx, state.cfg.JWKSURL)
	if err != nil {
		return nil, newError(ErrCodeJWKSUnavailable, err)
	}

	parsed, err := jwt.Parse(
		[]byte(assertion),
		jwt.WithKeySet(keySet, jws.WithRequireKid(false), jws.WithInferAlgorithmFromKey(true)),
		jwt.WithValidate(false),
	)
	if err != nil {
		return nil, newError(ErrCodeInvalidAssertion, err)
	}

	validateOpts := []jwt.ValidateOption{
		jwt.WithAcceptableSkew(state.cfg.ClockSkew),
		jwt.WithIssuer(state.cfg.ClientEmail),
		jwt.WithAudience(state.cfg.Audience),
		jwt.WithRequiredClaim(jwt.IssuedAtKey),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
	}
	if err := jwt.Validate(parsed, validateOpts...); err != nil {
		v.logger.V(1).Info("assertion rejected", "client_email", state.cfg.ClientEmail, "error", err.Error())
		switch {
		case errors.Is(err, jwt.ErrInvalidIssuer()):
			return nil, newError(ErrCodeInvalidIssuer, err)
		case errors.Is(err, jwt.ErrInvalidAudience()):
			return nil, newError(ErrCodeInvalidAudience, err)
		case errors.Is(err, jwt.ErrTokenExpired()):
			return nil, newError(ErrCodeAssertionExpired, err)
		case errors.Is(err, jwt.ErrTokenNotYetValid()), errors.Is(err, jwt.ErrInvalidIssuedAt()):
			return nil, newError(ErrCodeAssertionNotYetValid, err)
		default:
			return nil, newError(ErrCodeInvalidAssertion, err)
		}
	}

	claims := claimsFromToken(parsed)
	if claims.Lifetime() > AssertionLifetime {
		return nil, newError(ErrCodeInvalidAssertion, fmt.Errorf("lifetime %s exceeds %s", claims.Lifetime(), AssertionLifetime))
	}
	return claims, nil
}

func (v *Verifier) lookupAccount(email string) (*accountState, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, false
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	state, ok := v.accounts[email]
	return state, ok
}

func claimsFromToken(token jwt.Token) *AssertionClaims {
	claims := &AssertionClaims{
		Issuer:    token.Issuer(),
		Subject:   token.Subject(),
		IssuedAt:  token.IssuedAt().Unix(),
		ExpiresAt: token.Expiration().Unix(),
	}
	if aud := token.Audience(); len(aud) > 0 {
		claims.Audience = aud[0]
	}
	if v, ok := token.Get("scope"); ok {
		if s, ok := v.(string); ok {
			claims.Scope = Scope(s)
		}
	}
	return claims
}
