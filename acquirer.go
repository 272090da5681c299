package gcpauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/oauth2"
)

const (
	jwtBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	maxResponseBytes   = 4 << 20
)

var defaultAcquirer = NewAcquirer(AcquirerConfig{})

// AcquireAccessToken exchanges a freshly signed assertion for an access token at
// Google's token endpoint using http.DefaultClient.
func AcquireAccessToken(ctx context.Context, cred *ServiceAccountCredential, scope Scope) (string, error) {
	return defaultAcquirer.AcquireAccessToken(ctx, cred, scope)
}

// Acquirer mints access tokens with the OAuth 2.0 JWT-bearer grant.
// It keeps no per-call state: every call signs a new assertion and performs one exchange.
// Deadlines and cancellation come only from the caller's context.
type Acquirer struct {
	tokenURL string
	client   *http.Client
	now      func() time.Time
	logger   logr.Logger
}

// AccessToken is a token returned by the token endpoint.
type AccessToken struct {
	Value     string
	TokenType string
	ExpiresIn time.Duration
	Expiry    time.Time
}

// OAuth2 converts the token for use with golang.org/x/oauth2.
func (t *AccessToken) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: t.Value,
		TokenType:   t.TokenType,
		Expiry:      t.Expiry,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// NewAcquirer constructs an Acquirer from the supplied configuration.
func NewAcquirer(cfg AcquirerConfig) *Acquirer {
	cfg.normalize()
	return &Acquirer{
		tokenURL: cfg.TokenURL,
		client:   cfg.HTTPClient,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
}

// TokenURL returns the endpoint assertions are exchanged at.
func (a *Acquirer) TokenURL() string {
	return a.tokenURL
}

// AcquireAccessToken returns the bearer token for the credential and scope.
func (a *Acquirer) AcquireAccessToken(ctx context.Context, cred *ServiceAccountCredential, scope Scope) (string, error) {
	tok, err := a.Exchange(ctx, cred, scope)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

// Exchange signs an assertion and trades it for an access token.
//
// Credential and key problems are reported before any network I/O. A response without
// access_token yields ErrCodeTokenExchangeFailed carrying the raw body. Transport errors
// are returned as produced by the HTTP client.
func (a *Acquirer) Exchange(ctx context.Context, cred *ServiceAccountCredential, scope Scope, opts ...AssertionOption) (*AccessToken, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	assertion, claims, err := a.SignAssertion(cred, scope, opts...)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrantType)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	logger := a.logger.WithValues("client_email", claims.Issuer, "scope", string(scope))
	logger.V(1).Info("exchanging assertion", "token_url", a.tokenURL)

	resp, err := a.client.Do(req)
	if err != nil {
		logger.V(1).Info("token request failed", "error", err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.V(1).Info("token response is not JSON", "status", resp.StatusCode, "error", err.Error())
		return nil, exchangeFailed(resp.StatusCode, body, fmt.Errorf("decode token response: %w", err))
	}
	if payload.AccessToken == "" {
		logger.V(1).Info("token response missing access_token", "status", resp.StatusCode)
		return nil, exchangeFailed(resp.StatusCode, body, errors.New("response has no access_token"))
	}

	expiresIn := time.Duration(payload.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = AssertionLifetime
	}
	logger.V(1).Info("access token issued", "expires_in", expiresIn.String())
	return &AccessToken{
		Value:     payload.AccessToken,
		TokenType: payload.TokenType,
		ExpiresIn: expiresIn,
		Expiry:    a.now().Add(expiresIn),
	}, nil
}

// TokenSource returns an oauth2.TokenSource that performs a fresh exchange on every
// Token call. Wrap it with oauth2.ReuseTokenSource, or use TokenCache, to reuse tokens.
func (a *Acquirer) TokenSource(ctx context.Context, cred *ServiceAccountCredential, scope Scope, opts ...AssertionOption) oauth2.TokenSource {
	return &exchangeTokenSource{
		ctx:      ctx,
		acquirer: a,
		cred:     cloneCredential(cred),
		scope:    scope,
		opts:     append([]AssertionOption(nil), opts...),
	}
}

type exchangeTokenSource struct {
	ctx      context.Context
	acquirer *Acquirer
	cred     *ServiceAccountCredential
	scope    Scope
	opts     []AssertionOption
}

func (s *exchangeTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.acquirer.Exchange(s.ctx, s.cred, s.scope, s.opts...)
	if err != nil {
		return nil, err
	}
	return tok.OAuth2(), nil
}

func cloneCredential(cred *ServiceAccountCredential) *ServiceAccountCredential {
	if cred == nil {
		return nil
	}
	out := *cred
	return &out
}
