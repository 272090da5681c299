package gcpauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

const (
	// DefaultTokenURL is Google's OAuth 2.0 token endpoint. It is also the assertion audience.
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
	// AssertionLifetime is the fixed validity window of a signed assertion.
	AssertionLifetime = time.Hour

	defaultJWKSBaseURL = "https://www.googleapis.com/service_accounts/v1/jwk/"
	defaultClockSkew   = 30 * time.Second
	defaultMinRefresh  = 15 * time.Minute
	defaultHTTPTimeout = 5 * time.Second
)

// AcquirerConfig controls how assertions are signed and exchanged.
// The zero value targets Google's token endpoint with http.DefaultClient.
type AcquirerConfig struct {
	TokenURL   string
	HTTPClient *http.Client
	Now        func() time.Time
	Logger     logr.Logger
}

func (c *AcquirerConfig) normalize() {
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger.GetSink() == nil {
		c.Logger = logr.Discard()
	}
}

// VerifierConfig describes the service accounts whose assertions are accepted.
type VerifierConfig struct {
	Accounts []AccountConfig
	Logger   logr.Logger
}

// AccountConfig contains verification parameters for one service account.
type AccountConfig struct {
	ClientEmail string
	JWKSURL     string
	Audience    string
	ClockSkew   time.Duration
	MinRefresh  time.Duration
	HTTPTimeout time.Duration
}

// normalize sets default values for optional fields.
func (c *AccountConfig) normalize() {
	c.ClientEmail = strings.ToLower(strings.TrimSpace(c.ClientEmail))
	if c.JWKSURL == "" {
		c.JWKSURL = defaultJWKSBaseURL + c.ClientEmail
	}
	if c.Audience == "" {
		c.Audience = DefaultTokenURL
	}
	if c.ClockSkew <= 0 {
		c.ClockSkew = defaultClockSkew
	}
	if c.MinRefresh <= 0 {
		c.MinRefresh = defaultMinRefresh
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
}

func (c AccountConfig) validate() error {
	if strings.TrimSpace(c.ClientEmail) == "" {
		return errors.New("client email is required")
	}
	return nil
}

// accountIndex returns the normalized configs keyed by lower-cased client email.
func (c VerifierConfig) accountIndex() (map[string]AccountConfig, error) {
	if len(c.Accounts) == 0 {
		return nil, errors.New("at least one service account must be configured")
	}
	index := make(map[string]AccountConfig, len(c.Accounts))
	for i, account := range c.Accounts {
		if err := account.validate(); err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
		clone := account
		clone.normalize()
		if _, exists := index[clone.ClientEmail]; exists {
			return nil, fmt.Errorf("duplicate service account %q", clone.ClientEmail)
		}
		index[clone.ClientEmail] = clone
	}
	return index, nil
}
