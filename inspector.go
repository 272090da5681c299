package gcpauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// TokenInfo describes an access token as reported by Google's tokeninfo endpoint.
type TokenInfo struct {
	Email         string
	Audience      string
	IssuedTo      string
	Scopes        []Scope
	ExpiresIn     time.Duration
	VerifiedEmail bool
}

// HasScope reports whether the token was granted the given scope.
func (i *TokenInfo) HasScope(scope Scope) bool {
	for _, s := range i.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Inspector looks up issued access tokens, for example to confirm that a freshly
// minted token carries the scopes a deployment needs.
type Inspector struct {
	service *oauth2api.Service
}

// NewInspector creates an Inspector. Without options it calls the public endpoint
// anonymously, since tokeninfo authenticates through the token being inspected.
func NewInspector(ctx context.Context, opts ...option.ClientOption) (*Inspector, error) {
	clientOpts := append([]option.ClientOption{option.WithoutAuthentication()}, opts...)
	service, err := oauth2api.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create oauth2 service: %w", err)
	}
	return &Inspector{service: service}, nil
}

// Inspect returns the tokeninfo for an access token.
func (i *Inspector) Inspect(ctx context.Context, accessToken string) (*TokenInfo, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, newError(ErrCodeInspectionFailed, errors.New("access token is empty"))
	}

	info, err := i.service.Tokeninfo().AccessToken(accessToken).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			e := newError(ErrCodeInspectionFailed, err)
			e.StatusCode = apiErr.Code
			e.Detail = apiErr.Body
			return nil, e
		}
		return nil, err
	}

	return &TokenInfo{
		Email:         info.Email,
		Audience:      info.Audience,
		IssuedTo:      info.IssuedTo,
		Scopes:        Scope(info.Scope).Split(),
		ExpiresIn:     time.Duration(info.ExpiresIn) * time.Second,
		VerifiedEmail: info.VerifiedEmail,
	}, nil
}
