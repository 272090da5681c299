package gcpauth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
)

// AssertionOption customizes a single signed assertion.
type AssertionOption func(*assertionParams)

type assertionParams struct {
	Subject string
}

// WithSubject sets the "sub" claim, used for domain-wide delegation.
func WithSubject(email string) AssertionOption {
	return func(p *assertionParams) {
		p.Subject = strings.TrimSpace(email)
	}
}

// SignAssertion builds and signs a JWT-bearer assertion for the credential and scope.
// The returned claims are the exact payload that was signed.
func (a *Acquirer) SignAssertion(cred *ServiceAccountCredential, scope Scope, opts ...AssertionOption) (string, *AssertionClaims, error) {
	if err := cred.Validate(); err != nil {
		return "", nil, err
	}
	key, err := parsePrivateKey(cred.PrivateKey)
	if err != nil {
		return "", nil, err
	}

	var params assertionParams
	for _, opt := range opts {
		opt(&params)
	}

	issuedAt := a.now().Unix()
	claims := &AssertionClaims{
		Issuer:    strings.TrimSpace(cred.ClientEmail),
		Subject:   params.Subject,
		Scope:     scope,
		Audience:  a.tokenURL,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt + int64(AssertionLifetime/time.Second),
	}

	signed, err := signClaims(claims, key, strings.TrimSpace(cred.PrivateKeyID))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

func parsePrivateKey(pemData string) (jwk.Key, error) {
	key, err := jwk.ParseKey([]byte(pemData), jwk.WithPEM(true))
	if err != nil {
		return nil, newError(ErrCodeInvalidPrivateKey, err)
	}
	if _, ok := key.(jwk.RSAPrivateKey); !ok {
		return nil, newError(ErrCodeInvalidPrivateKey, fmt.Errorf("expected RSA private key, got %s", key.KeyType()))
	}
	return key, nil
}

func signClaims(claims *AssertionClaims, key jwk.Key, keyID string) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", newError(ErrCodeSigningFailed, err)
	}

	headers := jws.NewHeaders()
	if err := headers.Set(jws.TypeKey, "JWT"); err != nil {
		return "", newError(ErrCodeSigningFailed, err)
	}
	if keyID != "" {
		if err := headers.Set(jws.KeyIDKey, keyID); err != nil {
			return "", newError(ErrCodeSigningFailed, err)
		}
	}

	signed, err := jws.Sign(payload, jws.WithKey(jwa.RS256, key, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return "", newError(ErrCodeSigningFailed, err)
	}
	return string(signed), nil
}
