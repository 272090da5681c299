package gcpauth

import "time"

// AssertionClaims is the payload of a JWT-bearer assertion.
type AssertionClaims struct {
	Issuer    string `json:"iss"`
	Subject   string `json:"sub,omitempty"`
	Scope     Scope  `json:"scope"`
	Audience  string `json:"aud"`
	ExpiresAt int64  `json:"exp"`
	IssuedAt  int64  `json:"iat"`
}

// Lifetime returns the validity window of the assertion.
func (c AssertionClaims) Lifetime() time.Duration {
	return time.Duration(c.ExpiresAt-c.IssuedAt) * time.Second
}
