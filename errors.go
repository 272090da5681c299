package gcpauth

import "fmt"

// ErrorCode represents gcpauth error categories.
type ErrorCode string

const (
	ErrCodeInvalidCredentialShape ErrorCode = "invalid_credential_shape"
	ErrCodeMissingCredentialField ErrorCode = "missing_credential_field"
	ErrCodeInvalidPrivateKey      ErrorCode = "invalid_private_key"
	ErrCodeSigningFailed          ErrorCode = "signing_failed"
	ErrCodeTokenExchangeFailed    ErrorCode = "token_exchange_failed"
	ErrCodeInspectionFailed       ErrorCode = "token_inspection_failed"

	ErrCodeInvalidAssertion     ErrorCode = "invalid_assertion"
	ErrCodeAssertionExpired     ErrorCode = "assertion_expired"
	ErrCodeAssertionNotYetValid ErrorCode = "assertion_not_yet_valid"
	ErrCodeInvalidIssuer        ErrorCode = "invalid_issuer"
	ErrCodeInvalidAudience      ErrorCode = "invalid_audience"
	ErrCodeAccountNotRegistered ErrorCode = "account_not_registered"
	ErrCodeJWKSUnavailable      ErrorCode = "jwks_unavailable"
)

var errorMessages = map[ErrorCode]string{
	ErrCodeInvalidCredentialShape: "Invalid credential shape",
	ErrCodeMissingCredentialField: "Missing credential field",
	ErrCodeInvalidPrivateKey:      "Invalid private key",
	ErrCodeSigningFailed:          "Assertion signing failed",
	ErrCodeTokenExchangeFailed:    "Token exchange failed",
	ErrCodeInspectionFailed:       "Token inspection failed",
	ErrCodeInvalidAssertion:       "Invalid assertion",
	ErrCodeAssertionExpired:       "Assertion expired",
	ErrCodeAssertionNotYetValid:   "Assertion not yet valid",
	ErrCodeInvalidIssuer:          "Invalid issuer",
	ErrCodeInvalidAudience:        "Invalid audience",
	ErrCodeAccountNotRegistered:   "Service account not registered",
	ErrCodeJWKSUnavailable:        "JWKS unavailable",
}

// Error wraps gcpauth errors with a stable code and message.
//
// Field names the offending credential field for ErrCodeMissingCredentialField.
// Detail carries the raw response body returned by a remote endpoint.
type Error struct {
	Code       ErrorCode
	Message    string
	Field      string
	Detail     string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	base := e.Message
	if base == "" {
		base = string(e.Code)
	}
	if e.Field != "" {
		base = fmt.Sprintf("%s: %s", base, e.Field)
	}
	if e.StatusCode != 0 {
		base = fmt.Sprintf("%s (status %d)", base, e.StatusCode)
	}
	if e.Detail != "" {
		base = fmt.Sprintf("%s: %s", base, e.Detail)
	}
	if e.Err == nil {
		return base
	}
	return fmt.Sprintf("%s: %v", base, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, err error) *Error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = string(code)
	}
	return &Error{Code: code, Message: msg, Err: err}
}

func missingField(field string) error {
	e := newError(ErrCodeMissingCredentialField, nil)
	e.Field = field
	return e
}

func exchangeFailed(status int, body []byte, err error) error {
	e := newError(ErrCodeTokenExchangeFailed, err)
	e.StatusCode = status
	e.Detail = string(body)
	return e
}
