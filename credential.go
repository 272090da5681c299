package gcpauth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

const serviceAccountType = "service_account"

// ServiceAccountCredential holds the fields of a Google service-account key that are
// needed to sign a JWT-bearer assertion.
type ServiceAccountCredential struct {
	Type         string `json:"type,omitempty"`
	ProjectID    string `json:"project_id,omitempty"`
	PrivateKeyID string `json:"private_key_id,omitempty"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri,omitempty"`
}

// ParseCredentialJSON decodes a service-account key file and checks the required fields.
func ParseCredentialJSON(data []byte) (*ServiceAccountCredential, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, newError(ErrCodeInvalidCredentialShape, errors.New("credential must be a JSON object"))
	}
	var cred ServiceAccountCredential
	if err := json.Unmarshal(trimmed, &cred); err != nil {
		return nil, newError(ErrCodeInvalidCredentialShape, err)
	}
	if cred.Type != "" && cred.Type != serviceAccountType {
		return nil, newError(ErrCodeInvalidCredentialShape, fmt.Errorf("unsupported credential type %q", cred.Type))
	}
	if err := cred.Validate(); err != nil {
		return nil, err
	}
	return &cred, nil
}

// LoadCredentialFile reads and parses a service-account key file from disk.
func LoadCredentialFile(path string) (*ServiceAccountCredential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credential file: %w", err)
	}
	return ParseCredentialJSON(data)
}

// Validate reports the first missing required field.
func (c *ServiceAccountCredential) Validate() error {
	switch {
	case c == nil:
		return newError(ErrCodeInvalidCredentialShape, errors.New("credential is nil"))
	case strings.TrimSpace(c.ClientEmail) == "":
		return missingField("client_email")
	case strings.TrimSpace(c.PrivateKey) == "":
		return missingField("private_key")
	}
	return nil
}
