package gcpauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/api/option"
)

func newTestInspector(t *testing.T, handler http.HandlerFunc) *Inspector {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	inspector, err := NewInspector(context.Background(),
		option.WithEndpoint(server.URL+"/"),
		option.WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewInspector: %v", err)
	}
	return inspector
}

func TestInspector_Inspect(t *testing.T) {
	var gotToken string
	inspector := newTestInspector(t, func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("access_token")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"issued_to": "104857261538",
			"audience": "104857261538",
			"email": "deployer@tenant-project.iam.gserviceaccount.com",
			"verified_email": true,
			"scope": "https://www.googleapis.com/auth/cloud-platform https://www.googleapis.com/auth/logging.read",
			"expires_in": 3542
		}`))
	})

	info, err := inspector.Inspect(context.Background(), "ya29.test-token")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if gotToken != "ya29.test-token" {
		t.Fatalf("unexpected access_token parameter %q", gotToken)
	}

	want := &TokenInfo{
		Email:         testClientEmail,
		Audience:      "104857261538",
		IssuedTo:      "104857261538",
		Scopes:        []Scope{ScopeCloudPlatform, ScopeLoggingRead},
		ExpiresIn:     3542 * time.Second,
		VerifiedEmail: true,
	}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Fatalf("token info mismatch (-want +got):\n%s", diff)
	}
	if !info.HasScope(ScopeLoggingRead) || info.HasScope(ScopeStorageReadOnly) {
		t.Fatalf("unexpected scope checks for %v", info.Scopes)
	}
}

func TestInspector_InvalidToken(t *testing.T) {
	const body = `{"error":"invalid_token","error_description":"Invalid Value"}`
	inspector := newTestInspector(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(body))
	})

	_, err := inspector.Inspect(context.Background(), "revoked")
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if e.Code != ErrCodeInspectionFailed || e.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected error: %+v", e)
	}
	if e.Detail != body {
		t.Fatalf("expected raw body in detail, got %q", e.Detail)
	}

	if _, err := inspector.Inspect(context.Background(), " "); !errors.As(err, &e) || e.Code != ErrCodeInspectionFailed {
		t.Fatalf("expected error for empty token, got %v", err)
	}
}
