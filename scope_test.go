package gcpauth

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestJoinScopes(t *testing.T) {
	got := JoinScopes(ScopeCloudPlatform, "  ", ScopeLoggingRead)
	want := Scope("https://www.googleapis.com/auth/cloud-platform https://www.googleapis.com/auth/logging.read")
	if got != want {
		t.Fatalf("unexpected joined scope: %q", got)
	}
	if diff := cmp.Diff([]Scope{ScopeCloudPlatform, ScopeLoggingRead}, got.Split()); diff != "" {
		t.Fatalf("split mismatch (-want +got):\n%s", diff)
	}
	if JoinScopes() != "" {
		t.Fatal("expected empty scope")
	}
	if Scope("").Split() != nil {
		t.Fatal("expected nil split for empty scope")
	}
}
