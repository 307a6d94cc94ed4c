package auth

import (
	"context"
	"testing"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{
		OrgID:         "org-1",
		UserEmail:     "alice@example.com",
		PlatformToken: "graph-token",
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.OrgID != "org-1" {
		t.Errorf("OrgID = %q, want %q", got.OrgID, "org-1")
	}
	if got.UserEmail != "alice@example.com" {
		t.Errorf("UserEmail = %q", got.UserEmail)
	}
	if got.PlatformToken != "graph-token" {
		t.Errorf("PlatformToken = %q", got.PlatformToken)
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing AuthContext")
	}
	if OrgID(context.Background()) != "" || UserEmail(context.Background()) != "" {
		t.Error("accessors must return zero values for missing AuthContext")
	}
}
