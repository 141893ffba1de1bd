package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/alexedwards/scs/v2"

	"github.com/leadsuccess/dynamics-bridge/internal/auth"
	"github.com/leadsuccess/dynamics-bridge/internal/http/authn"
)

func TestHandleLoginPostMalformedBody(t *testing.T) {
	t.Parallel()

	c, rec := newTestContext(http.MethodPost, "http://example.com/api/login", `{"email":`)
	h := &Handlers{Sessions: scs.New()}

	if err := h.HandleLoginPost(c); err != nil {
		t.Fatalf("HandleLoginPost: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleLoginPostBlankCredentials(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "empty email", body: `{"email":"","password":"hunter2"}`},
		{name: "empty password", body: `{"email":"ops@example.com","password":"  "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, rec := newTestContext(http.MethodPost, "http://example.com/api/login", tt.body)
			h := &Handlers{Sessions: scs.New()}

			if err := h.HandleLoginPost(c); err != nil {
				t.Fatalf("HandleLoginPost: %v", err)
			}
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if got := decodeErrorBody(t, rec); got.Code != CodeInvalidCredentials {
				t.Fatalf("code = %q, want %q", got.Code, CodeInvalidCredentials)
			}
		})
	}
}

func TestHandleLoginPostNoSessions(t *testing.T) {
	t.Parallel()

	c, _ := newTestContext(http.MethodPost, "http://example.com/api/login", `{"email":"a@b.c","password":"x"}`)
	h := &Handlers{}

	if err := h.HandleLoginPost(c); err == nil {
		t.Fatal("expected error without session manager")
	}
}

func TestHandleMe(t *testing.T) {
	t.Parallel()

	c, rec := newTestContext(http.MethodGet, "http://example.com/api/me", "")
	c.Set(authn.ContextKeyPrincipal, auth.Principal{
		UserID: 7,
		Email:  "ops@example.com",
		Role:   auth.RoleAdmin,
		Method: auth.MethodPassword,
	})

	h := &Handlers{}
	if err := h.HandleMe(c); err != nil {
		t.Fatalf("HandleMe: %v", err)
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Email != "ops@example.com" || resp.Role != auth.RoleAdmin {
		t.Fatalf("unexpected principal: %+v", resp)
	}
}

func TestHandleMeUnauthenticated(t *testing.T) {
	t.Parallel()

	c, rec := newTestContext(http.MethodGet, "http://example.com/api/me", "")
	h := &Handlers{}

	if err := h.HandleMe(c); err != nil {
		t.Fatalf("HandleMe: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
