package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/pawbox/pawbox/internal/session"
)

func TestClientMiddleware_NoCookie_IssuesClientCookie(t *testing.T) {
	provider := &stubProvider{fallback: newLoggedOutAuth()}

	var seenClientID string
	handler := NewClientMiddleware(provider, ClientConfig{CookieSecure: true})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenClientID = ClientIDFromContext(r.Context())
		}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == ClientCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected client cookie to be issued")
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		t.Errorf("cookie value %q is not a UUID", cookie.Value)
	}
	if !cookie.HttpOnly {
		t.Error("client cookie must be HttpOnly")
	}
	if !cookie.Secure {
		t.Error("client cookie should be Secure when configured")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", cookie.SameSite)
	}
	if seenClientID != cookie.Value {
		t.Errorf("context client ID = %q, cookie = %q", seenClientID, cookie.Value)
	}
	if len(provider.calls) != 1 || provider.calls[0] != cookie.Value {
		t.Errorf("provider calls = %v", provider.calls)
	}
}

func TestClientMiddleware_ExistingCookie_ReusesClient(t *testing.T) {
	a := newLoggedInAuth(t)
	provider := &stubProvider{auths: map[string]*session.Auth{testClientID: a}}

	var gotAuth *session.Auth
	handler := NewClientMiddleware(provider, ClientConfig{})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth, _ = AuthFromContext(r.Context())
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: ClientCookieName, Value: testClientID})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if gotAuth != a {
		t.Error("expected the client's existing session in context")
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == ClientCookieName {
			t.Error("client cookie should not be re-issued")
		}
	}
}

func TestClientMiddleware_InvalidCookie_IssuesNewClient(t *testing.T) {
	provider := &stubProvider{fallback: newLoggedOutAuth()}
	handler := NewClientMiddleware(provider, ClientConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: ClientCookieName, Value: "../../etc/passwd"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if len(provider.calls) != 1 || provider.calls[0] == "../../etc/passwd" {
		t.Errorf("provider calls = %v, want a freshly issued ID", provider.calls)
	}
}

func TestUserFromContext(t *testing.T) {
	tests := []struct {
		name    string
		ctx     context.Context
		wantSub string
	}{
		{"no session", context.Background(), ""},
		{"loading", ContextWithAuth(context.Background(), testClientID, newLoadingAuth()), ""},
		{"logged out", ContextWithAuth(context.Background(), testClientID, newLoggedOutAuth()), ""},
		{"logged in", ContextWithAuth(context.Background(), testClientID, newLoggedInAuth(t)), "123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := UserFromContext(tt.ctx)
			got := ""
			if u != nil {
				got = u.SubjectID
			}
			if got != tt.wantSub {
				t.Errorf("subject = %q, want %q", got, tt.wantSub)
			}
		})
	}
}
