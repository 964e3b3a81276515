package middleware

import (
	"context"
	"net/http"
	"testing"

	"github.com/pawbox/pawbox/internal/auth"
	"github.com/pawbox/pawbox/internal/auth/authtest"
	"github.com/pawbox/pawbox/internal/session"
	"github.com/pawbox/pawbox/internal/storage"
)

const testClientID = "6f1c2a8e-3b4d-4e5f-8a9b-0c1d2e3f4a5b"

// newLoadingAuth は初期復元前のセッションを返す。
func newLoadingAuth() *session.Auth {
	return session.NewAuth(session.NewStore(storage.NewMemoryKV(), testClientID, nil), auth.NewCodec(), nil)
}

// newLoggedOutAuth は復元済みで未ログインのセッションを返す。
func newLoggedOutAuth() *session.Auth {
	a := newLoadingAuth()
	a.Init(context.Background())
	return a
}

// newLoggedInAuth はSarahでログイン済みのセッションを返す。
func newLoggedInAuth(t *testing.T) *session.Auth {
	t.Helper()
	a := newLoggedOutAuth()
	if err := a.LoginWithCredential(context.Background(), authtest.NewCredential(t, authtest.SarahClaims())); err != nil {
		t.Fatalf("LoginWithCredential: %v", err)
	}
	return a
}

// withAuth はリクエストにセッションを注入する。
func withAuth(r *http.Request, a *session.Auth) *http.Request {
	return r.WithContext(ContextWithAuth(r.Context(), testClientID, a))
}

// stubProvider はクライアントIDごとに固定のセッションを返すSessionProvider。
type stubProvider struct {
	auths    map[string]*session.Auth
	fallback *session.Auth
	calls    []string
}

func (s *stubProvider) Get(_ context.Context, clientID string) *session.Auth {
	s.calls = append(s.calls, clientID)
	if a, ok := s.auths[clientID]; ok {
		return a
	}
	return s.fallback
}
