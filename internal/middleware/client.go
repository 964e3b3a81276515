// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/pawbox/pawbox/internal/model"
	"github.com/pawbox/pawbox/internal/session"
)

// ClientCookieName はクライアントを識別するCookieの名前。
const ClientCookieName = "pawbox_client"

// defaultClientCookieMaxAge はクライアントCookieの既定の有効期間（1年）。
const defaultClientCookieMaxAge = 365 * 24 * 60 * 60

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	clientIDContextKey = contextKey("client_id")
	authContextKey     = contextKey("auth")
)

// SessionProvider はクライアントIDからセッションを取得するインターフェース。
// session.Managerが実装する。
type SessionProvider interface {
	Get(ctx context.Context, clientID string) *session.Auth
}

// ClientConfig はクライアントCookieの設定。
type ClientConfig struct {
	CookieSecure bool
	CookieDomain string
	MaxAge       int // 秒。0の場合は1年
}

// NewClientMiddleware はクライアントCookieを読み取り（無ければ発行し）、
// そのクライアントのセッションをリクエストコンテキストに注入するミドルウェアを返す。
func NewClientMiddleware(provider SessionProvider, config ClientConfig) func(next http.Handler) http.Handler {
	if config.MaxAge <= 0 {
		config.MaxAge = defaultClientCookieMaxAge
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := readClientID(r)
			if clientID == "" {
				clientID = uuid.New().String()
				http.SetCookie(w, &http.Cookie{
					Name:     ClientCookieName,
					Value:    clientID,
					Path:     "/",
					Domain:   config.CookieDomain,
					MaxAge:   config.MaxAge,
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			a := provider.Get(r.Context(), clientID)

			ctx := context.WithValue(r.Context(), clientIDContextKey, clientID)
			ctx = context.WithValue(ctx, authContextKey, a)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// readClientID はCookieからクライアントIDを読み取る。UUIDでない値は無視する。
func readClientID(r *http.Request) string {
	cookie, err := r.Cookie(ClientCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return ""
	}
	return cookie.Value
}

// ClientIDFromContext はリクエストコンテキストからクライアントIDを取得する。
func ClientIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(clientIDContextKey).(string)
	return id
}

// AuthFromContext はリクエストコンテキストからセッションを取得する。
// クライアントミドルウェアを通過したリクエストでのみ有効。
func AuthFromContext(ctx context.Context) (*session.Auth, bool) {
	a, ok := ctx.Value(authContextKey).(*session.Auth)
	return a, ok && a != nil
}

// UserFromContext はログイン済みユーザーを返す。
// 未ログインまたはローディング中はnilを返す。
func UserFromContext(ctx context.Context) *model.UserProfile {
	a, ok := AuthFromContext(ctx)
	if !ok {
		return nil
	}
	st := a.State()
	if !st.LoggedIn() {
		return nil
	}
	return st.User
}

// ContextWithAuth はコンテキストにクライアントIDとセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithAuth(ctx context.Context, clientID string, a *session.Auth) context.Context {
	ctx = context.WithValue(ctx, clientIDContextKey, clientID)
	return context.WithValue(ctx, authContextKey, a)
}

// subjectKey はレート制限やログに使うキーを返す。
// ログイン済みならサブジェクトID、そうでなければクライアントIDを返す。
func subjectKey(ctx context.Context) string {
	if u := UserFromContext(ctx); u != nil {
		return "user:" + u.SubjectID
	}
	if id := ClientIDFromContext(ctx); id != "" {
		return "client:" + id
	}
	return ""
}
