// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pawbox/pawbox/internal/auth"
	"github.com/pawbox/pawbox/internal/middleware"
	"github.com/pawbox/pawbox/internal/model"
)

// loginNextCookie はログイン後の遷移先を保持するCookie。
// GISのlogin_uriは固定のため、モーダル表示時に遷移先をここに退避する。
const loginNextCookie = "pawbox_login_next"

// loginFailedPath はサインイン失敗時の遷移先。ランディングでモーダルとエラーを表示する。
const loginFailedPath = "/?login=failed"

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	CookieSecure bool
}

// AuthHandler はGoogle Identity Servicesからのコールバックとセッション操作のHTTPハンドラー。
// セッション状態は持たず、クレデンシャルをそのままsession.Authに渡す。
type AuthHandler struct {
	config AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{config: config}
}

// GoogleCallback はGISのリダイレクトモードで送られるクレデンシャルを受け取る。
// POST /auth/google/callback (credential, g_csrf_token)
//
// ダブルサブミットCookieの検証に失敗した場合やクレデンシャルが空の場合は
// サインイン失敗として扱い、ログイン処理を呼ばずにモーダルへ戻す。
// 成功時はクレデンシャルを転送したうえで、デコード結果に関わらず遷移先へリダイレクトする。
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("failed to parse google callback form", slog.String("error", err.Error()))
		http.Redirect(w, r, loginFailedPath, http.StatusSeeOther)
		return
	}

	if err := auth.VerifyGoogleCSRF(r); err != nil {
		slog.Warn("google callback rejected", slog.String("error", err.Error()))
		http.Redirect(w, r, loginFailedPath, http.StatusSeeOther)
		return
	}

	credential := r.PostFormValue("credential")
	if credential == "" {
		slog.Warn("google callback without credential")
		http.Redirect(w, r, loginFailedPath, http.StatusSeeOther)
		return
	}

	a, ok := middleware.AuthFromContext(r.Context())
	if !ok {
		slog.Error("auth handler used without client middleware")
		middleware.WriteInternalServerError(w)
		return
	}

	// エラーはAuth側でログ・記録済み。モーダルは閉じる。
	_ = a.LoginWithCredential(r.Context(), credential)

	next := "/"
	if c, err := r.Cookie(loginNextCookie); err == nil {
		next = middleware.SanitizeNext(c.Value)
	}
	h.clearNextCookie(w)
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// GoogleError はGISウィジェットのサインイン失敗（キャンセル、IdPエラー）を受け取る。
// GET /auth/google/error
func (h *AuthHandler) GoogleError(w http.ResponseWriter, r *http.Request) {
	slog.Info("google sign-in failed",
		slog.String("client_id", middleware.ClientIDFromContext(r.Context())),
		slog.String("reason", r.URL.Query().Get("error")),
	)
	http.Redirect(w, r, loginFailedPath, http.StatusSeeOther)
}

type credentialRequest struct {
	Credential string `json:"credential"`
}

// Credential はポップアップモードのウィジェットが取得したクレデンシャルを受け取る。
// POST /api/auth/credential {"credential": "..."}
func (h *AuthHandler) Credential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Credential == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewIdentityProviderError())
		return
	}

	a, ok := middleware.AuthFromContext(r.Context())
	if !ok {
		slog.Error("auth handler used without client middleware")
		middleware.WriteInternalServerError(w)
		return
	}

	_ = a.LoginWithCredential(r.Context(), req.Credential)
	w.WriteHeader(http.StatusNoContent)
}

// Logout はログアウトしてランディングへ戻す。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if a, ok := middleware.AuthFromContext(r.Context()); ok {
		if err := a.Logout(r.Context()); err != nil {
			// メモリ上はログアウト済み
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type meResponse struct {
	User      *model.UserProfile `json:"user"`
	IsLoading bool               `json:"isLoading"`
}

// Me は現在のセッション状態を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	resp := meResponse{IsLoading: true}
	if a, ok := middleware.AuthFromContext(r.Context()); ok {
		st := a.State()
		resp = meResponse{User: st.User, IsLoading: st.IsLoading}
	}
	writeJSON(w, http.StatusOK, resp)
}

// rememberNext はログイン後の遷移先をCookieに保存する。
func (h *AuthHandler) rememberNext(w http.ResponseWriter, next string) {
	http.SetCookie(w, &http.Cookie{
		Name:     loginNextCookie,
		Value:    next,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearNextCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     loginNextCookie,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
