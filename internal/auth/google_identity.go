package auth

import (
	"errors"
	"net/http"
	"strings"
)

// GoogleCSRFCookieName はGoogle Identity Servicesがリダイレクトモードで発行する
// ダブルサブミット用Cookieの名前。
const GoogleCSRFCookieName = "g_csrf_token"

// GoogleIdentityConfig はGoogle Identity Servicesウィジェットの設定。
type GoogleIdentityConfig struct {
	ClientID string
	// LoginURI はウィジェットがクレデンシャルをPOSTするこのサーバーのURL。
	LoginURI string
	// ErrorURI はウィジェットがサインイン失敗時に遷移するこのサーバーのURL。
	ErrorURI string
}

// NewGoogleIdentityConfig はBASE_URLからコールバックURLを組み立てる。
func NewGoogleIdentityConfig(clientID, baseURL string) GoogleIdentityConfig {
	base := strings.TrimRight(baseURL, "/")
	return GoogleIdentityConfig{
		ClientID: clientID,
		LoginURI: base + "/auth/google/callback",
		ErrorURI: base + "/auth/google/error",
	}
}

var (
	// ErrMissingCSRFCookie はg_csrf_token Cookieが無い場合のエラー。
	ErrMissingCSRFCookie = errors.New("missing g_csrf_token cookie")
	// ErrMissingCSRFBody はg_csrf_tokenフォーム値が無い場合のエラー。
	ErrMissingCSRFBody = errors.New("missing g_csrf_token body parameter")
	// ErrCSRFMismatch はCookieとフォーム値が一致しない場合のエラー。
	ErrCSRFMismatch = errors.New("g_csrf_token mismatch")
)

// VerifyGoogleCSRF はGISリダイレクトモードのダブルサブミットCookieを検証する。
// 呼び出し前にr.ParseFormが済んでいること。
func VerifyGoogleCSRF(r *http.Request) error {
	cookie, err := r.Cookie(GoogleCSRFCookieName)
	if err != nil || cookie.Value == "" {
		return ErrMissingCSRFCookie
	}
	body := r.PostFormValue(GoogleCSRFCookieName)
	if body == "" {
		return ErrMissingCSRFBody
	}
	if cookie.Value != body {
		return ErrCSRFMismatch
	}
	return nil
}
