package middleware

import (
	"net/http"
	"net/url"

	"github.com/pawbox/pawbox/internal/session"
)

// GuardDecision はルートガードの判定結果。
type GuardDecision int

const (
	// GuardLoading はセッション確定前のため、待機表示を返す。
	GuardLoading GuardDecision = iota
	// GuardRedirect は未ログインのため、ランディングへリダイレクトする。
	GuardRedirect
	// GuardAllow は保護されたコンテンツを返す。
	GuardAllow
)

// String はログ用の名前を返す。
func (d GuardDecision) String() string {
	switch d {
	case GuardLoading:
		return "loading"
	case GuardRedirect:
		return "redirect"
	case GuardAllow:
		return "allow"
	default:
		return "unknown"
	}
}

// EvaluateGuard はセッション状態からガードの判定を行う。
// ローディング中は他の条件より優先してGuardLoadingを返す。
func EvaluateGuard(st session.State) GuardDecision {
	if st.IsLoading {
		return GuardLoading
	}
	if st.User == nil {
		return GuardRedirect
	}
	return GuardAllow
}

// LoginRequiredPath は未ログイン時のリダイレクト先。
const LoginRequiredPath = "/"

// NewRouteGuard はログイン済みの場合のみ後続のハンドラーを呼び出すミドルウェアを返す。
// ローディング中はloadingを、未ログインの場合は303でランディングへリダイレクトする。
// リダイレクト先には元のパスをnextパラメータとして付与する。
func NewRouteGuard(loading http.Handler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var st session.State
			if a, ok := AuthFromContext(r.Context()); ok {
				st = a.State()
			}

			switch EvaluateGuard(st) {
			case GuardLoading:
				loading.ServeHTTP(w, r)
			case GuardRedirect:
				http.Redirect(w, r, LoginRedirectURL(r), http.StatusSeeOther)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// LoginRedirectURL は未ログイン時のリダイレクトURLを組み立てる。
// GET以外のリクエストはRefererを元のページとして扱う。
func LoginRedirectURL(r *http.Request) string {
	q := url.Values{}
	q.Set("login", "required")

	next := r.URL.RequestURI()
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		next = ""
		if ref, err := url.Parse(r.Referer()); err == nil && ref.Host == r.Host {
			next = ref.RequestURI()
		}
	}
	if next = SanitizeNext(next); next != "/" {
		q.Set("next", next)
	}
	return LoginRequiredPath + "?" + q.Encode()
}

// SanitizeNext はリダイレクト先として安全な相対パスのみを返す。
// 外部URL、プロトコル相対URL、バックスラッシュを含む値は"/"に置き換える。
func SanitizeNext(next string) string {
	if next == "" || next[0] != '/' {
		return "/"
	}
	if len(next) > 1 && (next[1] == '/' || next[1] == '\\') {
		return "/"
	}
	for _, c := range next {
		if c == '\\' || c < 0x20 {
			return "/"
		}
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	return next
}
