package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pawbox/pawbox/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Sessions    middleware.SessionProvider
	RateLimiter *middleware.RateLimiter
	Logger      *slog.Logger
	Client      middleware.ClientConfig
	CSRF        middleware.CSRFConfig

	// インフラ
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ハンドラー
	Renderer  *Renderer
	Auth      *AuthHandler
	Pages     *PageHandler
	Blueprint *BlueprintHandler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Client → Logging → CSRF → RateLimit(General)
//
// /health と /metrics はクライアントCookieを発行しないよう、チェーンの外に配置する。
// 保護ページはRouteGuardを、図面生成APIは専用のレート制限を追加で通す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())

	// --- クライアント識別なしのルート ---
	r.Get("/health", Health(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewClientMiddleware(deps.Sessions, deps.Client))
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 公開ページ
		r.Get("/", deps.Pages.Landing)
		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))
		r.Get("/api/backend/health", deps.Blueprint.BackendHealth)

		// GISコールバックとセッション操作
		r.Route("/auth", func(r chi.Router) {
			r.Post("/google/callback", deps.Auth.GoogleCallback)
			r.Get("/google/error", deps.Auth.GoogleError)
			r.Post("/logout", deps.Auth.Logout)
			r.Get("/me", deps.Auth.Me)
		})
		r.Post("/api/auth/credential", deps.Auth.Credential)

		// 保護ページ
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRouteGuard(deps.Renderer.LoadingHandler()))
			r.Get("/showcase", deps.Pages.Showcase)
			r.Post("/showcase/{id}/like", deps.Pages.ToggleLike)
			r.Get("/assembly", deps.Pages.Assembly)
		})

		// 図面生成API（認可はサービス層で行う）
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.BlueprintMiddleware())
			r.Post("/api/analyze", deps.Blueprint.Analyze)
			r.Post("/api/generate", deps.Blueprint.Generate)
			r.Post("/api/generate-from-image", deps.Blueprint.GenerateFromImage)
			r.Post("/api/blueprint", deps.Blueprint.Blueprint)
		})
		r.Get("/files/download/{filename}", deps.Blueprint.Download)
		r.Get("/files/preview/{filename}", deps.Blueprint.Preview)
	})

	return r
}
