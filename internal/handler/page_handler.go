package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pawbox/pawbox/internal/assembly"
	"github.com/pawbox/pawbox/internal/auth"
	"github.com/pawbox/pawbox/internal/middleware"
	"github.com/pawbox/pawbox/internal/model"
	"github.com/pawbox/pawbox/internal/showcase"
)

// ShowcaseService はページハンドラーが必要とするショーケースのインターフェース。
type ShowcaseService interface {
	List(ctx context.Context, user *model.UserProfile, f showcase.Filter, sortBy showcase.Sort) (*showcase.Listing, error)
	ToggleLike(ctx context.Context, user *model.UserProfile, buildID string) (bool, error)
}

// PageHandlerConfig はページハンドラーの設定。
type PageHandlerConfig struct {
	GIS           auth.GoogleIdentityConfig
	UploadMaxSize int64
}

// PageHandler はサーバーレンダリングするページのハンドラー。
type PageHandler struct {
	renderer *Renderer
	showcase ShowcaseService
	auth     *AuthHandler
	config   PageHandlerConfig
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(renderer *Renderer, showcaseService ShowcaseService, authHandler *AuthHandler, config PageHandlerConfig) *PageHandler {
	return &PageHandler{
		renderer: renderer,
		showcase: showcaseService,
		auth:     authHandler,
		config:   config,
	}
}

// landingContent はランディングページの図面生成ウィジェットの表示データ。
type landingContent struct {
	Locked           bool
	UploadLimitMB    int64
	DefaultThickness float64
}

// Landing はランディングページを返す。
// GET /?login=required|failed|open&next=...
//
// loginパラメータがある場合はログインモーダルを開く。failedの場合はインラインのエラー文言を表示する。
func (h *PageHandler) Landing(w http.ResponseWriter, r *http.Request) {
	data := h.baseData(r, "", "home")
	data.Content = landingContent{
		Locked:           data.User == nil,
		UploadLimitMB:    h.config.UploadMaxSize >> 20,
		DefaultThickness: model.DefaultThickness,
	}

	if data.User == nil {
		q := r.URL.Query()
		switch q.Get("login") {
		case "failed":
			data.Login.Open = true
			data.Login.Error = model.LoginFailedMessage
		case "required", "open":
			data.Login.Open = true
		}
		if next := middleware.SanitizeNext(q.Get("next")); data.Login.Open && next != "/" {
			data.Login.Next = next
			h.auth.rememberNext(w, next)
		}
	}

	h.renderer.Render(w, http.StatusOK, pageLanding, data)
}

// filterOption はフィルタ・並び替えのリンク表示用データ。
type filterOption struct {
	Value  string
	Label  string
	Active bool
}

type showcaseContent struct {
	Listing *showcase.Listing
	Filters []filterOption
	Sorts   []filterOption
}

// Showcase はコミュニティショーケースを返す。ルートガードの内側に配置する。
// GET /showcase?filter=all|cats|dogs|rabbits&sort=popular|latest|trending
func (h *PageHandler) Showcase(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := showcase.ParseFilter(q.Get("filter"))
	s := showcase.ParseSort(q.Get("sort"))

	data := h.baseData(r, "쇼케이스", "showcase")
	data.Section = "SHOWCASE"
	data.Dark = true

	listing, err := h.showcase.List(r.Context(), data.User, f, s)
	if err != nil {
		slog.Error("failed to list showcase builds", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	content := showcaseContent{Listing: listing}
	for _, opt := range showcase.Filters {
		content.Filters = append(content.Filters, filterOption{Value: string(opt), Label: opt.Label(), Active: opt == f})
	}
	for _, opt := range showcase.Sorts {
		content.Sorts = append(content.Sorts, filterOption{Value: string(opt), Label: opt.Label(), Active: opt == s})
	}
	data.Content = content

	h.renderer.Render(w, http.StatusOK, pageShowcase, data)
}

// ToggleLike は作品のいいねを反転し、ショーケースへ戻す。
// POST /showcase/{id}/like
func (h *PageHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	buildID := chi.URLParam(r, "id")
	user := middleware.UserFromContext(r.Context())

	if _, err := h.showcase.ToggleLike(r.Context(), user, buildID); err != nil {
		if errors.Is(err, showcase.ErrBuildNotFound) {
			middleware.WriteError(w, model.NewBuildNotFoundError(buildID))
			return
		}
		handleServiceError(w, err)
		return
	}

	q := url.Values{}
	q.Set("filter", string(showcase.ParseFilter(r.PostFormValue("filter"))))
	q.Set("sort", string(showcase.ParseSort(r.PostFormValue("sort"))))
	http.Redirect(w, r, "/showcase?"+q.Encode()+"#build-"+url.PathEscape(buildID), http.StatusSeeOther)
}

// Assembly は組み立てガイドを返す。ルートガードの内側に配置する。
// GET /assembly?step=1..5&view=3d|2d
func (h *PageHandler) Assembly(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	step, err := strconv.Atoi(q.Get("step"))
	if err != nil {
		step = assembly.DefaultStep
	}

	data := h.baseData(r, "조립 가이드", "assembly")
	data.Section = "ASSEMBLY"
	data.Dark = true
	data.Content = assembly.NewGuide(step, assembly.ParseView(q.Get("view")))

	h.renderer.Render(w, http.StatusOK, pageAssembly, data)
}

// baseData はレイアウトの共通データを組み立てる。
func (h *PageHandler) baseData(r *http.Request, title, nav string) pageData {
	return pageData{
		Title:     title,
		Nav:       nav,
		User:      middleware.UserFromContext(r.Context()),
		CSRFToken: middleware.CSRFToken(r),
		GIS:       h.config.GIS,
	}
}
