package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/pawbox/pawbox/internal/auth"
	"github.com/pawbox/pawbox/internal/model"
	"github.com/pawbox/pawbox/internal/showcase"
)

//go:embed templates/*.html
var templateFS embed.FS

// ページ名。templates/<name>.htmlに対応する。
const (
	pageLanding  = "landing"
	pageShowcase = "showcase"
	pageAssembly = "assembly"
)

var templateFuncs = template.FuncMap{
	"formatLikes": showcase.FormatLikes,
}

// Renderer はレイアウトと各ページのテンプレートを保持する。
type Renderer struct {
	pages   map[string]*template.Template
	loading *template.Template
}

// NewRenderer は埋め込みテンプレートを解析してRendererを生成する。
func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template)}

	for _, page := range []string{pageLanding, pageShowcase, pageAssembly} {
		tmpl, err := template.New(page).Funcs(templateFuncs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/login_modal.html",
			"templates/"+page+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", page, err)
		}
		r.pages[page] = tmpl
	}

	loading, err := template.ParseFS(templateFS, "templates/loading.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse loading template: %w", err)
	}
	r.loading = loading

	return r, nil
}

// loginPrompt はログインモーダルの表示状態。
type loginPrompt struct {
	Open  bool
	Error string
	Next  string
}

// pageData はレイアウトに渡す共通データ。
type pageData struct {
	Title     string
	Section   string // ヘッダーのロゴ横に表示する区分
	Nav       string
	Dark      bool
	User      *model.UserProfile
	CSRFToken string
	GIS       auth.GoogleIdentityConfig
	Login     loginPrompt
	Content   any
}

// Render はページをバッファに描画してから書き込む。
// 描画に失敗した場合は部分的なHTMLを返さずに500を返す。
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data pageData) {
	tmpl, ok := r.pages[page]
	if !ok {
		slog.Error("unknown page template", slog.String("page", page))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("failed to render page",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// LoadingHandler はセッション確定前に返す待機ページのハンドラー。
// Refreshヘッダーで1秒後に同じURLを再読み込みさせる。
func (r *Renderer) LoadingHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var buf bytes.Buffer
		if err := r.loading.ExecuteTemplate(&buf, "loading", nil); err != nil {
			slog.Error("failed to render loading page", slog.String("error", err.Error()))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Refresh", "1")
		w.WriteHeader(http.StatusOK)
		buf.WriteTo(w)
	})
}
