package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pawbox/pawbox/internal/middleware"
	"github.com/pawbox/pawbox/internal/model"
	"github.com/pawbox/pawbox/internal/pawapi"
)

// BlueprintService は図面生成ハンドラーが必要とするサービスインターフェース。
// blueprint.Serviceが実装する。
type BlueprintService interface {
	Analyze(ctx context.Context, user *model.UserProfile, img pawapi.Image, method model.AnalysisMethod) (*model.AnalyzeResult, error)
	Generate(ctx context.Context, user *model.UserProfile, dims model.Dimensions, thickness float64) (*model.Blueprint, error)
	GenerateFromImage(ctx context.Context, user *model.UserProfile, img pawapi.Image, thickness float64) (*model.Blueprint, error)
	Run(ctx context.Context, user *model.UserProfile, img pawapi.Image, method model.AnalysisMethod, thickness float64) (*model.Blueprint, error)
	Fetch(ctx context.Context, user *model.UserProfile, kind pawapi.FileKind, filename string) (*pawapi.File, error)
}

// BackendHealthChecker はバックエンドの死活を返す。pawapi.Clientが実装する。
type BackendHealthChecker interface {
	Health(ctx context.Context) bool
}

// NotesRenderer は解析所見を表示用HTMLに変換する。security.Sanitizerが実装する。
type NotesRenderer interface {
	NotesHTML(notes string) string
}

// multipartMemory はアップロード画像をメモリに保持する上限。超過分は一時ファイルになる。
const multipartMemory = 8 << 20

var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
}

// BlueprintHandler は寸法解析・図面生成APIのHTTPハンドラー。
// 未ログインの拒否はサービス層で行い、ここではリクエストの解釈とエラーの変換のみを行う。
type BlueprintHandler struct {
	service       BlueprintService
	health        BackendHealthChecker
	notes         NotesRenderer
	uploadMaxSize int64
}

// NewBlueprintHandler はBlueprintHandlerを生成する。
func NewBlueprintHandler(service BlueprintService, health BackendHealthChecker, notes NotesRenderer, uploadMaxSize int64) *BlueprintHandler {
	return &BlueprintHandler{
		service:       service,
		health:        health,
		notes:         notes,
		uploadMaxSize: uploadMaxSize,
	}
}

type analyzeResponse struct {
	Success    bool             `json:"success"`
	Dimensions model.Dimensions `json:"dimensions"`
	NotesHTML  string           `json:"notes_html"`
	ImagePath  string           `json:"image_path"`
}

// Analyze は画像からペットの寸法を推定する。
// POST /api/analyze (multipart: image, method)
func (h *BlueprintHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	img, cleanup, ok := h.readImage(w, r)
	if !ok {
		return
	}
	defer cleanup()

	method, valid := model.ParseAnalysisMethod(r.FormValue("method"))
	if !valid {
		middleware.WriteError(w, model.NewInvalidMethodError(r.FormValue("method")))
		return
	}

	result, err := h.service.Analyze(r.Context(), middleware.UserFromContext(r.Context()), img, method)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		Success:    true,
		Dimensions: result.Dimensions,
		NotesHTML:  h.notes.NotesHTML(result.Dimensions.Notes),
		ImagePath:  result.ImagePath,
	})
}

type generateRequest struct {
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Depth     float64 `json:"depth"`
	Thickness float64 `json:"thickness"`
}

// Generate は寸法から図面を生成する。
// POST /api/generate {"width", "height", "depth", "thickness"}
func (h *BlueprintHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewInvalidDimensionsError())
		return
	}

	dims := model.Dimensions{Width: req.Width, Height: req.Height, Depth: req.Depth}
	bp, err := h.service.Generate(r.Context(), middleware.UserFromContext(r.Context()), dims, req.Thickness)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bp)
}

// GenerateFromImage は画像の解析と図面生成をバックエンドで一度に行う。
// POST /api/generate-from-image (multipart: image, thickness)
func (h *BlueprintHandler) GenerateFromImage(w http.ResponseWriter, r *http.Request) {
	img, cleanup, ok := h.readImage(w, r)
	if !ok {
		return
	}
	defer cleanup()

	thickness, valid := parseThickness(r.FormValue("thickness"))
	if !valid {
		middleware.WriteError(w, model.NewInvalidDimensionsError())
		return
	}

	bp, err := h.service.GenerateFromImage(r.Context(), middleware.UserFromContext(r.Context()), img, thickness)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bp)
}

// Blueprint は画像を解析し、推定した寸法で図面を生成する。
// 解析に失敗した場合は図面生成を行わない。
// POST /api/blueprint (multipart: image, method, thickness)
func (h *BlueprintHandler) Blueprint(w http.ResponseWriter, r *http.Request) {
	img, cleanup, ok := h.readImage(w, r)
	if !ok {
		return
	}
	defer cleanup()

	method, valid := model.ParseAnalysisMethod(r.FormValue("method"))
	if !valid {
		middleware.WriteError(w, model.NewInvalidMethodError(r.FormValue("method")))
		return
	}
	thickness, valid := parseThickness(r.FormValue("thickness"))
	if !valid {
		middleware.WriteError(w, model.NewInvalidDimensionsError())
		return
	}

	bp, err := h.service.Run(r.Context(), middleware.UserFromContext(r.Context()), img, method, thickness)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bp)
}

// Download は生成済みの図面ファイルをダウンロードさせる。
// GET /files/download/{filename}
func (h *BlueprintHandler) Download(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, pawapi.FileDownload)
}

// Preview は生成済みの図面ファイルをインライン表示用に返す。
// GET /files/preview/{filename}
func (h *BlueprintHandler) Preview(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, pawapi.FilePreview)
}

// BackendHealth はバックエンドの死活を返す。失敗してもこのサーバーは200を返す。
// GET /api/backend/health
func (h *BlueprintHandler) BackendHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if !h.health.Health(r.Context()) {
		status = "unavailable"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *BlueprintHandler) serveFile(w http.ResponseWriter, r *http.Request, kind pawapi.FileKind) {
	filename := chi.URLParam(r, "filename")

	file, err := h.service.Fetch(r.Context(), middleware.UserFromContext(r.Context()), kind, filename)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer file.Body.Close()

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if file.ContentDisposition != "" {
		w.Header().Set("Content-Disposition", file.ContentDisposition)
	} else if kind == pawapi.FileDownload {
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	}
	if file.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(file.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, file.Body); err != nil {
		slog.Warn("failed to stream blueprint file",
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
	}
}

// readImage はmultipartのimageフィールドを読み取る。
// 失敗した場合はエラーレスポンスを書き込んでok=falseを返す。
func (h *BlueprintHandler) readImage(w http.ResponseWriter, r *http.Request) (pawapi.Image, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.uploadMaxSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			middleware.WriteError(w, model.NewInvalidImageError("파일이 너무 큽니다"))
			return pawapi.Image{}, nil, false
		}
		middleware.WriteError(w, model.NewInvalidImageError("multipart 형식이 아닙니다"))
		return pawapi.Image{}, nil, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		middleware.WriteError(w, model.NewInvalidImageError("image 필드가 없습니다"))
		return pawapi.Image{}, nil, false
	}

	contentType := strings.ToLower(header.Header.Get("Content-Type"))
	if !allowedImageTypes[contentType] {
		file.Close()
		middleware.WriteError(w, model.NewInvalidImageError("지원하지 않는 형식입니다"))
		return pawapi.Image{}, nil, false
	}

	img := pawapi.Image{
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        file,
	}
	return img, func() { file.Close() }, true
}

// parseThickness は厚みを解釈する。空の場合は0（既定値を使う）を返す。
func parseThickness(s string) (float64, bool) {
	if s == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
