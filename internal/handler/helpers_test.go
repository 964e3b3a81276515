package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/pawbox/pawbox/internal/auth"
	"github.com/pawbox/pawbox/internal/auth/authtest"
	"github.com/pawbox/pawbox/internal/middleware"
	"github.com/pawbox/pawbox/internal/model"
	"github.com/pawbox/pawbox/internal/pawapi"
	"github.com/pawbox/pawbox/internal/session"
	"github.com/pawbox/pawbox/internal/showcase"
	"github.com/pawbox/pawbox/internal/storage"
)

const testClientID = "0b7d3c1e-9f2a-4c6b-8d5e-1a2b3c4d5e6f"

var testGIS = auth.NewGoogleIdentityConfig("test-client-id", "http://localhost:8080")

// --- セッションヘルパー ---

func newTestAuth(kv storage.KV) *session.Auth {
	return session.NewAuth(session.NewStore(kv, testClientID, nil), auth.NewCodec(), nil)
}

func newLoggedOutAuth() *session.Auth {
	a := newTestAuth(storage.NewMemoryKV())
	a.Init(context.Background())
	return a
}

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
	return r.WithContext(middleware.ContextWithAuth(r.Context(), testClientID, a))
}

// withURLParam はchiのURLパラメータを注入する。
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// --- モック定義 ---

type mockShowcaseService struct {
	listFn       func(ctx context.Context, user *model.UserProfile, f showcase.Filter, s showcase.Sort) (*showcase.Listing, error)
	toggleLikeFn func(ctx context.Context, user *model.UserProfile, buildID string) (bool, error)
}

func (m *mockShowcaseService) List(ctx context.Context, user *model.UserProfile, f showcase.Filter, s showcase.Sort) (*showcase.Listing, error) {
	if m.listFn != nil {
		return m.listFn(ctx, user, f, s)
	}
	return &showcase.Listing{Filter: f, Sort: s}, nil
}

func (m *mockShowcaseService) ToggleLike(ctx context.Context, user *model.UserProfile, buildID string) (bool, error) {
	if m.toggleLikeFn != nil {
		return m.toggleLikeFn(ctx, user, buildID)
	}
	return true, nil
}

type mockBlueprintService struct {
	analyzeFn           func(ctx context.Context, user *model.UserProfile, img pawapi.Image, method model.AnalysisMethod) (*model.AnalyzeResult, error)
	generateFn          func(ctx context.Context, user *model.UserProfile, dims model.Dimensions, thickness float64) (*model.Blueprint, error)
	generateFromImageFn func(ctx context.Context, user *model.UserProfile, img pawapi.Image, thickness float64) (*model.Blueprint, error)
	runFn               func(ctx context.Context, user *model.UserProfile, img pawapi.Image, method model.AnalysisMethod, thickness float64) (*model.Blueprint, error)
	fetchFn             func(ctx context.Context, user *model.UserProfile, kind pawapi.FileKind, filename string) (*pawapi.File, error)
}

func (m *mockBlueprintService) Analyze(ctx context.Context, user *model.UserProfile, img pawapi.Image, method model.AnalysisMethod) (*model.AnalyzeResult, error) {
	if m.analyzeFn != nil {
		return m.analyzeFn(ctx, user, img, method)
	}
	return &model.AnalyzeResult{Success: true}, nil
}

func (m *mockBlueprintService) Generate(ctx context.Context, user *model.UserProfile, dims model.Dimensions, thickness float64) (*model.Blueprint, error) {
	if m.generateFn != nil {
		return m.generateFn(ctx, user, dims, thickness)
	}
	return &model.Blueprint{}, nil
}

func (m *mockBlueprintService) GenerateFromImage(ctx context.Context, user *model.UserProfile, img pawapi.Image, thickness float64) (*model.Blueprint, error) {
	if m.generateFromImageFn != nil {
		return m.generateFromImageFn(ctx, user, img, thickness)
	}
	return &model.Blueprint{}, nil
}

func (m *mockBlueprintService) Run(ctx context.Context, user *model.UserProfile, img pawapi.Image, method model.AnalysisMethod, thickness float64) (*model.Blueprint, error) {
	if m.runFn != nil {
		return m.runFn(ctx, user, img, method, thickness)
	}
	return &model.Blueprint{}, nil
}

func (m *mockBlueprintService) Fetch(ctx context.Context, user *model.UserProfile, kind pawapi.FileKind, filename string) (*pawapi.File, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, user, kind, filename)
	}
	return &pawapi.File{Body: io.NopCloser(bytes.NewReader(nil))}, nil
}

type mockHealth struct{ healthy bool }

func (m mockHealth) Health(context.Context) bool { return m.healthy }

type mockDB struct{ err error }

func (m mockDB) PingContext(context.Context) error { return m.err }

// --- リクエストヘルパー ---

// imagePart はmultipartリクエストに含める画像。
type imagePart struct {
	contentType string
	data        []byte
}

// newMultipartRequest は画像とフォーム値を含むmultipartリクエストを生成する。
// imgがnilの場合は画像を含めない。
func newMultipartRequest(t *testing.T, target string, img *imagePart, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if img != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="pet.png"`)
		h.Set("Content-Type", img.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		part.Write(img.data)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func pngImage() *imagePart {
	return &imagePart{contentType: "image/png", data: []byte("\x89PNG\r\n\x1a\nfake")}
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r
}

// decodeErrorBody は統一エラーフォーマットのレスポンスを読み取る。
func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v (raw=%q)", err, w.Body.String())
	}
	return body
}

// findCookie はレスポンスのSet-Cookieから名前でCookieを探す。
func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
