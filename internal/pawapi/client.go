// Package pawapi は寸法解析・図面生成バックエンドのHTTPクライアントを提供する。
package pawapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pawbox/pawbox/internal/model"
)

const (
	// healthTimeout はヘルスチェックのタイムアウト。
	healthTimeout = 3 * time.Second
	// maxJSONResponseSize はJSONレスポンスとして読み取る最大バイト数。
	maxJSONResponseSize = 1 << 20
)

// バックエンドのエラー文言が得られなかった場合の表示文言。
const (
	MessageServerError    = "서버 오류"
	MessageAnalyzeFailed  = "분석 실패"
	MessageGenerateFailed = "도면 생성 실패"
	MessageFetchFailed    = "파일을 불러오지 못했습니다"
)

// ServiceCallError はバックエンド呼び出しの失敗を表す。
// Messageはバックエンドが返したエラー文言、または操作ごとの既定文言。
type ServiceCallError struct {
	Op         string
	StatusCode int
	Message    string
}

// Error はバックエンドの文言をそのまま返す。
func (e *ServiceCallError) Error() string {
	return e.Message
}

// ErrInvalidFilename は図面ファイル名に使えない文字が含まれる場合のエラー。
var ErrInvalidFilename = errors.New("invalid blueprint filename")

var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateFilename はバックエンドに渡すファイル名を検証する。
// パス区切りや".."のみの名前は受け付けない。
func ValidateFilename(filename string) error {
	if !filenamePattern.MatchString(filename) || strings.Trim(filename, ".") == "" {
		return ErrInvalidFilename
	}
	return nil
}

// FileKind はバックエンドから取得するファイルの種類。
type FileKind string

const (
	FileDownload FileKind = "download"
	FilePreview  FileKind = "preview"
)

// Image はアップロードする画像。
type Image struct {
	Filename    string
	ContentType string
	Data        io.Reader
}

// File はバックエンドから取得したファイル。Bodyは呼び出し元が閉じる。
type File struct {
	ContentType        string
	ContentDisposition string
	ContentLength      int64
	Body               io.ReadCloser
}

// Recorder はバックエンド呼び出しを記録するインターフェース。
// metrics.Collector が実装する。
type Recorder interface {
	RecordBackendCall(endpoint string, statusCode int, duration time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RecordBackendCall(string, int, time.Duration) {}

// Client は図面生成バックエンドのクライアント。
// 呼び出しは再試行しない。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	recorder   Recorder
}

// NewClient はClientの新しいインスタンスを生成する。recorderがnilの場合は記録しない。
func NewClient(httpClient *http.Client, baseURL string, logger *slog.Logger, recorder Recorder) *Client {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		recorder:   recorder,
	}
}

// Analyze は画像をアップロードしてペットの寸法を推定する。
func (c *Client) Analyze(ctx context.Context, img Image, method model.AnalysisMethod) (*model.AnalyzeResult, error) {
	body, contentType, err := buildMultipart(img, map[string]string{"method": string(method)})
	if err != nil {
		return nil, err
	}

	var result model.AnalyzeResult
	if err := c.doJSON(ctx, "analyze", "/api/analyze", contentType, body, MessageAnalyzeFailed, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, c.unsuccessful("analyze", result.Error, MessageAnalyzeFailed)
	}
	return &result, nil
}

// Generate は寸法からSVG図面を生成する。thicknessが0以下の場合は既定値を使う。
func (c *Client) Generate(ctx context.Context, dims model.Dimensions, thickness float64) (*model.GenerateResult, error) {
	if thickness <= 0 {
		thickness = model.DefaultThickness
	}
	payload, err := json.Marshal(model.GenerateRequest{
		Width:     dims.Width,
		Height:    dims.Height,
		Depth:     dims.Depth,
		Thickness: thickness,
		Format:    "svg",
		Simple:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generate request: %w", err)
	}

	var result model.GenerateResult
	if err := c.doJSON(ctx, "generate", "/api/generate", "application/json", bytes.NewReader(payload), MessageGenerateFailed, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, c.unsuccessful("generate", result.Error, MessageGenerateFailed)
	}
	return &result, nil
}

// GenerateFromImage は画像の解析と図面生成をバックエンド側で一度に行う。
func (c *Client) GenerateFromImage(ctx context.Context, img Image, thickness float64) (*model.GenerateFromImageResult, error) {
	if thickness <= 0 {
		thickness = model.DefaultThickness
	}
	body, contentType, err := buildMultipart(img, map[string]string{
		"thickness": strconv.FormatFloat(thickness, 'f', -1, 64),
		"format":    "svg",
	})
	if err != nil {
		return nil, err
	}

	var result model.GenerateFromImageResult
	if err := c.doJSON(ctx, "generate_from_image", "/api/generate-from-image", contentType, body, MessageGenerateFailed, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, c.unsuccessful("generate_from_image", result.Error, MessageGenerateFailed)
	}
	return &result, nil
}

// Fetch は生成済みの図面ファイルを取得する。
func (c *Client) Fetch(ctx context.Context, kind FileKind, filename string) (*File, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}
	if kind != FileDownload && kind != FilePreview {
		return nil, fmt.Errorf("unknown file kind: %q", kind)
	}

	op := "fetch_" + string(kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fileURL(kind, filename), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recorder.RecordBackendCall(op, 0, time.Since(start))
		c.logger.Error("backend request failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return nil, &ServiceCallError{Op: op, Message: MessageServerError}
	}
	c.recorder.RecordBackendCall(op, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, c.statusError(op, resp, MessageFetchFailed)
	}

	return &File{
		ContentType:        resp.Header.Get("Content-Type"),
		ContentDisposition: resp.Header.Get("Content-Disposition"),
		ContentLength:      resp.ContentLength,
		Body:               resp.Body,
	}, nil
}

func (c *Client) fileURL(kind FileKind, filename string) string {
	return c.baseURL + "/" + string(kind) + "/" + url.PathEscape(filename)
}

// Health はバックエンドが応答するかどうかを返す。
// 失敗はログに記録するのみで、エラーは返さない。
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recorder.RecordBackendCall("health", 0, time.Since(start))
		c.logger.Warn("backend health check failed", slog.String("error", err.Error()))
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxJSONResponseSize))
	c.recorder.RecordBackendCall("health", resp.StatusCode, time.Since(start))

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// doJSON はリクエストを送信し、2xxならJSONレスポンスをoutにデコードする。
func (c *Client) doJSON(ctx context.Context, op, path, contentType string, body io.Reader, fallback string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recorder.RecordBackendCall(op, 0, time.Since(start))
		c.logger.Error("backend request failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return &ServiceCallError{Op: op, Message: MessageServerError}
	}
	defer resp.Body.Close()
	c.recorder.RecordBackendCall(op, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(op, resp, fallback)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseSize)).Decode(out); err != nil {
		c.logger.Error("failed to decode backend response",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return &ServiceCallError{Op: op, StatusCode: resp.StatusCode, Message: MessageServerError}
	}
	return nil
}

// statusError は非2xxレスポンスのボディからエラー文言を取り出す。
// JSONとして読めなければ「서버 오류」、errorが空なら操作ごとの既定文言を使う。
func (c *Client) statusError(op string, resp *http.Response, fallback string) error {
	var body struct {
		Error string `json:"error"`
	}
	message := fallback
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseSize)).Decode(&body); err != nil {
		message = MessageServerError
	} else if body.Error != "" {
		message = body.Error
	}

	c.logger.Warn("backend returned error status",
		slog.String("op", op),
		slog.Int("http_status", resp.StatusCode),
		slog.String("message", message),
	)
	return &ServiceCallError{Op: op, StatusCode: resp.StatusCode, Message: message}
}

func (c *Client) unsuccessful(op, message, fallback string) error {
	if message == "" {
		message = fallback
	}
	c.logger.Warn("backend reported failure", slog.String("op", op), slog.String("message", message))
	return &ServiceCallError{Op: op, StatusCode: http.StatusOK, Message: message}
}

// buildMultipart は画像とフォームフィールドからmultipartボディを組み立てる。
func buildMultipart(img Image, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, img.Filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := io.Copy(part, img.Data); err != nil {
		return nil, "", fmt.Errorf("failed to copy image: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
