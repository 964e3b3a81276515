package pawapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pawbox/pawbox/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	var buf bytes.Buffer
	return NewClient(server.Client(), server.URL, newTestLogger(&buf), nil), server
}

func testImage() Image {
	return Image{Filename: "cat.jpg", ContentType: "image/jpeg", Data: strings.NewReader("jpeg-bytes")}
}

type recordedCall struct {
	endpoint string
	status   int
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakeRecorder) RecordBackendCall(endpoint string, statusCode int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{endpoint, statusCode})
}

func TestClient_Analyze_SendsMultipartAndDecodes(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/analyze" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		if got := r.FormValue("method"); got != "gemini" {
			t.Errorf("method = %q, want gemini", got)
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "jpeg-bytes" || header.Filename != "cat.jpg" {
			t.Errorf("image = %q (%s)", data, header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("part Content-Type = %q", ct)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"dimensions":{"width":45,"height":30,"depth":25,"confidence":0.9,"notes":"sitting cat","method":"gemini"},"image_path":"uploads/x.jpg"}`))
	})

	result, err := c.Analyze(context.Background(), testImage(), model.AnalysisMethodGemini)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Dimensions.Width != 45 || result.Dimensions.Method != "gemini" {
		t.Errorf("dimensions = %+v", result.Dimensions)
	}
}

func TestClient_Analyze_ErrorBodySurfacesBackendMessage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad image"}`))
	})

	_, err := c.Analyze(context.Background(), testImage(), model.AnalysisMethodAuto)

	var sce *ServiceCallError
	if !errors.As(err, &sce) {
		t.Fatalf("expected *ServiceCallError, got %T (%v)", err, err)
	}
	if sce.Message != "bad image" || sce.Error() != "bad image" {
		t.Errorf("message = %q, want %q", sce.Message, "bad image")
	}
	if sce.StatusCode != http.StatusBadRequest || sce.Op != "analyze" {
		t.Errorf("error = %+v", sce)
	}
}

func TestClient_ErrorMessageFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		call    func(c *Client) error
		wantMsg string
	}{
		{
			name: "analyze unparsable body",
			body: "<html>500</html>",
			call: func(c *Client) error {
				_, err := c.Analyze(context.Background(), testImage(), model.AnalysisMethodAuto)
				return err
			},
			wantMsg: MessageServerError,
		},
		{
			name: "analyze empty error",
			body: `{}`,
			call: func(c *Client) error {
				_, err := c.Analyze(context.Background(), testImage(), model.AnalysisMethodAuto)
				return err
			},
			wantMsg: MessageAnalyzeFailed,
		},
		{
			name: "generate empty error",
			body: `{"error":""}`,
			call: func(c *Client) error {
				_, err := c.Generate(context.Background(), model.Dimensions{Width: 1, Height: 1, Depth: 1}, 0)
				return err
			},
			wantMsg: MessageGenerateFailed,
		},
		{
			name: "generate from image unparsable",
			body: "oops",
			call: func(c *Client) error {
				_, err := c.GenerateFromImage(context.Background(), testImage(), 0)
				return err
			},
			wantMsg: MessageServerError,
		},
		{
			name: "generate from image empty error",
			body: `{"success":false}`,
			call: func(c *Client) error {
				_, err := c.GenerateFromImage(context.Background(), testImage(), 0)
				return err
			},
			wantMsg: MessageGenerateFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(tt.body))
			})

			err := tt.call(c)
			var sce *ServiceCallError
			if !errors.As(err, &sce) {
				t.Fatalf("expected *ServiceCallError, got %v", err)
			}
			if sce.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", sce.Message, tt.wantMsg)
			}
		})
	}
}

func TestClient_Analyze_SuccessFalseIsServiceCallError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"no pet found"}`))
	})

	_, err := c.Analyze(context.Background(), testImage(), model.AnalysisMethodAuto)
	var sce *ServiceCallError
	if !errors.As(err, &sce) || sce.Message != "no pet found" {
		t.Fatalf("err = %v, want ServiceCallError(no pet found)", err)
	}
}

func TestClient_Generate_SendsDefaults(t *testing.T) {
	var got model.GenerateRequest
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.Write([]byte(`{"success":true,"filename":"box_45x30x25.svg","download_url":"/download/box_45x30x25.svg","file_size":2048}`))
	})

	result, err := c.Generate(context.Background(), model.Dimensions{Width: 45, Height: 30, Depth: 25}, 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := model.GenerateRequest{Width: 45, Height: 30, Depth: 25, Thickness: 3.0, Format: "svg", Simple: true}
	if got != want {
		t.Errorf("request = %+v, want %+v", got, want)
	}
	if result.Filename != "box_45x30x25.svg" || result.FileSize != 2048 {
		t.Errorf("result = %+v", result)
	}
}

func TestClient_GenerateFromImage_SendsThicknessAndFormat(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		if r.FormValue("thickness") != "5" || r.FormValue("format") != "svg" {
			t.Errorf("fields = thickness %q format %q", r.FormValue("thickness"), r.FormValue("format"))
		}
		w.Write([]byte(`{"success":true,"dimensions":{"width":40,"height":20,"depth":30},"filename":"b.svg","file_size":10}`))
	})

	result, err := c.GenerateFromImage(context.Background(), testImage(), 5)
	if err != nil {
		t.Fatalf("GenerateFromImage: %v", err)
	}
	if result.Dimensions.Width != 40 || result.Filename != "b.svg" {
		t.Errorf("result = %+v", result)
	}
}

func TestClient_TransportError_IsServiceCallError(t *testing.T) {
	c, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := c.Generate(context.Background(), model.Dimensions{Width: 1, Height: 1, Depth: 1}, 3)
	var sce *ServiceCallError
	if !errors.As(err, &sce) || sce.Message != MessageServerError {
		t.Errorf("err = %v, want ServiceCallError(%s)", err, MessageServerError)
	}
}

func TestClient_Fetch_StreamsFile(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/preview/box.svg" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Write([]byte("<svg/>"))
	})

	f, err := c.Fetch(context.Background(), FilePreview, "box.svg")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer f.Body.Close()

	data, _ := io.ReadAll(f.Body)
	if string(data) != "<svg/>" || f.ContentType != "image/svg+xml" {
		t.Errorf("file = %q (%s)", data, f.ContentType)
	}
}

func TestClient_Fetch_NotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"파일을 찾을 수 없습니다"}`))
	})

	_, err := c.Fetch(context.Background(), FileDownload, "missing.svg")
	var sce *ServiceCallError
	if !errors.As(err, &sce) || sce.StatusCode != http.StatusNotFound || sce.Message != "파일을 찾을 수 없습니다" {
		t.Errorf("err = %#v", err)
	}
}

func TestClient_Fetch_RejectsInvalidFilenameWithoutCalling(t *testing.T) {
	called := false
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	for _, name := range []string{"../etc/passwd", "a/b.svg", "", "..", "box.svg?x=1", "박스.svg"} {
		if _, err := c.Fetch(context.Background(), FileDownload, name); !errors.Is(err, ErrInvalidFilename) {
			t.Errorf("Fetch(%q) err = %v, want ErrInvalidFilename", name, err)
		}
	}
	if called {
		t.Error("backend must not be called for invalid filenames")
	}
}

func TestClient_Health(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"healthy", http.StatusOK, true},
		{"unhealthy", http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("path = %s", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"status":"healthy"}`))
			})
			if got := c.Health(context.Background()); got != tt.want {
				t.Errorf("Health = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClient_Health_UnreachableReturnsFalse(t *testing.T) {
	c, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	if c.Health(context.Background()) {
		t.Error("expected false for unreachable backend")
	}
}

func TestClient_RecordsBackendCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"upstream"}`))
	}))
	defer server.Close()

	rec := &fakeRecorder{}
	var buf bytes.Buffer
	c := NewClient(server.Client(), server.URL, newTestLogger(&buf), rec)

	_, _ = c.Generate(context.Background(), model.Dimensions{Width: 1, Height: 1, Depth: 1}, 3)

	if len(rec.calls) != 1 || rec.calls[0] != (recordedCall{"generate", http.StatusBadGateway}) {
		t.Errorf("calls = %+v", rec.calls)
	}
}

func TestValidateFilename(t *testing.T) {
	valid := []string{"box.svg", "box_45x30x25.svg", "a-b.c", "UPPER.SVG"}
	for _, name := range valid {
		if err := ValidateFilename(name); err != nil {
			t.Errorf("ValidateFilename(%q) = %v, want nil", name, err)
		}
	}
}
