package fetch

import (
	"testing"
	"time"

	"github.com/pawbox/pawbox/internal/model"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   FetchResult
	}{
		{200, FetchResultOK},
		{304, FetchResultNotModified},
		{401, FetchResultStop},
		{403, FetchResultStop},
		{404, FetchResultStop},
		{410, FetchResultStop},
		{429, FetchResultBackoff},
		{500, FetchResultBackoff},
		{503, FetchResultBackoff},
		{302, FetchResultUnknown},
		{418, FetchResultUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyHTTPStatus(tt.status); got != tt.want {
			t.Errorf("ClassifyHTTPStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		errors int
		want   time.Duration
	}{
		{0, 30 * time.Minute},
		{1, time.Hour},
		{2, 2 * time.Hour},
		{100, 12 * time.Hour},
	}
	for _, tt := range tests {
		if got := CalculateBackoff(tt.errors); got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.errors, got, tt.want)
		}
	}
}

func TestApplyStop(t *testing.T) {
	src := &model.ImportSource{FeedURL: "https://example.com/feed", FetchStatus: model.FetchStatusActive}

	ApplyStop(src, "404 Not Found")

	if src.FetchStatus != model.FetchStatusStopped {
		t.Errorf("FetchStatus = %q, want stopped", src.FetchStatus)
	}
	if src.ErrorMessage == "" {
		t.Error("ErrorMessage は設定されるべき")
	}
}

func TestApplyBackoff(t *testing.T) {
	now := time.Now()
	src := &model.ImportSource{ConsecutiveErrors: 3}

	ApplyBackoff(src, "500 Internal Server Error")

	if src.ConsecutiveErrors != 4 {
		t.Errorf("ConsecutiveErrors = %d, want 4", src.ConsecutiveErrors)
	}
	// 4回目は30分×2^3 = 4時間後
	if want := now.Add(4 * time.Hour); src.NextFetchAt.Before(want.Add(-time.Second)) {
		t.Errorf("NextFetchAt = %v, want about %v", src.NextFetchAt, want)
	}
}

func TestApplySuccess(t *testing.T) {
	src := &model.ImportSource{ConsecutiveErrors: 5, ErrorMessage: "previous error"}

	ApplySuccess(src, 30*time.Minute)

	if src.ConsecutiveErrors != 0 || src.ErrorMessage != "" {
		t.Errorf("state not reset: %+v", src)
	}
	diff := time.Until(src.NextFetchAt) - 30*time.Minute
	if diff > time.Second || diff < -time.Second {
		t.Errorf("NextFetchAt が期待値から大幅にずれている: %v", src.NextFetchAt)
	}
}

func TestApplyParseFailure(t *testing.T) {
	tests := []struct {
		name       string
		before     int
		wantStatus model.FetchStatus
	}{
		{"first failure stays active", 0, model.FetchStatusActive},
		{"below threshold", 8, model.FetchStatusActive},
		{"reaches threshold", 9, model.FetchStatusStopped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &model.ImportSource{FetchStatus: model.FetchStatusActive, ConsecutiveErrors: tt.before}

			ApplyParseFailure(src, "invalid XML")

			if src.ConsecutiveErrors != tt.before+1 {
				t.Errorf("ConsecutiveErrors = %d, want %d", src.ConsecutiveErrors, tt.before+1)
			}
			if src.FetchStatus != tt.wantStatus {
				t.Errorf("FetchStatus = %q, want %q", src.FetchStatus, tt.wantStatus)
			}
			if src.ErrorMessage == "" {
				t.Error("ErrorMessage は設定されるべき")
			}
		})
	}
}
