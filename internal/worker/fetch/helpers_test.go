package fetch

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pawbox/pawbox/internal/model"
)

// mockSourceRepo はImportSourceRepositoryのテスト用モック。
type mockSourceRepo struct {
	mu                  sync.Mutex
	listDueForFetchFunc func(ctx context.Context) ([]*model.ImportSource, error)
	updated             []model.ImportSource
	updateErr           error
}

func (m *mockSourceRepo) Register(_ context.Context, _ []string) error {
	return nil
}

func (m *mockSourceRepo) ListDueForFetch(ctx context.Context) ([]*model.ImportSource, error) {
	if m.listDueForFetchFunc != nil {
		return m.listDueForFetchFunc(ctx)
	}
	return nil, nil
}

func (m *mockSourceRepo) UpdateFetchState(_ context.Context, src *model.ImportSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, *src)
	return m.updateErr
}

func (m *mockSourceRepo) last() model.ImportSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updated[len(m.updated)-1]
}

// mockBuildRepo はBuildRepositoryのテスト用モック。
type mockBuildRepo struct {
	upserted []*model.Build
	err      error
}

func (m *mockBuildRepo) List(_ context.Context) ([]*model.Build, error) {
	return nil, nil
}

func (m *mockBuildRepo) FindByID(_ context.Context, _ string) (*model.Build, error) {
	return nil, nil
}

func (m *mockBuildRepo) Upsert(_ context.Context, b *model.Build) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.upserted = append(m.upserted, b)
	return true, nil
}

// mockGuard はURLGuardのテスト用モック。httptestサーバーへの接続を許可する。
type mockGuard struct {
	validateErr error
}

func (m *mockGuard) ValidateURL(_ string) error {
	return m.validateErr
}

func (m *mockGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// countingRecorder はImportRecorderのテスト用実装。
type countingRecorder struct {
	mu       sync.Mutex
	success  int
	failures map[string]int
	upserted int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{failures: map[string]int{}}
}

func (r *countingRecorder) RecordImportSuccess(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.success++
}

func (r *countingRecorder) RecordImportFailure(_ string, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[reason]++
}

func (r *countingRecorder) RecordBuildsUpserted(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserted += count
}

// mockFetcher はSourceFetcherのテスト用モック。
type mockFetcher struct {
	fetchFunc func(ctx context.Context, src *model.ImportSource) error
}

func (m *mockFetcher) Fetch(ctx context.Context, src *model.ImportSource) error {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, src)
	}
	return nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
