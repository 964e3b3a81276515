package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pawbox/pawbox/internal/storage"
)

// ManagerConfig はセッションレジストリの設定を保持する。
type ManagerConfig struct {
	IdleTTL         time.Duration // この期間アクセスの無いAuthをメモリから破棄する
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
	TouchInterval   time.Duration // ログイン中クライアントの保存レコードを延長する最短間隔
}

// DefaultManagerConfig はデフォルトの設定を返す。
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		IdleTTL:         30 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		TouchInterval:   time.Hour,
	}
}

// managedAuth はクライアントごとのAuthとアクセス時刻を保持する。
type managedAuth struct {
	auth       *Auth
	lastAccess time.Time
	lastTouch  time.Time
}

// Manager はクライアントIDごとのAuthを管理する。
//
// 破棄されたクライアントの次のリクエストでは新しいAuthが生成され、
// ストレージから再度復元される。
type Manager struct {
	kv        storage.KV
	decoder   CredentialDecoder
	recorder  Recorder
	config    ManagerConfig
	listeners []Listener

	mu      sync.Mutex
	entries map[string]*managedAuth

	stopOnce sync.Once
	stopCh   chan struct{}
}

// ManagerOption はManagerの任意設定。
type ManagerOption func(*Manager)

// WithRecorder はライフサイクルイベントの記録先を設定する。
func WithRecorder(r Recorder) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithListener は新しく生成される全てのAuthに登録する購読者を追加する。
func WithListener(fn Listener) ManagerOption {
	return func(m *Manager) {
		m.listeners = append(m.listeners, fn)
	}
}

// NewManager は新しいManagerを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewManager(kv storage.KV, decoder CredentialDecoder, config ManagerConfig, opts ...ManagerOption) *Manager {
	m := &Manager{
		kv:       kv,
		decoder:  decoder,
		recorder: noopRecorder{},
		config:   config,
		entries:  make(map[string]*managedAuth),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if config.CleanupInterval > 0 {
		go m.cleanupLoop()
	}

	return m
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Get はクライアントのAuthを返す。存在しない場合は生成して初期復元を行う。
//
// 生成したリクエストだけが復元を待つ。同時に到着した別のリクエストは
// 復元完了前のローディング状態を観測しうる。
//
// ログイン中のクライアントはTouchIntervalごとに保存レコードの保持期限を延長する。
// 読み出しだけではストレージのクリーンアップ対象から外れないため。
func (m *Manager) Get(ctx context.Context, clientID string) *Auth {
	now := time.Now()

	m.mu.Lock()
	entry, exists := m.entries[clientID]
	if exists {
		entry.lastAccess = now
		due := now.Sub(entry.lastTouch) >= m.config.TouchInterval
		if due {
			entry.lastTouch = now
		}
		m.mu.Unlock()
		if due {
			m.touch(ctx, entry.auth)
		}
		return entry.auth
	}

	a := NewAuth(NewStore(m.kv, clientID, m.recorder), m.decoder, m.recorder)
	for _, fn := range m.listeners {
		a.Subscribe(fn)
	}
	m.entries[clientID] = &managedAuth{auth: a, lastAccess: now, lastTouch: now}
	m.mu.Unlock()

	a.Init(ctx)
	m.touch(ctx, a)
	return a
}

// touch はログイン中であれば保存レコードの保持期限を延長する。
func (m *Manager) touch(ctx context.Context, a *Auth) {
	if !a.State().LoggedIn() {
		return
	}
	if err := a.store.Touch(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("failed to refresh session record",
			slog.String("client_id", a.store.clientID),
			slog.String("error", err.Error()),
		)
	}
}

// Len は保持しているAuthの数を返す。
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// cleanupLoop は定期的に期限切れのエントリを削除する。
func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictIdle(time.Now())
		case <-m.stopCh:
			return
		}
	}
}

// evictIdle はnowを基準にIdleTTLを超えたエントリを削除する。
func (m *Manager) evictIdle(now time.Time) int {
	threshold := now.Add(-m.config.IdleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, entry := range m.entries {
		if entry.lastAccess.Before(threshold) {
			delete(m.entries, id)
			evicted++
		}
	}
	if evicted > 0 {
		slog.Debug("evicted idle sessions", slog.Int("count", evicted))
	}
	return evicted
}
