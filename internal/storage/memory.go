package storage

import (
	"context"
	"sync"
)

// MemoryKV はプロセス内メモリに保持するKV。
// 開発用（STORAGE_BACKEND=memory）およびテスト用。再起動で内容は失われる。
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

// NewMemoryKV はMemoryKVを生成する。
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]map[string]string)}
}

// Get は値を取得する。
func (m *MemoryKV) Get(_ context.Context, clientID, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[clientID][key]
	return v, ok, nil
}

// Set は値を上書き保存する。
func (m *MemoryKV) Set(_ context.Context, clientID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.data[clientID]
	if !ok {
		bucket = make(map[string]string)
		m.data[clientID] = bucket
	}
	bucket[key] = value
	return nil
}

// Delete はキーを削除する。
func (m *MemoryKV) Delete(_ context.Context, clientID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.data[clientID]
	if !ok {
		return nil
	}
	delete(bucket, key)
	if len(bucket) == 0 {
		delete(m.data, clientID)
	}
	return nil
}

// Touch は何もしない。MemoryKVの値は失効しない。
func (m *MemoryKV) Touch(_ context.Context, _, _ string) error {
	return nil
}

// Len は保持しているクライアント数を返す。テスト用。
func (m *MemoryKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// compile-time interface check
var _ KV = (*MemoryKV)(nil)
