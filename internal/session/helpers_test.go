package session

import (
	"context"
	"errors"
	"sync"

	"github.com/pawbox/pawbox/internal/storage"
)

// failingKV は指定した操作を失敗させるstorage.KV。
type failingKV struct {
	*storage.MemoryKV
	failGet    bool
	failSet    bool
	failDelete bool
}

var errStorage = errors.New("storage unavailable")

func (f *failingKV) Get(ctx context.Context, clientID, key string) (string, bool, error) {
	if f.failGet {
		return "", false, errStorage
	}
	return f.MemoryKV.Get(ctx, clientID, key)
}

func (f *failingKV) Set(ctx context.Context, clientID, key, value string) error {
	if f.failSet {
		return errStorage
	}
	return f.MemoryKV.Set(ctx, clientID, key, value)
}

func (f *failingKV) Delete(ctx context.Context, clientID, key string) error {
	if f.failDelete {
		return errStorage
	}
	return f.MemoryKV.Delete(ctx, clientID, key)
}

// touchCountingKV はTouchの呼び出しを記録するstorage.KV。
type touchCountingKV struct {
	*storage.MemoryKV
	mu      sync.Mutex
	touched []string
}

func (k *touchCountingKV) Touch(ctx context.Context, clientID, key string) error {
	k.mu.Lock()
	k.touched = append(k.touched, clientID+"/"+key)
	k.mu.Unlock()
	return k.MemoryKV.Touch(ctx, clientID, key)
}

func (k *touchCountingKV) touches() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.touched)
}

// countingRecorder はイベント回数を数えるRecorder。
type countingRecorder struct {
	mu            sync.Mutex
	restores      int
	restoredUsers int
	corrupt       int
	logins        int
	loginFailures map[string]int
	logouts       int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{loginFailures: make(map[string]int)}
}

func (c *countingRecorder) RecordRestore(restored bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restores++
	if restored {
		c.restoredUsers++
	}
}

func (c *countingRecorder) RecordStorageCorrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.corrupt++
}

func (c *countingRecorder) RecordLogin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logins++
}

func (c *countingRecorder) RecordLoginFailure(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loginFailures[reason]++
}

func (c *countingRecorder) RecordLogout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logouts++
}
