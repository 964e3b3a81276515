// Package storage はクライアント（ブラウザ）ごとの永続キーバリューストアを提供する。
// セッションストア以外のコンポーネントから直接利用してはならない。
package storage

import (
	"context"
	"fmt"
	"strings"
)

// KV はクライアントIDで名前空間を区切った文字列キーバリューストア。
type KV interface {
	// Get は値を取得する。存在しない場合はfound=falseを返す。
	Get(ctx context.Context, clientID, key string) (value string, found bool, err error)
	// Set は値を上書き保存する。
	Set(ctx context.Context, clientID, key, value string) error
	// Delete はキーを削除する。存在しない場合は何もしない。
	Delete(ctx context.Context, clientID, key string) error
	// Touch は値を変えずに保持期限の起点を現在時刻へ更新する。
	// 存在しない場合は何もしない。
	Touch(ctx context.Context, clientID, key string) error
}

// Backend はKVの実装種別。
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
	BackendMemory   Backend = "memory"
)

// ParseBackend は設定値をBackendに変換する。
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendPostgres, BackendRedis, BackendMemory:
		return b, nil
	default:
		return "", fmt.Errorf("unknown storage backend: %q (valid: postgres, redis, memory)", s)
	}
}
