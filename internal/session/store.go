// Package session はクライアントごとのログインセッションの状態管理を提供する。
//
// Store が永続化（storage.KV）を、Auth がメモリ上のセッション状態と
// その変更通知を、Manager がクライアントIDごとのAuthの生存期間を受け持つ。
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pawbox/pawbox/internal/model"
	"github.com/pawbox/pawbox/internal/storage"
)

// StorageKey はプロフィールを保存する固定キー。
const StorageKey = "paw_box_user"

// StorageCorruptError は永続化レコードを解釈できない場合のエラー。
// Store内部で処理され、呼び出し元には返らない。
type StorageCorruptError struct {
	ClientID string
	Reason   string
}

// Error はerrorインターフェースを実装する。
func (e *StorageCorruptError) Error() string {
	return fmt.Sprintf("corrupt session record for client %s: %s", e.ClientID, e.Reason)
}

// Store は1クライアント分のプロフィールを固定キーで永続化する。
type Store struct {
	kv       storage.KV
	clientID string
	recorder Recorder
}

// NewStore はStoreを生成する。recorderがnilの場合は記録しない。
func NewStore(kv storage.KV, clientID string, recorder Recorder) *Store {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Store{kv: kv, clientID: clientID, recorder: recorder}
}

// Restore は保存済みのプロフィールを読み出す。存在しない場合はnilを返す。
// 解釈できないレコードは削除したうえでnilを返す。
// ストレージ自体の読み出し失敗はログに記録し、削除せずにnilを返す。
func (s *Store) Restore(ctx context.Context) *model.UserProfile {
	raw, found, err := s.kv.Get(ctx, s.clientID, StorageKey)
	if err != nil {
		slog.Error("failed to read session record",
			slog.String("client_id", s.clientID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !found {
		return nil
	}

	user, corruptErr := s.parse(raw)
	if corruptErr != nil {
		slog.Warn("discarding corrupt session record",
			slog.String("client_id", s.clientID),
			slog.String("error", corruptErr.Error()),
		)
		s.recorder.RecordStorageCorrupt()
		if err := s.kv.Delete(ctx, s.clientID, StorageKey); err != nil {
			slog.Error("failed to delete corrupt session record",
				slog.String("client_id", s.clientID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	return user
}

// Persist はプロフィールをJSONで固定キーに上書き保存する。
func (s *Store) Persist(ctx context.Context, user *model.UserProfile) error {
	if user == nil {
		return fmt.Errorf("persist: user is nil")
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}
	if err := s.kv.Set(ctx, s.clientID, StorageKey, string(data)); err != nil {
		return fmt.Errorf("failed to persist session record: %w", err)
	}
	return nil
}

// Clear は固定キーを削除する。存在しない場合は何もしない。
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.clientID, StorageKey); err != nil {
		return fmt.Errorf("failed to clear session record: %w", err)
	}
	return nil
}

// Touch は保存済みレコードの保持期限を延長する。
func (s *Store) Touch(ctx context.Context) error {
	if err := s.kv.Touch(ctx, s.clientID, StorageKey); err != nil {
		return fmt.Errorf("failed to touch session record: %w", err)
	}
	return nil
}

func (s *Store) parse(raw string) (*model.UserProfile, error) {
	var user model.UserProfile
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, &StorageCorruptError{ClientID: s.clientID, Reason: err.Error()}
	}
	if missing := user.MissingFields(); len(missing) > 0 {
		return nil, &StorageCorruptError{
			ClientID: s.clientID,
			Reason:   "missing fields: " + strings.Join(missing, ", "),
		}
	}
	return &user, nil
}
