package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/pawbox/pawbox/internal/model"
)

// State はセッションの観測可能な状態。
// IsLoadingがtrueの間、Userは確定していない。
type State struct {
	User      *model.UserProfile
	IsLoading bool
}

// LoggedIn はユーザーが確定しログイン済みかどうかを返す。
func (s State) LoggedIn() bool {
	return !s.IsLoading && s.User != nil
}

// Listener は状態変更の通知を受け取る関数。
type Listener func(State)

// CredentialDecoder はクレデンシャルをプロフィールに変換する。
// auth.Codec が実装する。
type CredentialDecoder interface {
	Decode(token string) (*model.UserProfile, error)
}

// Auth は1クライアント分のセッション状態を保持する。
//
// 状態はIsLoading=trueで始まり、Initによる1回の復元でfalseに確定する。
// 以降はLoginWithCredentialとLogoutのみが状態を変更し、
// そのたびに購読者へ新しい状態が通知される。
type Auth struct {
	store    *Store
	decoder  CredentialDecoder
	recorder Recorder

	initOnce sync.Once
	// opMu は永続化と状態更新の組を直列化する。
	opMu sync.Mutex

	mu        sync.RWMutex
	state     State
	listeners []subscription
	nextID    int
}

// subscription は登録順を保った購読者。
type subscription struct {
	id int
	fn Listener
}

// NewAuth はローディング状態のAuthを生成する。
func NewAuth(store *Store, decoder CredentialDecoder, recorder Recorder) *Auth {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Auth{
		store:     store,
		decoder:   decoder,
		recorder:  recorder,
		state:     State{IsLoading: true},
	}
}

// Init は保存済みのプロフィールを復元し、ローディング状態を解除する。
// 2回目以降の呼び出しは何もしない。
// 復元はリクエストのキャンセルに影響されない。
func (a *Auth) Init(ctx context.Context) {
	var notify func()
	a.initOnce.Do(func() {
		a.opMu.Lock()
		defer a.opMu.Unlock()

		user := a.store.Restore(context.WithoutCancel(ctx))
		a.recorder.RecordRestore(user != nil)
		notify = a.setState(State{User: user, IsLoading: false})
	})
	if notify != nil {
		notify()
	}
}

// State は現在の状態のスナップショットを返す。
func (a *Auth) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return State{User: a.state.User.Clone(), IsLoading: a.state.IsLoading}
}

// User は現在のユーザーを返す。未ログインまたはローディング中はnil。
func (a *Auth) User() *model.UserProfile {
	return a.State().User
}

// IsLoading は初期復元が完了していないかどうかを返す。
func (a *Auth) IsLoading() bool {
	return a.State().IsLoading
}

// LoginWithCredential はクレデンシャルをデコードし、保存してからログイン状態にする。
// デコードまたは保存に失敗した場合は状態もストレージも変更せずにエラーを返す。
func (a *Auth) LoginWithCredential(ctx context.Context, token string) error {
	a.Init(ctx)

	user, err := a.decoder.Decode(token)
	if err != nil {
		slog.Warn("failed to decode credential",
			slog.String("client_id", a.store.clientID),
			slog.String("error", err.Error()),
		)
		a.recorder.RecordLoginFailure("decode")
		return err
	}

	a.opMu.Lock()
	if err := a.store.Persist(ctx, user); err != nil {
		a.opMu.Unlock()
		slog.Error("failed to persist session",
			slog.String("client_id", a.store.clientID),
			slog.String("error", err.Error()),
		)
		a.recorder.RecordLoginFailure("persist")
		return err
	}
	notify := a.setState(State{User: user, IsLoading: false})
	a.opMu.Unlock()

	notify()
	a.recorder.RecordLogin()
	slog.Info("user logged in",
		slog.String("client_id", a.store.clientID),
		slog.String("subject_id", user.SubjectID),
	)
	return nil
}

// Logout はメモリ上のユーザーを破棄し、保存済みのプロフィールを削除する。
// ストレージの削除に失敗してもメモリ上はログアウト状態になる。
func (a *Auth) Logout(ctx context.Context) error {
	a.Init(ctx)

	a.opMu.Lock()
	notify := a.setState(State{User: nil, IsLoading: false})
	clearErr := a.store.Clear(ctx)
	a.opMu.Unlock()

	notify()
	a.recorder.RecordLogout()

	if err := clearErr; err != nil {
		slog.Error("failed to clear session storage",
			slog.String("client_id", a.store.clientID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Subscribe は状態変更の購読者を登録し、登録解除関数を返す。
// 通知はロック解放後に行われるため、購読者からAuthを呼び出してもよい。
func (a *Auth) Subscribe(fn Listener) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners = append(a.listeners, subscription{id: id, fn: fn})
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			for i, sub := range a.listeners {
				if sub.id == id {
					a.listeners = slices.Delete(a.listeners, i, i+1)
					break
				}
			}
			a.mu.Unlock()
		})
	}
}

// setState は状態を1回の操作で置き換え、購読者への通知関数を返す。
// 通知関数はopMuを解放してから呼ぶこと。購読者は登録順に呼ばれる。
func (a *Auth) setState(next State) func() {
	a.mu.Lock()
	a.state = next
	listeners := make([]Listener, len(a.listeners))
	for i, sub := range a.listeners {
		listeners[i] = sub.fn
	}
	a.mu.Unlock()

	snapshot := State{User: next.User.Clone(), IsLoading: next.IsLoading}
	return func() {
		for _, fn := range listeners {
			fn(snapshot)
		}
	}
}
