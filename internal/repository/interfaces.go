// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/pawbox/pawbox/internal/model"
)

// BuildRepository はショーケース作品の永続化インターフェース。
type BuildRepository interface {
	// List は全作品をいいね数込みで取得する。
	// Likesは基準値に全ユーザーのいいね数を加えた値。
	List(ctx context.Context) ([]*model.Build, error)

	// FindByID は指定IDの作品を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Build, error)

	// Upsert は取り込んだ作品を(source_url, guid)で冪等にUPSERTする。
	// 新規作成した場合はtrueを返す。
	Upsert(ctx context.Context, build *model.Build) (bool, error)
}

// LikeRepository はユーザーごとのいいねの永続化インターフェース。
// ユーザーはGoogleアカウントのsubjectで識別する。
type LikeRepository interface {
	// LikedBuildIDs はユーザーがいいねした作品IDの集合を返す。
	LikedBuildIDs(ctx context.Context, subjectID string) (map[string]bool, error)

	// Toggle はいいねを反転し、反転後の状態を返す。
	Toggle(ctx context.Context, subjectID, buildID string) (bool, error)
}

// ImportSourceRepository は取り込み元フィードの永続化インターフェース。
type ImportSourceRepository interface {
	// Register は設定されたフィードURLを登録する。登録済みのURLは変更しない。
	Register(ctx context.Context, feedURLs []string) error

	// ListDueForFetch は取得対象のフィードを取得する。
	// next_fetch_at <= now() かつ fetch_status = 'active' のフィードを
	// FOR UPDATE SKIP LOCKEDで排他的に取得する。
	ListDueForFetch(ctx context.Context) ([]*model.ImportSource, error)

	// UpdateFetchState はフィードの取得状態を更新する。
	UpdateFetchState(ctx context.Context, source *model.ImportSource) error
}
