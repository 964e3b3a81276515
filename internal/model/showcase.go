package model

import "time"

// Category はショーケース作品の対象ペット種別。
type Category string

const (
	CategoryCats    Category = "Cats"
	CategoryDogs    Category = "Dogs"
	CategoryRabbits Category = "Rabbits"
	CategoryOther   Category = "Other"
)

// Build はコミュニティが投稿した段ボールハウスの作品。
type Build struct {
	ID          string
	SourceURL   string // 取り込み元フィードURL。シードデータは空
	GUID        string
	Title       string
	Subtitle    string
	Category    Category
	ImageURL    string
	Author      string
	AuthorImage string
	Aspect      string
	Likes       int
	PublishedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BuildWithLike は作品と閲覧ユーザーのいいね状態を結合したモデル。
type BuildWithLike struct {
	Build
	Liked bool
}

// ImportSource はショーケースに作品を取り込むコミュニティフィード。
// 条件付きGETとバックオフのための取得状態を保持する。
type ImportSource struct {
	FeedURL           string
	Title             string
	ETag              string
	LastModified      string
	FetchStatus       FetchStatus
	ConsecutiveErrors int
	ErrorMessage      string
	NextFetchAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FetchStatus は取り込み元フィードの取得状態を表す。
type FetchStatus string

const (
	// FetchStatusActive は定期取得の対象。
	FetchStatusActive FetchStatus = "active"
	// FetchStatusStopped は取得を停止した状態。
	FetchStatusStopped FetchStatus = "stopped"
)
