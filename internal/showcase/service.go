// Package showcase はコミュニティ作品ギャラリーのドメインロジックを提供する。
// カテゴリ絞り込み、並び替え、ユーザーごとのいいねを扱う。
package showcase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/pawbox/pawbox/internal/model"
	"github.com/pawbox/pawbox/internal/repository"
)

var (
	// ErrLoginRequired は未ログインでいいねしようとした場合のエラー。
	ErrLoginRequired = errors.New("login required")
	// ErrBuildNotFound は指定した作品が存在しない場合のエラー。
	ErrBuildNotFound = errors.New("build not found")
)

// Filter はカテゴリによる絞り込み条件。
type Filter string

const (
	FilterAll     Filter = "all"
	FilterCats    Filter = "cats"
	FilterDogs    Filter = "dogs"
	FilterRabbits Filter = "rabbits"
)

// Filters は画面に表示する絞り込み条件の順序。
var Filters = []Filter{FilterAll, FilterCats, FilterDogs, FilterRabbits}

// ParseFilter は文字列を絞り込み条件に変換する。未知の値はFilterAllとして扱う。
func ParseFilter(s string) Filter {
	switch f := Filter(s); f {
	case FilterCats, FilterDogs, FilterRabbits:
		return f
	default:
		return FilterAll
	}
}

// Label は画面表示用のラベルを返す。
func (f Filter) Label() string {
	switch f {
	case FilterCats:
		return "고양이"
	case FilterDogs:
		return "강아지"
	case FilterRabbits:
		return "토끼"
	default:
		return "전체"
	}
}

// category は絞り込み対象のカテゴリを返す。FilterAllの場合はfalse。
func (f Filter) category() (model.Category, bool) {
	switch f {
	case FilterCats:
		return model.CategoryCats, true
	case FilterDogs:
		return model.CategoryDogs, true
	case FilterRabbits:
		return model.CategoryRabbits, true
	default:
		return "", false
	}
}

// Sort は並び順。
type Sort string

const (
	SortPopular  Sort = "popular"
	SortLatest   Sort = "latest"
	SortTrending Sort = "trending"
)

// Sorts は画面に表示する並び順の順序。
var Sorts = []Sort{SortPopular, SortLatest, SortTrending}

// ParseSort は文字列を並び順に変換する。未知の値はSortPopularとして扱う。
func ParseSort(s string) Sort {
	switch v := Sort(s); v {
	case SortLatest, SortTrending:
		return v
	default:
		return SortPopular
	}
}

// Label は画面表示用のラベルを返す。
func (s Sort) Label() string {
	switch s {
	case SortLatest:
		return "최신순"
	case SortTrending:
		return "트렌딩"
	default:
		return "인기순"
	}
}

// TrendingScore はトレンド順の評価値を返す。
// いいね数を主とし、公開日時(ミリ秒)で新しい作品を僅かに優先する。
func TrendingScore(b model.Build) float64 {
	return float64(b.Likes)*0.7 + float64(b.PublishedAt.UnixMilli())/1e10
}

// Apply は作品一覧を絞り込み、並び替えた新しいスライスを返す。
// 同じ評価値の作品は元の順序を維持する。
func Apply(builds []model.BuildWithLike, f Filter, s Sort) []model.BuildWithLike {
	result := make([]model.BuildWithLike, 0, len(builds))
	cat, filtered := f.category()
	for _, b := range builds {
		if filtered && b.Category != cat {
			continue
		}
		result = append(result, b)
	}

	var less func(a, b model.BuildWithLike) bool
	switch s {
	case SortLatest:
		less = func(a, b model.BuildWithLike) bool { return a.PublishedAt.After(b.PublishedAt) }
	case SortTrending:
		less = func(a, b model.BuildWithLike) bool { return TrendingScore(a.Build) > TrendingScore(b.Build) }
	default:
		less = func(a, b model.BuildWithLike) bool { return a.Likes > b.Likes }
	}
	sort.SliceStable(result, func(i, j int) bool { return less(result[i], result[j]) })
	return result
}

// FormatLikes はいいね数を表示用に整形する。1000以上は小数1桁のk表記。
func FormatLikes(n int) string {
	if n >= 1000 {
		return strconv.FormatFloat(float64(n)/1000, 'f', 1, 64) + "k"
	}
	return strconv.Itoa(n)
}

// Listing は絞り込み・並び替え済みの作品一覧。
type Listing struct {
	Builds []model.BuildWithLike
	Count  int
	Filter Filter
	Sort   Sort
}

// Service はショーケースのサービス層。
type Service struct {
	buildRepo repository.BuildRepository
	likeRepo  repository.LikeRepository
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(buildRepo repository.BuildRepository, likeRepo repository.LikeRepository, logger *slog.Logger) *Service {
	return &Service{
		buildRepo: buildRepo,
		likeRepo:  likeRepo,
		logger:    logger,
	}
}

// List は作品一覧を返す。userがnilの場合はいいね状態を全てfalseとする。
func (s *Service) List(ctx context.Context, user *model.UserProfile, f Filter, sortBy Sort) (*Listing, error) {
	builds, err := s.buildRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("作品一覧の取得に失敗しました: %w", err)
	}

	liked := map[string]bool{}
	if user != nil {
		liked, err = s.likeRepo.LikedBuildIDs(ctx, user.SubjectID)
		if err != nil {
			return nil, fmt.Errorf("いいね状態の取得に失敗しました: %w", err)
		}
	}

	rows := make([]model.BuildWithLike, 0, len(builds))
	for _, b := range builds {
		rows = append(rows, model.BuildWithLike{Build: *b, Liked: liked[b.ID]})
	}

	result := Apply(rows, f, sortBy)
	return &Listing{
		Builds: result,
		Count:  len(result),
		Filter: f,
		Sort:   sortBy,
	}, nil
}

// ToggleLike はユーザーのいいねを反転し、反転後の状態を返す。
func (s *Service) ToggleLike(ctx context.Context, user *model.UserProfile, buildID string) (bool, error) {
	if user == nil {
		return false, ErrLoginRequired
	}

	build, err := s.buildRepo.FindByID(ctx, buildID)
	if err != nil {
		return false, fmt.Errorf("作品の取得に失敗しました: %w", err)
	}
	if build == nil {
		return false, ErrBuildNotFound
	}

	liked, err := s.likeRepo.Toggle(ctx, user.SubjectID, buildID)
	if err != nil {
		return false, fmt.Errorf("いいねの更新に失敗しました: %w", err)
	}

	s.logger.Info("build like toggled",
		slog.String("subject_id", user.SubjectID),
		slog.String("build_id", buildID),
		slog.Bool("liked", liked),
	)
	return liked, nil
}
