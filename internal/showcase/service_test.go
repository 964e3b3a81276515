package showcase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pawbox/pawbox/internal/model"
)

// --- モック ---

type mockBuildRepo struct {
	listFn     func(ctx context.Context) ([]*model.Build, error)
	findByIDFn func(ctx context.Context, id string) (*model.Build, error)
}

func (m *mockBuildRepo) List(ctx context.Context) ([]*model.Build, error) {
	return m.listFn(ctx)
}
func (m *mockBuildRepo) FindByID(ctx context.Context, id string) (*model.Build, error) {
	return m.findByIDFn(ctx, id)
}
func (m *mockBuildRepo) Upsert(ctx context.Context, b *model.Build) (bool, error) {
	return true, nil
}

type mockLikeRepo struct {
	likedFn  func(ctx context.Context, subjectID string) (map[string]bool, error)
	toggleFn func(ctx context.Context, subjectID, buildID string) (bool, error)
}

func (m *mockLikeRepo) LikedBuildIDs(ctx context.Context, subjectID string) (map[string]bool, error) {
	return m.likedFn(ctx, subjectID)
}
func (m *mockLikeRepo) Toggle(ctx context.Context, subjectID, buildID string) (bool, error) {
	return m.toggleFn(ctx, subjectID, buildID)
}

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

// seedBuilds は初期データと同じ6作品を返す。
func seedBuilds() []*model.Build {
	return []*model.Build{
		{ID: "1", Title: "루나", Likes: 245, Category: model.CategoryCats, PublishedAt: date("2025-01-10")},
		{ID: "2", Title: "맥스", Likes: 892, Category: model.CategoryDogs, PublishedAt: date("2025-02-05")},
		{ID: "3", Title: "모찌", Likes: 1200, Category: model.CategoryCats, PublishedAt: date("2025-01-28")},
		{ID: "4", Title: "봉봉", Likes: 56, Category: model.CategoryRabbits, PublishedAt: date("2025-02-01")},
		{ID: "5", Title: "쿠퍼", Likes: 341, Category: model.CategoryDogs, PublishedAt: date("2025-01-15")},
		{ID: "6", Title: "심바", Likes: 105, Category: model.CategoryCats, PublishedAt: date("2025-02-10")},
	}
}

func seedRows() []model.BuildWithLike {
	var rows []model.BuildWithLike
	for _, b := range seedBuilds() {
		rows = append(rows, model.BuildWithLike{Build: *b})
	}
	return rows
}

func titles(rows []model.BuildWithLike) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Title
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func newTestService(builds *mockBuildRepo, likes *mockLikeRepo) *Service {
	return NewService(builds, likes, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestApply_FilterAndSort(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		sort   Sort
		want   []string
	}{
		{"all popular", FilterAll, SortPopular, []string{"모찌", "맥스", "쿠퍼", "루나", "심바", "봉봉"}},
		{"all latest", FilterAll, SortLatest, []string{"심바", "맥스", "봉봉", "모찌", "쿠퍼", "루나"}},
		{"cats popular", FilterCats, SortPopular, []string{"모찌", "루나", "심바"}},
		{"dogs latest", FilterDogs, SortLatest, []string{"맥스", "쿠퍼"}},
		{"rabbits", FilterRabbits, SortTrending, []string{"봉봉"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := titles(Apply(seedRows(), tt.filter, tt.sort))
			if !equalStrings(got, tt.want) {
				t.Errorf("Apply = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	rows := seedRows()
	Apply(rows, FilterAll, SortPopular)
	if rows[0].Title != "루나" {
		t.Errorf("input reordered: first = %q", rows[0].Title)
	}
}

func TestApply_TrendingPrefersNewerOnEqualLikes(t *testing.T) {
	rows := []model.BuildWithLike{
		{Build: model.Build{Title: "old", Likes: 100, PublishedAt: date("2025-01-01")}},
		{Build: model.Build{Title: "new", Likes: 100, PublishedAt: date("2025-03-01")}},
	}
	got := titles(Apply(rows, FilterAll, SortTrending))
	if !equalStrings(got, []string{"new", "old"}) {
		t.Errorf("trending = %v", got)
	}
}

func TestTrendingScore(t *testing.T) {
	b := model.Build{Likes: 10, PublishedAt: time.UnixMilli(1e10)}
	if got := TrendingScore(b); got != 8 {
		t.Errorf("TrendingScore = %v, want 8", got)
	}
}

func TestParseFilterAndSort(t *testing.T) {
	if ParseFilter("cats") != FilterCats || ParseFilter("unknown") != FilterAll || ParseFilter("") != FilterAll {
		t.Error("ParseFilter mismatch")
	}
	if ParseSort("latest") != SortLatest || ParseSort("trending") != SortTrending || ParseSort("x") != SortPopular {
		t.Error("ParseSort mismatch")
	}
}

func TestLabels(t *testing.T) {
	wantFilters := []string{"전체", "고양이", "강아지", "토끼"}
	for i, f := range Filters {
		if f.Label() != wantFilters[i] {
			t.Errorf("%s.Label() = %q, want %q", f, f.Label(), wantFilters[i])
		}
	}
	wantSorts := []string{"인기순", "최신순", "트렌딩"}
	for i, s := range Sorts {
		if s.Label() != wantSorts[i] {
			t.Errorf("%s.Label() = %q, want %q", s, s.Label(), wantSorts[i])
		}
	}
}

func TestFormatLikes(t *testing.T) {
	tests := map[int]string{0: "0", 56: "56", 999: "999", 1000: "1.0k", 1200: "1.2k", 1201: "1.2k"}
	for n, want := range tests {
		if got := FormatLikes(n); got != want {
			t.Errorf("FormatLikes(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestService_List_MarksLikedBuilds(t *testing.T) {
	builds := &mockBuildRepo{listFn: func(context.Context) ([]*model.Build, error) { return seedBuilds(), nil }}
	likes := &mockLikeRepo{likedFn: func(_ context.Context, subjectID string) (map[string]bool, error) {
		if subjectID != "123" {
			t.Errorf("subjectID = %q", subjectID)
		}
		return map[string]bool{"3": true}, nil
	}}

	listing, err := newTestService(builds, likes).List(context.Background(), &model.UserProfile{SubjectID: "123"}, FilterCats, SortPopular)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if listing.Count != 3 || len(listing.Builds) != 3 {
		t.Fatalf("Count = %d, want 3", listing.Count)
	}
	if !listing.Builds[0].Liked || listing.Builds[1].Liked {
		t.Errorf("liked flags = %v, %v", listing.Builds[0].Liked, listing.Builds[1].Liked)
	}
}

func TestService_List_WithoutUser_SkipsLikes(t *testing.T) {
	builds := &mockBuildRepo{listFn: func(context.Context) ([]*model.Build, error) { return seedBuilds(), nil }}
	likes := &mockLikeRepo{likedFn: func(context.Context, string) (map[string]bool, error) {
		t.Error("likes must not be queried without a user")
		return nil, nil
	}}

	listing, err := newTestService(builds, likes).List(context.Background(), nil, FilterAll, SortLatest)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if listing.Count != 6 {
		t.Errorf("Count = %d, want 6", listing.Count)
	}
}

func TestService_List_RepositoryError(t *testing.T) {
	builds := &mockBuildRepo{listFn: func(context.Context) ([]*model.Build, error) { return nil, errors.New("db down") }}
	if _, err := newTestService(builds, &mockLikeRepo{}).List(context.Background(), nil, FilterAll, SortPopular); err == nil {
		t.Fatal("expected error")
	}
}

func TestService_ToggleLike(t *testing.T) {
	user := &model.UserProfile{SubjectID: "123"}

	t.Run("logged out", func(t *testing.T) {
		svc := newTestService(&mockBuildRepo{}, &mockLikeRepo{})
		if _, err := svc.ToggleLike(context.Background(), nil, "1"); !errors.Is(err, ErrLoginRequired) {
			t.Errorf("err = %v, want ErrLoginRequired", err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		builds := &mockBuildRepo{findByIDFn: func(context.Context, string) (*model.Build, error) { return nil, nil }}
		svc := newTestService(builds, &mockLikeRepo{})
		if _, err := svc.ToggleLike(context.Background(), user, "missing"); !errors.Is(err, ErrBuildNotFound) {
			t.Errorf("err = %v, want ErrBuildNotFound", err)
		}
	})

	t.Run("toggles twice", func(t *testing.T) {
		state := map[string]bool{}
		builds := &mockBuildRepo{findByIDFn: func(_ context.Context, id string) (*model.Build, error) {
			return &model.Build{ID: id}, nil
		}}
		likes := &mockLikeRepo{toggleFn: func(_ context.Context, subjectID, buildID string) (bool, error) {
			key := subjectID + "/" + buildID
			state[key] = !state[key]
			return state[key], nil
		}}
		svc := newTestService(builds, likes)

		first, err := svc.ToggleLike(context.Background(), user, "1")
		if err != nil || !first {
			t.Fatalf("first toggle = %v, %v", first, err)
		}
		second, err := svc.ToggleLike(context.Background(), user, "1")
		if err != nil || second {
			t.Fatalf("second toggle = %v, %v", second, err)
		}
	})
}
