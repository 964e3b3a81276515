package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pawbox/pawbox/internal/model"
)

// PostgresBuildRepo はPostgreSQLを使用したショーケース作品リポジトリ。
type PostgresBuildRepo struct {
	db *sql.DB
}

// NewPostgresBuildRepo はPostgresBuildRepoを生成する。
func NewPostgresBuildRepo(db *sql.DB) *PostgresBuildRepo {
	return &PostgresBuildRepo{db: db}
}

const buildColumns = `b.id, b.source_url, b.guid, b.title, b.subtitle, b.category, b.image_url,
		        b.author, b.author_image, b.aspect, b.likes + COUNT(l.build_id),
		        b.published_at, b.created_at, b.updated_at`

// List は全作品をいいね数込みで取得する。
func (r *PostgresBuildRepo) List(ctx context.Context) ([]*model.Build, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+buildColumns+`
		 FROM showcase_builds b
		 LEFT JOIN showcase_likes l ON l.build_id = b.id
		 GROUP BY b.id
		 ORDER BY b.published_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("作品一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var builds []*model.Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("作品行の読み取りに失敗しました: %w", err)
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("作品一覧の走査に失敗しました: %w", err)
	}
	return builds, nil
}

// FindByID は指定IDの作品を取得する。見つからない場合はnilを返す。
func (r *PostgresBuildRepo) FindByID(ctx context.Context, id string) (*model.Build, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+buildColumns+`
		 FROM showcase_builds b
		 LEFT JOIN showcase_likes l ON l.build_id = b.id
		 WHERE b.id = $1
		 GROUP BY b.id`,
		id,
	)
	b, err := scanBuild(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("作品の取得に失敗しました: %w", err)
	}
	return b, nil
}

// Upsert は取り込んだ作品を(source_url, guid)で冪等にUPSERTする。
// 既存作品のいいね数と作成日時は維持する。
func (r *PostgresBuildRepo) Upsert(ctx context.Context, b *model.Build) (bool, error) {
	var created bool
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO showcase_builds
		    (id, source_url, guid, title, subtitle, category, image_url, author, author_image,
		     aspect, likes, published_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		 ON CONFLICT (source_url, guid) DO UPDATE SET
		    title = EXCLUDED.title,
		    subtitle = EXCLUDED.subtitle,
		    category = EXCLUDED.category,
		    image_url = EXCLUDED.image_url,
		    author = EXCLUDED.author,
		    author_image = EXCLUDED.author_image,
		    published_at = EXCLUDED.published_at,
		    updated_at = now()
		 RETURNING (xmax = 0)`,
		b.ID, b.SourceURL, b.GUID, b.Title, b.Subtitle, string(b.Category), b.ImageURL,
		b.Author, b.AuthorImage, b.Aspect, b.Likes, b.PublishedAt,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("作品のUPSERTに失敗しました: %w", err)
	}
	return created, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBuild(s rowScanner) (*model.Build, error) {
	b := &model.Build{}
	var category string
	if err := s.Scan(
		&b.ID, &b.SourceURL, &b.GUID, &b.Title, &b.Subtitle, &category, &b.ImageURL,
		&b.Author, &b.AuthorImage, &b.Aspect, &b.Likes,
		&b.PublishedAt, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.Category = model.Category(category)
	return b, nil
}

// compile-time interface check
var _ BuildRepository = (*PostgresBuildRepo)(nil)
