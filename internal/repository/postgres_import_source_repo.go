package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/pawbox/pawbox/internal/model"
)

// PostgresImportSourceRepo はPostgreSQLを使用した取り込み元フィードリポジトリ。
type PostgresImportSourceRepo struct {
	db *sql.DB
}

// NewPostgresImportSourceRepo はPostgresImportSourceRepoを生成する。
func NewPostgresImportSourceRepo(db *sql.DB) *PostgresImportSourceRepo {
	return &PostgresImportSourceRepo{db: db}
}

// Register は設定されたフィードURLを登録する。登録済みのURLは変更しない。
func (r *PostgresImportSourceRepo) Register(ctx context.Context, feedURLs []string) error {
	if len(feedURLs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO showcase_sources (feed_url, fetch_status, next_fetch_at, created_at, updated_at)
		 SELECT u, 'active', now(), now(), now() FROM unnest($1::text[]) AS u
		 ON CONFLICT (feed_url) DO NOTHING`,
		pq.Array(feedURLs),
	)
	if err != nil {
		return fmt.Errorf("取り込み元フィードの登録に失敗しました: %w", err)
	}
	return nil
}

// ListDueForFetch は取得対象のフィードを取得する。
func (r *PostgresImportSourceRepo) ListDueForFetch(ctx context.Context) ([]*model.ImportSource, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT feed_url, title, etag, last_modified, fetch_status, consecutive_errors,
		        error_message, next_fetch_at, created_at, updated_at
		 FROM showcase_sources
		 WHERE next_fetch_at <= now()
		   AND fetch_status = 'active'
		 ORDER BY next_fetch_at ASC
		 FOR UPDATE SKIP LOCKED`,
	)
	if err != nil {
		return nil, fmt.Errorf("取得対象フィードの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var sources []*model.ImportSource
	for rows.Next() {
		src := &model.ImportSource{}
		var title, etag, lastModified, errorMessage sql.NullString
		if err := rows.Scan(
			&src.FeedURL, &title, &etag, &lastModified, &src.FetchStatus, &src.ConsecutiveErrors,
			&errorMessage, &src.NextFetchAt, &src.CreatedAt, &src.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("取得対象フィードの読み取りに失敗しました: %w", err)
		}
		src.Title = nullStringValue(title)
		src.ETag = nullStringValue(etag)
		src.LastModified = nullStringValue(lastModified)
		src.ErrorMessage = nullStringValue(errorMessage)
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("取得対象フィードの走査に失敗しました: %w", err)
	}
	return sources, nil
}

// UpdateFetchState はフィードの取得状態を更新する。
func (r *PostgresImportSourceRepo) UpdateFetchState(ctx context.Context, src *model.ImportSource) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE showcase_sources SET
		    title = $2,
		    fetch_status = $3,
		    consecutive_errors = $4,
		    error_message = $5,
		    next_fetch_at = $6,
		    etag = $7,
		    last_modified = $8,
		    updated_at = now()
		 WHERE feed_url = $1`,
		src.FeedURL,
		nullString(src.Title),
		src.FetchStatus,
		src.ConsecutiveErrors,
		nullString(src.ErrorMessage),
		src.NextFetchAt,
		nullString(src.ETag),
		nullString(src.LastModified),
	)
	if err != nil {
		return fmt.Errorf("取得状態の更新に失敗しました: %w", err)
	}
	return nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ ImportSourceRepository = (*PostgresImportSourceRepo)(nil)
