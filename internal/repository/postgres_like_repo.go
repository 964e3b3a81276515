package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresLikeRepo はPostgreSQLを使用したいいねリポジトリ。
type PostgresLikeRepo struct {
	db *sql.DB
}

// NewPostgresLikeRepo はPostgresLikeRepoを生成する。
func NewPostgresLikeRepo(db *sql.DB) *PostgresLikeRepo {
	return &PostgresLikeRepo{db: db}
}

// LikedBuildIDs はユーザーがいいねした作品IDの集合を返す。
func (r *PostgresLikeRepo) LikedBuildIDs(ctx context.Context, subjectID string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT build_id FROM showcase_likes WHERE subject_id = $1`,
		subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("いいね一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	liked := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("いいね行の読み取りに失敗しました: %w", err)
		}
		liked[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("いいね一覧の走査に失敗しました: %w", err)
	}
	return liked, nil
}

// Toggle はいいねを反転し、反転後の状態を返す。
// 削除と作成を同一トランザクションで行う。
func (r *PostgresLikeRepo) Toggle(ctx context.Context, subjectID, buildID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM showcase_likes WHERE subject_id = $1 AND build_id = $2`,
		subjectID, buildID,
	)
	if err != nil {
		return false, fmt.Errorf("いいねの削除に失敗しました: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}

	liked := removed == 0
	if liked {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO showcase_likes (subject_id, build_id, created_at)
			 VALUES ($1, $2, now())
			 ON CONFLICT DO NOTHING`,
			subjectID, buildID,
		); err != nil {
			return false, fmt.Errorf("いいねの作成に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return liked, nil
}

// compile-time interface check
var _ LikeRepository = (*PostgresLikeRepo)(nil)
