package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresKV はclient_storageテーブルを使用したKV。
type PostgresKV struct {
	db *sql.DB
}

// NewPostgresKV はPostgresKVを生成する。
func NewPostgresKV(db *sql.DB) *PostgresKV {
	return &PostgresKV{db: db}
}

// Get は値を取得する。
func (p *PostgresKV) Get(ctx context.Context, clientID, key string) (string, bool, error) {
	var value string
	err := p.db.QueryRowContext(ctx,
		`SELECT value FROM client_storage WHERE client_id = $1 AND key = $2`,
		clientID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get client storage value: %w", err)
	}
	return value, true, nil
}

// Set は値をUPSERTする。updated_atはクリーンアップジョブの判定に使用する。
func (p *PostgresKV) Set(ctx context.Context, clientID, key, value string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO client_storage (client_id, key, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (client_id, key)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		clientID, key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set client storage value: %w", err)
	}
	return nil
}

// Delete はキーを削除する。
func (p *PostgresKV) Delete(ctx context.Context, clientID, key string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM client_storage WHERE client_id = $1 AND key = $2`,
		clientID, key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete client storage value: %w", err)
	}
	return nil
}

// Touch はupdated_atのみを更新し、クリーンアップ対象から外す。
func (p *PostgresKV) Touch(ctx context.Context, clientID, key string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE client_storage SET updated_at = now() WHERE client_id = $1 AND key = $2`,
		clientID, key,
	)
	if err != nil {
		return fmt.Errorf("failed to touch client storage value: %w", err)
	}
	return nil
}

// compile-time interface check
var _ KV = (*PostgresKV)(nil)
