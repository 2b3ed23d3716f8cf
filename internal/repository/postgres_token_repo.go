package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/bridgelogin/internal/model"
)

// PostgresTokenRepo はPostgreSQLを使用したログイントークンリポジトリ。
type PostgresTokenRepo struct {
	db *sql.DB
}

// NewPostgresTokenRepo はPostgresTokenRepoを生成する。
func NewPostgresTokenRepo(db *sql.DB) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: db}
}

// Create はログイントークンを作成する。
func (r *PostgresTokenRepo) Create(ctx context.Context, token *model.LoginToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO login_tokens (value, mxid, state, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		token.Value, token.MXID, token.State, token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create login token: %w", err)
	}
	return nil
}

// FindByValue は指定値のトークンを取得する。見つからない場合はnilを返す。
func (r *PostgresTokenRepo) FindByValue(ctx context.Context, value string) (*model.LoginToken, error) {
	token := &model.LoginToken{}
	err := r.db.QueryRowContext(ctx,
		`SELECT value, mxid, state, expires_at, created_at
		 FROM login_tokens
		 WHERE value = $1`,
		value,
	).Scan(&token.Value, &token.MXID, &token.State, &token.ExpiresAt, &token.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find login token: %w", err)
	}

	return token, nil
}

// MarkInUse は未使用かつ期限内のトークンをin_use状態に原子的に遷移させる。
// WHERE句で状態と期限を同時に検査するため、並行したstartLoginのうち
// 成功するのは1つだけになる。
func (r *PostgresTokenRepo) MarkInUse(ctx context.Context, value string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE login_tokens
		 SET state = $1
		 WHERE value = $2 AND state = $3 AND expires_at > now()`,
		model.TokenStateInUse, value, model.TokenStatePending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark token in use: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return affected == 1, nil
}

// MarkConsumed はトークンをconsumed状態に遷移させる。
func (r *PostgresTokenRepo) MarkConsumed(ctx context.Context, value string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE login_tokens SET state = $1 WHERE value = $2`,
		model.TokenStateConsumed, value,
	)
	if err != nil {
		return fmt.Errorf("failed to mark token consumed: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れからretentionを超過したトークンを削除する。
func (r *PostgresTokenRepo) DeleteExpired(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM login_tokens WHERE expires_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}

	return deleted, nil
}

// compile-time interface check
var _ TokenRepository = (*PostgresTokenRepo)(nil)
