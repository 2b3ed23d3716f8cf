package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/bridgelogin/internal/model"
)

// PostgresRequestRepo はPostgreSQLを使用したログインリクエストリポジトリ。
type PostgresRequestRepo struct {
	db *sql.DB
}

// NewPostgresRequestRepo はPostgresRequestRepoを生成する。
func NewPostgresRequestRepo(db *sql.DB) *PostgresRequestRepo {
	return &PostgresRequestRepo{db: db}
}

// Create はログインリクエストを作成する。
// token_valueにはUNIQUE制約があるため、同一トークンへの2つ目のリクエストは失敗する。
func (r *PostgresRequestRepo) Create(ctx context.Context, req *model.LoginRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO login_requests (id, token_value, mxid, created_at)
		 VALUES ($1, $2, $3, $4)`,
		req.ID, req.TokenValue, req.MXID, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create login request: %w", err)
	}
	return nil
}

// FindByID は指定IDのリクエストを取得する。見つからない場合はnilを返す。
func (r *PostgresRequestRepo) FindByID(ctx context.Context, id string) (*model.LoginRequest, error) {
	req := &model.LoginRequest{}
	var completedAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, token_value, mxid, created_at, completed_at
		 FROM login_requests
		 WHERE id = $1`,
		id,
	).Scan(&req.ID, &req.TokenValue, &req.MXID, &req.CreatedAt, &completedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find login request: %w", err)
	}

	if completedAt.Valid {
		req.CompletedAt = &completedAt.Time
	}

	return req, nil
}

// MarkCompleted は未処理のリクエストを処理済みに原子的に遷移させる。
// WHERE句でcompleted_at IS NULLを検査するため、並行した提出のうち
// 受け付けられるのは1つだけになる。
func (r *PostgresRequestRepo) MarkCompleted(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE login_requests
		 SET completed_at = now()
		 WHERE id = $1 AND completed_at IS NULL`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark request completed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return affected == 1, nil
}

// compile-time interface check
var _ RequestRepository = (*PostgresRequestRepo)(nil)
