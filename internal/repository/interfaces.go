// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/bridgelogin/internal/model"
)

// TokenRepository はログイントークンの永続化インターフェース。
type TokenRepository interface {
	// Create はログイントークンを作成する。
	Create(ctx context.Context, token *model.LoginToken) error

	// FindByValue は指定値のトークンを取得する。見つからない場合はnilを返す。
	// 期限切れや使用済みのトークンも返す（分類は呼び出し元が行う）。
	FindByValue(ctx context.Context, value string) (*model.LoginToken, error)

	// MarkInUse は未使用かつ期限内のトークンをin_use状態に原子的に遷移させる。
	// 遷移できた場合はtrueを返す。すでに使用中・消費済み・期限切れの場合はfalseを返す。
	// 同一トークンに対する並行したstartLoginの二重受け付けを防ぐ。
	MarkInUse(ctx context.Context, value string) (bool, error)

	// MarkConsumed はトークンをconsumed状態に遷移させる。
	MarkConsumed(ctx context.Context, value string) error

	// DeleteExpired は期限切れからretentionを超過したトークンを削除する。
	// 関連するlogin_requestsはCASCADE削除される。削除件数を返す。
	DeleteExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// RequestRepository はログインリクエスト（相関ハンドル）の永続化インターフェース。
type RequestRepository interface {
	// Create はログインリクエストを作成する。
	Create(ctx context.Context, req *model.LoginRequest) error

	// FindByID は指定IDのリクエストを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.LoginRequest, error)

	// MarkCompleted は未処理のリクエストを処理済みに原子的に遷移させる。
	// 遷移できた場合はtrueを返す。すでに処理済みの場合はfalseを返す。
	// 同一ハンドルに対する提出の二重受け付けを防ぐ。
	MarkCompleted(ctx context.Context, id string) (bool, error)
}
