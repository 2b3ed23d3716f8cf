// Package portal はディープリンクから始まるログインハンドシェイクの
// クライアント側を提供する。トークン検証、ログインセッションの状態機械、
// 状態に対応するパネルの描画を含む。
package portal

import (
	"context"

	"github.com/hitoshi/bridgelogin/internal/model"
)

// minTokenLength はトークンとして受け付ける最小文字数。
// バックエンドが発行するトークンはこれより十分長いため、
// 短すぎる値は問い合わせるまでもなく不正と分類できる。
const minTokenLength = 16

// BackendChecker はトークン検証が必要とするバックエンド操作のインターフェース。
// apiclient.Clientの部分集合として定義する。
type BackendChecker interface {
	CheckToken(ctx context.Context, token string) (*model.TokenCheck, error)
}

// TokenValidator はログイントークンを検証し、valid/expired/invalidのいずれかに
// 分類する。ネットワーク呼び出し以外の副作用を持たない純粋な分類ステップ。
type TokenValidator struct {
	backend BackendChecker
}

// NewTokenValidator はTokenValidatorを生成する。
func NewTokenValidator(backend BackendChecker) *TokenValidator {
	return &TokenValidator{backend: backend}
}

// Validate はトークンを分類する。
// 欠落または形式不正のトークンはネットワーク呼び出しなしでinvalidに分類する
// （フェイルファスト）。それ以外はバックエンドに問い合わせる。
// トランスポートレベルの失敗はエラーとして返し、決して分類結果として
// 解釈しない（呼び出し元がUnknownErrorへルーティングする）。
func (v *TokenValidator) Validate(ctx context.Context, token string) (*model.TokenCheck, error) {
	if !isWellFormed(token) {
		return &model.TokenCheck{Status: model.TokenInvalid}, nil
	}

	return v.backend.CheckToken(ctx, token)
}

// isWellFormed はトークンが構文的に正しいかを検証する。
// バックエンドはbase64.RawURLEncodingでトークンを発行するため、
// URL-safeなbase64アルファベット以外の文字を含むものは不正。
func isWellFormed(token string) bool {
	if len(token) < minTokenLength {
		return false
	}
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
