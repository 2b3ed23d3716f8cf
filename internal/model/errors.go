// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeTokenExpired    = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid    = "TOKEN_INVALID"
	ErrCodeValidationError = "VALIDATION_ERROR"
	ErrCodeAuthFailure     = "AUTH_FAILURE"
	ErrCodeUnknownError    = "UNKNOWN_ERROR"
)

// NewTokenExpiredError はログイントークン期限切れエラーを生成する。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExpired,
		Message:  "ログイントークンの有効期限が切れています。",
		Category: "auth",
		Action:   "ブリッジボットに再度ログインを依頼し、新しいリンクを取得してください。",
	}
}

// NewTokenInvalidError は不正なログイントークンのエラーを生成する。
func NewTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenInvalid,
		Message:  "ログイントークンが無効です。",
		Category: "auth",
		Action:   "リンクが正しくコピーされているか確認し、新しいリンクを取得してください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationError,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewAuthFailureError は認証失敗エラーを生成する。
// reasonはバックエンドが報告した人間可読の失敗理由。
func NewAuthFailureError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailure,
		Message:  fmt.Sprintf("ログインに失敗しました: %s", reason),
		Category: "auth",
		Action:   "新しいリンクを取得して再度ログインしてください。",
	}
}

// NewUnknownError は原因不明のエラーを生成する。
// 通信エラーや不正なレスポンスなど、認証結果として解釈できない失敗に使用する。
func NewUnknownError() *APIError {
	return &APIError{
		Code:     ErrCodeUnknownError,
		Message:  "予期しないエラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから新しいリンクで再度お試しください。",
	}
}

// TransportError はネットワークレベルの失敗を表す。
// バックエンドが報告する認証失敗（AUTH_FAILURE）とは区別し、
// 意味的な結果として解釈してはならない。呼び出し元は常にUnknownErrorへ
// ルーティングする。
type TransportError struct {
	Op  string // 失敗した操作名（check_token, start_login, submit_credential等）
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error in %s: %v", e.Op, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError はTransportErrorを生成する。
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

// IsTransportError はエラーがTransportErrorかどうかを判定する。
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
