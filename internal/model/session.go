// Package model はドメインモデルを定義する。
package model

// ViewState はログインセッションの表示状態を表す。
// 常にちょうど1つの状態がアクティブであり、対応するパネルのみが表示される。
type ViewState string

const (
	// StateLoading はトークン検証中の初期状態。
	StateLoading ViewState = "loading"
	// StateTokenExpired はトークン期限切れの終端状態。
	StateTokenExpired ViewState = "token_expired"
	// StateTokenInvalid はトークン不正の終端状態。
	StateTokenInvalid ViewState = "token_invalid"
	// StateAwaitingStart はトークン検証済みでユーザーの開始操作待ちの状態。
	StateAwaitingStart ViewState = "awaiting_start"
	// StateAwaitingCredential は認可Cookieの入力待ちの状態。
	StateAwaitingCredential ViewState = "awaiting_credential"
	// StateSubmitting は認証情報をバックエンドに提出中の状態。
	StateSubmitting ViewState = "submitting"
	// StateSuccess はログイン成功の終端状態。
	StateSuccess ViewState = "success"
	// StateFailure は認証失敗の終端状態。
	StateFailure ViewState = "failure"
	// StateUnknownError は通信エラー等による原因不明の終端状態。
	StateUnknownError ViewState = "unknown_error"
)

// IsTerminal は終端状態（これ以上の遷移もネットワーク呼び出しも行わない状態）
// かどうかを返す。
func (s ViewState) IsTerminal() bool {
	switch s {
	case StateTokenExpired, StateTokenInvalid, StateSuccess, StateFailure, StateUnknownError:
		return true
	}
	return false
}

// LoginSession はポータル側のログインセッション集約。
// コントローラーが排他的に所有し、ページの生存期間と同じライフサイクルを持つ。
// 認可Cookieの値は保持しない（提出に必要な間だけ一時的に扱う）。
type LoginSession struct {
	Token       string       // ディープリンクから読み取ったトークン。読み取り後は不変
	MXID        string       // 表示専用のMatrixユーザーID。認証情報として送信されることはない
	State       ViewState    // 現在の表示状態
	Handle      *LoginHandle // startLogin成功後に設定される相関ハンドル
	DisplayName string       // ログイン成功時に設定される表示名
	ErrorDetail string       // 失敗時の詳細（任意）
}

// NewLoginSession は初期状態（Loading）のLoginSessionを生成する。
func NewLoginSession(token string) *LoginSession {
	return &LoginSession{
		Token: token,
		State: StateLoading,
	}
}
