// Package model はドメインモデルを定義する。
package model

import "time"

// TokenStatus はログイントークンの検証結果を表す。
type TokenStatus string

const (
	// TokenValid はトークンが有効であることを示す。
	TokenValid TokenStatus = "valid"
	// TokenExpired はトークンの有効期限が切れていることを示す。
	TokenExpired TokenStatus = "expired"
	// TokenInvalid はトークンが存在しない、形式不正、または使用済みであることを示す。
	TokenInvalid TokenStatus = "invalid"
)

// トークンの永続化上の状態。
const (
	// TokenStatePending は発行済みで未使用の状態。
	TokenStatePending = "pending"
	// TokenStateInUse はstartLogin済みで認証情報の提出待ちの状態。
	TokenStateInUse = "in_use"
	// TokenStateConsumed はログイン成功により消費された状態。
	TokenStateConsumed = "consumed"
)

// LoginToken はブリッジボットが発行するディープリンク用のワンタイムトークン。
// Matrixユーザーへのリンク送信時に作成され、ログイン成功で消費される。
type LoginToken struct {
	Value     string // URLに埋め込まれる不透明なトークン値
	MXID      string // 対象のMatrixユーザーID（例: @alice:example.org）
	State     string // pending / in_use / consumed
	ExpiresAt time.Time
	CreatedAt time.Time
}

// LoginRequest はstartLoginで発行される相関ハンドル。
// submitCredentialをstartLoginに紐付け、古いページからの再送を拒否する。
type LoginRequest struct {
	ID          string // UUID。クライアントに渡される不透明なハンドル
	TokenValue  string
	MXID        string
	CreatedAt   time.Time
	CompletedAt *time.Time // 提出処理済みの場合に設定される
}

// TokenCheck はcheckTokenの結果を表す。
// トークンが有効な場合のみMXIDが設定される。
type TokenCheck struct {
	Status TokenStatus
	MXID   string
}

// LoginHandle はstartLoginの結果を表す。
type LoginHandle struct {
	ID              string // 提出時に使用する相関ハンドル
	InstructionsURL string // 認可Cookieを取得するプロバイダーのログインURL
}

// OutcomeStatus はログイン提出の結果種別を表す。
type OutcomeStatus string

const (
	// OutcomeSuccess はバックエンドがログイン成功を報告したことを示す。
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeFailure はバックエンドが認証失敗を報告したことを示す。
	OutcomeFailure OutcomeStatus = "fail"
)

// LoginOutcome はsubmitCredentialの結果を表す。
// 成功時はDisplayName、失敗時はReasonが設定される。
type LoginOutcome struct {
	Status      OutcomeStatus
	DisplayName string // 認証されたリモートアカウントの表示名
	Reason      string // 人間可読の失敗理由
}
