package portal

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/hitoshi/bridgelogin/internal/model"
)

// BackendClient はコントローラが必要とするバックエンド操作のインターフェース。
// apiclient.Clientが実装する。
type BackendClient interface {
	CheckToken(ctx context.Context, token string) (*model.TokenCheck, error)
	StartLogin(ctx context.Context, token string) (*model.LoginHandle, error)
	SubmitCredential(ctx context.Context, handle, credential string) (*model.LoginOutcome, error)
}

// Controller はログインセッションの状態機械を駆動する。
// 遷移はLoad、Start、Submitの3操作からのみ発生し、
// 同時に実行できるバックエンド呼び出しは常に1つまで。
// 終端状態（Success、Failure、UnknownError、TokenExpired、TokenInvalid）に
// 到達した後はいかなる操作も受け付けない。
type Controller struct {
	validator *TokenValidator
	backend   BackendClient
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight bool
	session  *model.LoginSession
}

// NewController は指定されたトークンでLoading状態のコントローラを生成する。
func NewController(validator *TokenValidator, backend BackendClient, logger *slog.Logger, token string) *Controller {
	return &Controller{
		validator: validator,
		backend:   backend,
		logger:    logger,
		session:   model.NewLoginSession(token),
	}
}

// Session は現在のセッションのスナップショットを返す。
func (c *Controller) Session() model.LoginSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.session
}

// State は現在の表示状態を返す。
func (c *Controller) State() model.ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.State
}

// begin は操作の前提条件を検査し、進行中フラグを立てる。
// 別の操作が進行中、または現在の状態がfromでない場合はエラーを返し、
// 状態は変更しない。
func (c *Controller) begin(from model.ViewState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight {
		return model.NewValidationError("別の処理が進行中です。完了までお待ちください。")
	}
	if c.session.State != from {
		if c.session.State.IsTerminal() {
			return model.NewValidationError("このセッションは終了しています。やり直すには新しいログインリンクを取得してください。")
		}
		return model.NewValidationError("現在の状態ではこの操作を実行できません。")
	}

	c.inFlight = true
	return nil
}

// end は進行中フラグを下ろし、遷移先の状態を記録する。
func (c *Controller) end(to model.ViewState, mutate func(*model.LoginSession)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inFlight = false
	c.session.State = to
	if mutate != nil {
		mutate(c.session)
	}
}

// Load はトークンを検証し、Loadingから次の状態へ遷移する。
// valid → AwaitingStart、expired → TokenExpired、invalid → TokenInvalid。
// トランスポート失敗はUnknownErrorへ遷移する（認証失敗とは決して混同しない）。
func (c *Controller) Load(ctx context.Context) (model.ViewState, error) {
	if err := c.begin(model.StateLoading); err != nil {
		return c.State(), err
	}

	check, err := c.validator.Validate(ctx, c.session.Token)
	if err != nil {
		c.logger.Error("トークン検証に失敗しました",
			slog.String("token", truncateToken(c.session.Token)),
			slog.String("error", err.Error()))
		c.end(model.StateUnknownError, nil)
		return model.StateUnknownError, nil
	}

	switch check.Status {
	case model.TokenValid:
		c.end(model.StateAwaitingStart, func(s *model.LoginSession) {
			s.MXID = check.MXID
		})
		return model.StateAwaitingStart, nil
	case model.TokenExpired:
		c.end(model.StateTokenExpired, nil)
		return model.StateTokenExpired, nil
	default:
		c.end(model.StateTokenInvalid, nil)
		return model.StateTokenInvalid, nil
	}
}

// Start はログイン開始をバックエンドに要求し、AwaitingStartから
// AwaitingCredentialへ遷移する。取得したハンドルは以降の提出で使用する。
// 失敗時はUnknownErrorへ遷移し、自動リトライは行わない。
func (c *Controller) Start(ctx context.Context) (model.ViewState, error) {
	if err := c.begin(model.StateAwaitingStart); err != nil {
		return c.State(), err
	}

	handle, err := c.backend.StartLogin(ctx, c.session.Token)
	if err != nil {
		c.logger.Error("ログイン開始に失敗しました",
			slog.String("token", truncateToken(c.session.Token)),
			slog.String("error", err.Error()))
		c.end(model.StateUnknownError, nil)
		return model.StateUnknownError, nil
	}

	c.end(model.StateAwaitingCredential, func(s *model.LoginSession) {
		s.Handle = handle
	})
	return model.StateAwaitingCredential, nil
}

// Submit は認可Cookieをバックエンドに提出する。
// 空または空白のみの入力はローカルで拒否し、状態を変更せず
// ネットワーク呼び出しも行わない。
// 提出中はSubmitting状態となり、結果に応じてSuccess、Failure、
// UnknownErrorのいずれかの終端状態へ遷移する。
// 資格情報はセッションに保持せず、ログにも出力しない。
func (c *Controller) Submit(ctx context.Context, credential string) (model.ViewState, error) {
	trimmed := strings.TrimSpace(credential)
	if trimmed == "" {
		return c.State(), model.NewValidationError("認可Cookieを入力してください。")
	}

	if err := c.begin(model.StateAwaitingCredential); err != nil {
		return c.State(), err
	}

	c.mu.Lock()
	c.session.State = model.StateSubmitting
	handle := c.session.Handle.ID
	c.mu.Unlock()

	outcome, err := c.backend.SubmitCredential(ctx, handle, trimmed)
	if err != nil {
		c.logger.Error("資格情報の提出に失敗しました",
			slog.String("handle", handle),
			slog.String("error", err.Error()))
		c.end(model.StateUnknownError, nil)
		return model.StateUnknownError, nil
	}

	if outcome.Status == model.OutcomeSuccess {
		c.end(model.StateSuccess, func(s *model.LoginSession) {
			s.DisplayName = outcome.DisplayName
		})
		return model.StateSuccess, nil
	}

	c.end(model.StateFailure, func(s *model.LoginSession) {
		s.ErrorDetail = outcome.Reason
	})
	return model.StateFailure, nil
}

// truncateToken はログ出力用にトークンを先頭8文字に切り詰める。
func truncateToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}
