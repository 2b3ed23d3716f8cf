// Package login はログインハンドシェイクのバックエンド側ドメインロジックを提供する。
// トークンの発行と分類、ログイン開始、認可Cookieの提出処理を含む。
package login

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/bridgelogin/internal/model"
	"github.com/hitoshi/bridgelogin/internal/provider"
	"github.com/hitoshi/bridgelogin/internal/repository"
	"github.com/hitoshi/bridgelogin/internal/security"
)

// tokenByteLength は発行するトークンの乱数バイト長。
// base64.RawURLEncodingで43文字のトークンになる。
const tokenByteLength = 32

// Exchanger は認可Cookieの交換機能のインターフェース。
// provider.Clientが実装する。
type Exchanger interface {
	Exchange(ctx context.Context, credential string) (*provider.Account, error)
}

// Service はログインハンドシェイクのサービス層。
type Service struct {
	tokenRepo       repository.TokenRepository
	requestRepo     repository.RequestRepository
	exchanger       Exchanger
	sanitizer       security.TextSanitizerService
	logger          *slog.Logger
	tokenTTL        time.Duration
	baseURL         string
	instructionsURL string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	tokenRepo repository.TokenRepository,
	requestRepo repository.RequestRepository,
	exchanger Exchanger,
	sanitizer security.TextSanitizerService,
	logger *slog.Logger,
	tokenTTL time.Duration,
	baseURL string,
	instructionsURL string,
) *Service {
	return &Service{
		tokenRepo:       tokenRepo,
		requestRepo:     requestRepo,
		exchanger:       exchanger,
		sanitizer:       sanitizer,
		logger:          logger,
		tokenTTL:        tokenTTL,
		baseURL:         strings.TrimRight(baseURL, "/"),
		instructionsURL: instructionsURL,
	}
}

// MintedToken はMakeTokenの結果を表す。
type MintedToken struct {
	Token     *model.LoginToken
	LoginURL  string // ユーザーに送信するディープリンク
	ExpiresAt time.Time
}

// MakeToken は指定されたMatrixユーザー向けのワンタイムトークンを発行し、
// ディープリンクURLを組み立てる。ブリッジボットのloginコマンドから呼ばれる。
func (s *Service) MakeToken(ctx context.Context, mxid string) (*MintedToken, error) {
	mxid = strings.TrimSpace(mxid)
	if mxid == "" {
		return nil, model.NewValidationError("MXIDを指定してください。")
	}

	value, err := generateTokenValue()
	if err != nil {
		return nil, fmt.Errorf("トークンの生成に失敗しました: %w", err)
	}

	now := time.Now().UTC()
	token := &model.LoginToken{
		Value:     value,
		MXID:      mxid,
		State:     model.TokenStatePending,
		ExpiresAt: now.Add(s.tokenTTL),
		CreatedAt: now,
	}

	if err := s.tokenRepo.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("トークンの保存に失敗しました: %w", err)
	}

	s.logger.Info("ログイントークンを発行しました",
		slog.String("mxid", mxid),
		slog.String("token", truncateToken(value)),
		slog.Time("expires_at", token.ExpiresAt))

	return &MintedToken{
		Token:     token,
		LoginURL:  fmt.Sprintf("%s/login#%s", s.baseURL, value),
		ExpiresAt: token.ExpiresAt,
	}, nil
}

// CheckToken はトークンをvalid/expired/invalidのいずれかに分類する。
// 存在しない、または消費済みのトークンはinvalid。期限切れはexpired。
// それ以外（pendingまたはin_use）はvalidとし、対象のMXIDを返す。
func (s *Service) CheckToken(ctx context.Context, value string) (*model.TokenCheck, error) {
	token, err := s.tokenRepo.FindByValue(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("トークンの取得に失敗しました: %w", err)
	}
	if token == nil || token.State == model.TokenStateConsumed {
		return &model.TokenCheck{Status: model.TokenInvalid}, nil
	}
	if time.Now().After(token.ExpiresAt) {
		return &model.TokenCheck{Status: model.TokenExpired}, nil
	}

	return &model.TokenCheck{Status: model.TokenValid, MXID: token.MXID}, nil
}

// StartLogin はトークンを使用中に遷移させ、提出用の相関ハンドルを発行する。
// トークンは単回使用であり、すでに開始済み・消費済み・期限切れのトークンでは
// 開始できない。
func (s *Service) StartLogin(ctx context.Context, value string) (*model.LoginHandle, error) {
	token, err := s.tokenRepo.FindByValue(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("トークンの取得に失敗しました: %w", err)
	}
	if token == nil || token.State == model.TokenStateConsumed {
		return nil, model.NewTokenInvalidError()
	}
	if time.Now().After(token.ExpiresAt) {
		return nil, model.NewTokenExpiredError()
	}

	ok, err := s.tokenRepo.MarkInUse(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("トークンの状態更新に失敗しました: %w", err)
	}
	if !ok {
		// 並行したstartLoginに先を越されたか、その間に期限切れになった
		return nil, model.NewTokenInvalidError()
	}

	req := &model.LoginRequest{
		ID:         uuid.New().String(),
		TokenValue: value,
		MXID:       token.MXID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.requestRepo.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("ログインリクエストの作成に失敗しました: %w", err)
	}

	s.logger.Info("ログインを開始しました",
		slog.String("mxid", token.MXID),
		slog.String("token", truncateToken(value)),
		slog.String("handle", req.ID))

	return &model.LoginHandle{
		ID:              req.ID,
		InstructionsURL: s.instructionsURL,
	}, nil
}

// SubmitCredential は認可Cookieをプロバイダーと交換し、ログイン結果を返す。
// ハンドルは単回使用であり、同一ハンドルでの再提出は拒否される。
// プロバイダーによる拒否はLoginOutcome(fail)として返し、
// 通信エラーはmodel.TransportErrorとして返す。両者は決して混同しない。
// 認可Cookieの値は永続化もログ出力もしない。
func (s *Service) SubmitCredential(ctx context.Context, handleID, credential string) (*model.LoginOutcome, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, model.NewValidationError("認可Cookieを入力してください。")
	}

	req, err := s.requestRepo.FindByID(ctx, handleID)
	if err != nil {
		return nil, fmt.Errorf("ログインリクエストの取得に失敗しました: %w", err)
	}
	if req == nil {
		return nil, model.NewValidationError("ログインハンドルが無効です。ログインを最初からやり直してください。")
	}

	ok, err := s.requestRepo.MarkCompleted(ctx, handleID)
	if err != nil {
		return nil, fmt.Errorf("ログインリクエストの状態更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewValidationError("このログインはすでに処理されています。ログインを最初からやり直してください。")
	}

	account, err := s.exchanger.Exchange(ctx, credential)
	if err != nil {
		var rejected *provider.RejectedError
		if errors.As(err, &rejected) {
			reason := s.sanitizer.Sanitize(rejected.Reason)
			s.logger.Warn("プロバイダーが認可Cookieを拒否しました",
				slog.String("mxid", req.MXID),
				slog.String("handle", handleID))
			return &model.LoginOutcome{Status: model.OutcomeFailure, Reason: reason}, nil
		}
		// 通信エラーは認証失敗として扱わない
		return nil, err
	}

	if err := s.tokenRepo.MarkConsumed(ctx, req.TokenValue); err != nil {
		return nil, fmt.Errorf("トークンの消費に失敗しました: %w", err)
	}

	displayName := s.sanitizer.Sanitize(account.DisplayName)
	s.logger.Info("ログインに成功しました",
		slog.String("mxid", req.MXID),
		slog.String("handle", handleID),
		slog.String("remote_user_id", account.UserID))

	return &model.LoginOutcome{Status: model.OutcomeSuccess, DisplayName: displayName}, nil
}

// generateTokenValue は暗号学的乱数からURL-safeなトークン値を生成する。
func generateTokenValue() (string, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// truncateToken はログ出力用にトークンを先頭8文字に切り詰める。
func truncateToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}
