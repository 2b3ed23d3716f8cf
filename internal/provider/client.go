// Package provider はチャットプロバイダーとの認可Cookie交換機能を提供する。
// ユーザーが手動でコピーした認可Cookieをプロバイダーの自己情報APIに渡し、
// 認証されたアカウントの表示名を取得する。プログラム的なOAuthコールバックが
// 利用できないため、この交換がログイン成立の唯一の確認手段になる。
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/bridgelogin/internal/model"
)

const (
	// selfStatusPath はプロバイダーの自己ユーザー情報エンドポイントのパス。
	selfStatusPath = "/api/self_user_status"
	// authCookieName は認可Cookieの名前。ユーザーがコピーする値はこのCookieの中身。
	authCookieName = "COMPASS"
	// maxResponseBytes はプロバイダーレスポンスの最大読み取りサイズ。
	maxResponseBytes = 1 << 20 // 1MiB
)

// Account は認可Cookieの交換で得られたリモートアカウント情報を表す。
type Account struct {
	UserID      string
	DisplayName string
	Email       string
}

// RejectedError はプロバイダーが認可Cookieを拒否したことを表す。
// 通信エラー（model.TransportError）とは区別される。
type RejectedError struct {
	Reason string // 人間可読の拒否理由
}

// Error はerrorインターフェースを実装する。
func (e *RejectedError) Error() string {
	return fmt.Sprintf("provider rejected credential: %s", e.Reason)
}

// IsRejected はエラーがプロバイダーによる拒否かどうかを判定する。
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// Client はチャットプロバイダーAPIのクライアント。
// 認可Cookieを自己情報エンドポイントに渡し、アカウント情報を取得する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientにはsecurity.ExchangeGuardServiceが生成するSSRF防止付き
// クライアントを渡すことを想定している。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// selfStatusResponse はプロバイダーの自己情報APIのレスポンス形式。
type selfStatusResponse struct {
	User struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		Email       string `json:"email"`
	} `json:"user"`
	Error string `json:"error"`
}

// Exchange は認可Cookieをプロバイダーに渡し、アカウント情報を取得する。
// プロバイダーがCookieを拒否した場合はRejectedErrorを返す。
// 通信エラーや不正なレスポンスの場合はmodel.TransportErrorを返す。
// 認可Cookieの値はログに出力しない。
func (c *Client) Exchange(ctx context.Context, credential string) (*Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+selfStatusPath, nil)
	if err != nil {
		return nil, model.NewTransportError("provider_exchange", err)
	}
	req.AddCookie(&http.Cookie{Name: authCookieName, Value: "dynamite=" + credential})
	req.Header.Set("User-Agent", "BridgeLogin/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("プロバイダーAPIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, model.NewTransportError("provider_exchange", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.logger.Error("プロバイダーレスポンスの読み取りに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, model.NewTransportError("provider_exchange", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fallthrough to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// プロバイダーによる明示的な拒否。理由があれば取り出す
		reason := "認可Cookieが無効または期限切れです"
		var rejected selfStatusResponse
		if jsonErr := json.Unmarshal(body, &rejected); jsonErr == nil && rejected.Error != "" {
			reason = rejected.Error
		}
		c.logger.Warn("プロバイダーが認可Cookieを拒否しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, &RejectedError{Reason: reason}
	default:
		c.logger.Error("プロバイダーAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewTransportError("provider_exchange",
			fmt.Errorf("provider returned status %d", resp.StatusCode))
	}

	var result selfStatusResponse
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Error("プロバイダーレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, model.NewTransportError("provider_exchange", err)
	}

	if result.User.DisplayName == "" {
		// 成功レスポンスに表示名がないのはプロトコル違反として扱う
		return nil, model.NewTransportError("provider_exchange",
			fmt.Errorf("provider response missing display name"))
	}

	return &Account{
		UserID:      result.User.ID,
		DisplayName: result.User.DisplayName,
		Email:       result.User.Email,
	}, nil
}
