// Package apiclient はブリッジバックエンドのログインAPIを呼び出す
// 薄いリクエスト/レスポンスラッパーを提供する。
// トランスポートレベルの失敗（接続拒否、タイムアウト、5xx、不正なレスポンス）は
// すべてmodel.TransportErrorとして返し、認証結果として解釈しない。
// 再試行は一切行わない（復旧はユーザーによる新しいディープリンクの取得のみ）。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/bridgelogin/internal/model"
)

const (
	checkPath  = "/api/login/check"
	startPath  = "/api/login/start"
	submitPath = "/api/login/submit"

	// maxResponseBytes はバックエンドレスポンスの最大読み取りサイズ。
	maxResponseBytes = 1 << 20 // 1MiB
)

// Client はブリッジバックエンドのログインAPIクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// checkRequest はcheckTokenのリクエストボディ。
type checkRequest struct {
	Token string `json:"token"`
}

// checkResponse はcheckTokenのレスポンスボディ。
type checkResponse struct {
	Status string `json:"status"`
	MXID   string `json:"mxid,omitempty"`
}

// CheckToken はトークンの状態をバックエンドに問い合わせる。
// バックエンドの状態を変更しない純粋な分類呼び出し。
func (c *Client) CheckToken(ctx context.Context, token string) (*model.TokenCheck, error) {
	var resp checkResponse
	if err := c.post(ctx, "check_token", checkPath, checkRequest{Token: token}, &resp); err != nil {
		return nil, err
	}

	status := model.TokenStatus(resp.Status)
	switch status {
	case model.TokenValid, model.TokenExpired, model.TokenInvalid:
		// 既知のステータスのみ受け付ける
	default:
		return nil, model.NewTransportError("check_token",
			fmt.Errorf("unknown token status %q", resp.Status))
	}

	return &model.TokenCheck{Status: status, MXID: resp.MXID}, nil
}

// startRequest はstartLoginのリクエストボディ。
type startRequest struct {
	Token string `json:"token"`
}

// startResponse はstartLoginのレスポンスボディ。
type startResponse struct {
	Handle          string `json:"handle"`
	InstructionsURL string `json:"instructions_url"`
}

// StartLogin は手動認証フローの開始をバックエンドに通知する。
// 成功時は提出時に使用する相関ハンドルと案内URLを返す。
// バックエンドはトークンを使用中としてマークし、同一トークンへの
// 2回目のstartを拒否する。
func (c *Client) StartLogin(ctx context.Context, token string) (*model.LoginHandle, error) {
	var resp startResponse
	if err := c.post(ctx, "start_login", startPath, startRequest{Token: token}, &resp); err != nil {
		return nil, err
	}

	if resp.Handle == "" {
		return nil, model.NewTransportError("start_login",
			fmt.Errorf("backend response missing handle"))
	}

	return &model.LoginHandle{
		ID:              resp.Handle,
		InstructionsURL: resp.InstructionsURL,
	}, nil
}

// submitRequest はsubmitCredentialのリクエストボディ。
type submitRequest struct {
	Handle     string `json:"handle"`
	Credential string `json:"credential"`
}

// submitResponse はsubmitCredentialのレスポンスボディ。
type submitResponse struct {
	Status      string `json:"status"`
	DisplayName string `json:"display_name,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// SubmitCredential は取得済みの認可Cookieをバックエンドに提出する。
// バックエンドはプロバイダーとの交換を行い、成功（表示名付き）または
// 失敗（理由付き）を報告する。ハンドルは単回使用。
// 失敗レスポンス（fail）は認証上の結果でありエラーではない。
func (c *Client) SubmitCredential(ctx context.Context, handle, credential string) (*model.LoginOutcome, error) {
	var resp submitResponse
	if err := c.post(ctx, "submit_credential", submitPath, submitRequest{Handle: handle, Credential: credential}, &resp); err != nil {
		return nil, err
	}

	switch model.OutcomeStatus(resp.Status) {
	case model.OutcomeSuccess:
		if resp.DisplayName == "" {
			return nil, model.NewTransportError("submit_credential",
				fmt.Errorf("success outcome missing display name"))
		}
		return &model.LoginOutcome{
			Status:      model.OutcomeSuccess,
			DisplayName: resp.DisplayName,
		}, nil
	case model.OutcomeFailure:
		return &model.LoginOutcome{
			Status: model.OutcomeFailure,
			Reason: resp.Reason,
		}, nil
	default:
		return nil, model.NewTransportError("submit_credential",
			fmt.Errorf("unknown outcome status %q", resp.Status))
	}
}

// post はJSONリクエストを送信し、2xxレスポンスをoutにデコードする。
// それ以外はすべてTransportErrorとして返す。認証情報を含むリクエストボディは
// ログに出力しない。
func (c *Client) post(ctx context.Context, op, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return model.NewTransportError(op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return model.NewTransportError(op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("バックエンドAPIの呼び出しに失敗しました",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return model.NewTransportError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return model.NewTransportError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("バックエンドAPIがエラーステータスを返しました",
			slog.String("op", op),
			slog.Int("http_status", resp.StatusCode),
		)
		return model.NewTransportError(op,
			fmt.Errorf("backend returned status %d", resp.StatusCode))
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("バックエンドレスポンスのパースに失敗しました",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return model.NewTransportError(op, err)
	}

	return nil
}
