package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/bridgelogin/internal/login"
	"github.com/hitoshi/bridgelogin/internal/model"
)

// TokenMinterInterface はトークン発行ハンドラーが必要とするサービスインターフェース。
type TokenMinterInterface interface {
	// MakeToken は指定MXID向けのワンタイムトークンとディープリンクを発行する。
	MakeToken(ctx context.Context, mxid string) (*login.MintedToken, error)
}

// TokenHandler は内部向けトークン発行のHTTPハンドラー。
// ブリッジ本体がloginコマンドの処理中に呼び出す。共有シークレット認証の
// ミドルウェアの内側に配置すること。
type TokenHandler struct {
	service TokenMinterInterface
}

// NewTokenHandler はTokenHandlerを生成する。
func NewTokenHandler(service TokenMinterInterface) *TokenHandler {
	return &TokenHandler{service: service}
}

// mintRequest はPOST /internal/tokensのリクエストボディ。
type mintRequest struct {
	MXID string `json:"mxid"`
}

// mintResponse はPOST /internal/tokensのレスポンスボディ。
type mintResponse struct {
	Token     string    `json:"token"`
	LoginURL  string    `json:"login_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MintToken はワンタイムトークンを発行する。
// POST /internal/tokens
func (h *TokenHandler) MintToken(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("リクエストボディが不正です。"))
		return
	}

	minted, err := h.service.MakeToken(r.Context(), req.MXID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, mintResponse{
		Token:     minted.Token.Value,
		LoginURL:  minted.LoginURL,
		ExpiresAt: minted.ExpiresAt,
	})
}
