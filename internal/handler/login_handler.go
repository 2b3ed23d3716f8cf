// Package handler はログインAPIのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/bridgelogin/internal/metrics"
	"github.com/hitoshi/bridgelogin/internal/middleware"
	"github.com/hitoshi/bridgelogin/internal/model"
)

// LoginServiceInterface はログインハンドラーが必要とするサービスインターフェース。
type LoginServiceInterface interface {
	// CheckToken はトークンをvalid/expired/invalidのいずれかに分類する。
	CheckToken(ctx context.Context, value string) (*model.TokenCheck, error)
	// StartLogin はトークンを消費予約し、提出用の相関ハンドルを発行する。
	StartLogin(ctx context.Context, value string) (*model.LoginHandle, error)
	// SubmitCredential は認可Cookieをプロバイダーと交換し、結果を返す。
	SubmitCredential(ctx context.Context, handleID, credential string) (*model.LoginOutcome, error)
}

// LoginHandler はログインハンドシェイクのHTTPハンドラー。
type LoginHandler struct {
	service   LoginServiceInterface
	collector metrics.MetricsCollector
}

// NewLoginHandler はLoginHandlerを生成する。
func NewLoginHandler(service LoginServiceInterface, collector metrics.MetricsCollector) *LoginHandler {
	return &LoginHandler{
		service:   service,
		collector: collector,
	}
}

// checkRequest はPOST /api/login/checkのリクエストボディ。
type checkRequest struct {
	Token string `json:"token"`
}

// checkResponse はPOST /api/login/checkのレスポンスボディ。
// 分類結果はHTTPステータスではなくstatusフィールドで表す。
type checkResponse struct {
	Status string `json:"status"`
	MXID   string `json:"mxid,omitempty"`
}

// CheckToken はトークンを分類して返す。
// POST /api/login/check
func (h *LoginHandler) CheckToken(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("リクエストボディが不正です。"))
		return
	}

	check, err := h.service.CheckToken(r.Context(), req.Token)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.collector.RecordTokenCheck(string(check.Status))
	writeJSONResponse(w, http.StatusOK, checkResponse{
		Status: string(check.Status),
		MXID:   check.MXID,
	})
}

// startRequest はPOST /api/login/startのリクエストボディ。
type startRequest struct {
	Token string `json:"token"`
}

// startResponse はPOST /api/login/startのレスポンスボディ。
type startResponse struct {
	Handle          string `json:"handle"`
	InstructionsURL string `json:"instructions_url"`
}

// StartLogin はログインを開始し、相関ハンドルを返す。
// POST /api/login/start
func (h *LoginHandler) StartLogin(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("リクエストボディが不正です。"))
		return
	}

	handle, err := h.service.StartLogin(r.Context(), req.Token)
	if err != nil {
		h.collector.RecordLoginStart(metrics.ResultError)
		handleServiceError(w, err)
		return
	}

	h.collector.RecordLoginStart(metrics.ResultOK)
	writeJSONResponse(w, http.StatusOK, startResponse{
		Handle:          handle.ID,
		InstructionsURL: handle.InstructionsURL,
	})
}

// submitRequest はPOST /api/login/submitのリクエストボディ。
type submitRequest struct {
	Handle     string `json:"handle"`
	Credential string `json:"credential"`
}

// submitResponse はPOST /api/login/submitのレスポンスボディ。
// 認証の成否はHTTPステータスではなくstatusフィールドで表す。
// 通信エラー等の原因不明の失敗のみ非2xxになる。
type submitResponse struct {
	Status      string `json:"status"`
	DisplayName string `json:"display_name,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// SubmitCredential は認可Cookieを提出し、ログイン結果を返す。
// POST /api/login/submit
func (h *LoginHandler) SubmitCredential(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("リクエストボディが不正です。"))
		return
	}

	start := time.Now()
	outcome, err := h.service.SubmitCredential(r.Context(), req.Handle, req.Credential)
	h.collector.RecordExchangeLatency(time.Since(start))

	if err != nil {
		if model.IsTransportError(err) {
			// プロバイダーとの通信失敗は認証失敗として報告しない
			h.collector.RecordSubmitOutcome(metrics.OutcomeTransport)
			slog.Error("プロバイダーとの交換に失敗しました", slog.String("error", err.Error()))
			writeAPIErrorResponse(w, http.StatusBadGateway, model.NewUnknownError())
			return
		}
		handleServiceError(w, err)
		return
	}

	h.collector.RecordSubmitOutcome(string(outcome.Status))
	writeJSONResponse(w, http.StatusOK, submitResponse{
		Status:      string(outcome.Status),
		DisplayName: outcome.DisplayName,
		Reason:      outcome.Reason,
	})
}

// writeJSONResponse はJSONレスポンスを書き込む。
func writeJSONResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeTokenExpired:
		return http.StatusGone
	case model.ErrCodeTokenInvalid:
		return http.StatusNotFound
	case model.ErrCodeValidationError:
		return http.StatusBadRequest
	case model.ErrCodeAuthFailure:
		return http.StatusUnauthorized
	case model.ErrCodeUnknownError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
