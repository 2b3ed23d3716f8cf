package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/bridgelogin/internal/login"
	"github.com/hitoshi/bridgelogin/internal/metrics"
	"github.com/hitoshi/bridgelogin/internal/model"
)

// mockLoginService はLoginServiceInterfaceのモック実装。
type mockLoginService struct {
	checkTokenFunc       func(ctx context.Context, value string) (*model.TokenCheck, error)
	startLoginFunc       func(ctx context.Context, value string) (*model.LoginHandle, error)
	submitCredentialFunc func(ctx context.Context, handleID, credential string) (*model.LoginOutcome, error)
}

func (m *mockLoginService) CheckToken(ctx context.Context, value string) (*model.TokenCheck, error) {
	if m.checkTokenFunc != nil {
		return m.checkTokenFunc(ctx, value)
	}
	return &model.TokenCheck{Status: model.TokenValid, MXID: "@alice:example.org"}, nil
}

func (m *mockLoginService) StartLogin(ctx context.Context, value string) (*model.LoginHandle, error) {
	if m.startLoginFunc != nil {
		return m.startLoginFunc(ctx, value)
	}
	return &model.LoginHandle{ID: "h1", InstructionsURL: "https://chat.example.com/help"}, nil
}

func (m *mockLoginService) SubmitCredential(ctx context.Context, handleID, credential string) (*model.LoginOutcome, error) {
	if m.submitCredentialFunc != nil {
		return m.submitCredentialFunc(ctx, handleID, credential)
	}
	return &model.LoginOutcome{Status: model.OutcomeSuccess, DisplayName: "Alice"}, nil
}

func newTestLoginHandler(service LoginServiceInterface) *LoginHandler {
	return NewLoginHandler(service, metrics.NewCollector(prometheus.NewRegistry()))
}

func postJSON(t *testing.T, handlerFunc http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handlerFunc(rec, req)
	return rec
}

func TestLoginHandler_CheckToken(t *testing.T) {
	tests := []struct {
		name       string
		check      *model.TokenCheck
		wantStatus string
		wantMXID   string
	}{
		{
			name:       "有効なトークン",
			check:      &model.TokenCheck{Status: model.TokenValid, MXID: "@alice:example.org"},
			wantStatus: "valid",
			wantMXID:   "@alice:example.org",
		},
		{
			name:       "期限切れのトークン",
			check:      &model.TokenCheck{Status: model.TokenExpired},
			wantStatus: "expired",
		},
		{
			name:       "不明なトークン",
			check:      &model.TokenCheck{Status: model.TokenInvalid},
			wantStatus: "invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestLoginHandler(&mockLoginService{
				checkTokenFunc: func(ctx context.Context, value string) (*model.TokenCheck, error) {
					return tt.check, nil
				},
			})

			rec := postJSON(t, h.CheckToken, "/api/login/check", `{"token":"dGVzdC10b2tlbi0wMDAx"}`)

			// 分類はHTTPステータスではなくボディで表す
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}

			var resp struct {
				Status string `json:"status"`
				MXID   string `json:"mxid"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("レスポンスのパースに失敗: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.MXID != tt.wantMXID {
				t.Errorf("mxid = %q, want %q", resp.MXID, tt.wantMXID)
			}
		})
	}
}

func TestLoginHandler_CheckToken_InvalidBody(t *testing.T) {
	h := newTestLoginHandler(&mockLoginService{})

	rec := postJSON(t, h.CheckToken, "/api/login/check", `{invalid`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestLoginHandler_StartLogin(t *testing.T) {
	h := newTestLoginHandler(&mockLoginService{})

	rec := postJSON(t, h.StartLogin, "/api/login/start", `{"token":"dGVzdC10b2tlbi0wMDAx"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Handle          string `json:"handle"`
		InstructionsURL string `json:"instructions_url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if resp.Handle != "h1" {
		t.Errorf("handle = %q, want %q", resp.Handle, "h1")
	}
	if resp.InstructionsURL != "https://chat.example.com/help" {
		t.Errorf("instructions_url = %q", resp.InstructionsURL)
	}
}

func TestLoginHandler_StartLogin_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "期限切れは410", err: model.NewTokenExpiredError(), wantCode: http.StatusGone},
		{name: "無効トークンは404", err: model.NewTokenInvalidError(), wantCode: http.StatusNotFound},
		{name: "その他は500", err: errors.New("db down"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestLoginHandler(&mockLoginService{
				startLoginFunc: func(ctx context.Context, value string) (*model.LoginHandle, error) {
					return nil, tt.err
				},
			})

			rec := postJSON(t, h.StartLogin, "/api/login/start", `{"token":"dGVzdC10b2tlbi0wMDAx"}`)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}

			var resp struct {
				Code string `json:"code"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("レスポンスのパースに失敗: %v", err)
			}
			if resp.Code == "" {
				t.Error("エラーコードがない")
			}
		})
	}
}

func TestLoginHandler_SubmitCredential_Success(t *testing.T) {
	h := newTestLoginHandler(&mockLoginService{
		submitCredentialFunc: func(ctx context.Context, handleID, credential string) (*model.LoginOutcome, error) {
			if handleID != "h1" || credential != "cookie-xyz" {
				t.Errorf("handle = %q, credential = %q", handleID, credential)
			}
			return &model.LoginOutcome{Status: model.OutcomeSuccess, DisplayName: "Alice"}, nil
		},
	})

	rec := postJSON(t, h.SubmitCredential, "/api/login/submit", `{"handle":"h1","credential":"cookie-xyz"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Status      string `json:"status"`
		DisplayName string `json:"display_name"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if resp.Status != "success" || resp.DisplayName != "Alice" {
		t.Errorf("status = %q, display_name = %q", resp.Status, resp.DisplayName)
	}
}

func TestLoginHandler_SubmitCredential_FailureIs200(t *testing.T) {
	h := newTestLoginHandler(&mockLoginService{
		submitCredentialFunc: func(ctx context.Context, handleID, credential string) (*model.LoginOutcome, error) {
			return &model.LoginOutcome{Status: model.OutcomeFailure, Reason: "Cookieが無効です"}, nil
		},
	})

	rec := postJSON(t, h.SubmitCredential, "/api/login/submit", `{"handle":"h1","credential":"bad"}`)

	// 認証失敗は意味的な結果なので200で返す
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if resp.Status != "fail" {
		t.Errorf("status = %q, want %q", resp.Status, "fail")
	}
	if resp.Reason != "Cookieが無効です" {
		t.Errorf("reason = %q", resp.Reason)
	}
}

func TestLoginHandler_SubmitCredential_TransportErrorIs502(t *testing.T) {
	h := newTestLoginHandler(&mockLoginService{
		submitCredentialFunc: func(ctx context.Context, handleID, credential string) (*model.LoginOutcome, error) {
			return nil, model.NewTransportError("provider_exchange", errors.New("connection refused"))
		},
	})

	rec := postJSON(t, h.SubmitCredential, "/api/login/submit", `{"handle":"h1","credential":"cookie-xyz"}`)

	// 通信エラーは認証失敗と区別して非2xxで返す
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}

	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if resp.Code != model.ErrCodeUnknownError {
		t.Errorf("code = %q, want %q", resp.Code, model.ErrCodeUnknownError)
	}
}

func TestLoginHandler_SubmitCredential_EmptyCredentialIs400(t *testing.T) {
	h := newTestLoginHandler(&mockLoginService{
		submitCredentialFunc: func(ctx context.Context, handleID, credential string) (*model.LoginOutcome, error) {
			return nil, model.NewValidationError("認可Cookieを入力してください。")
		},
	})

	rec := postJSON(t, h.SubmitCredential, "/api/login/submit", `{"handle":"h1","credential":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// mintのテストで使うモック。
type mockTokenMinter struct {
	makeTokenFunc func(ctx context.Context, mxid string) (*login.MintedToken, error)
}

func (m *mockTokenMinter) MakeToken(ctx context.Context, mxid string) (*login.MintedToken, error) {
	if m.makeTokenFunc != nil {
		return m.makeTokenFunc(ctx, mxid)
	}
	return nil, errors.New("not implemented")
}
