package portal

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/bridgelogin/internal/model"
)

// mockBackendChecker はBackendCheckerのモック実装。
type mockBackendChecker struct {
	checkTokenFunc func(ctx context.Context, token string) (*model.TokenCheck, error)
	calls          int
}

func (m *mockBackendChecker) CheckToken(ctx context.Context, token string) (*model.TokenCheck, error) {
	m.calls++
	if m.checkTokenFunc != nil {
		return m.checkTokenFunc(ctx, token)
	}
	return &model.TokenCheck{Status: model.TokenValid}, nil
}

func TestTokenValidator_Validate_MalformedTokensFailFast(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{name: "空のトークン", token: ""},
		{name: "短すぎるトークン", token: "abc123"},
		{name: "不正な文字を含むトークン", token: "abcdef0123456789!@#$"},
		{name: "空白を含むトークン", token: "abcdef0123456789 xyz"},
		{name: "base64標準アルファベットのパディング", token: "abcdef0123456789=="},
		{name: "スラッシュを含むトークン", token: "abcdef/0123456789abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockBackendChecker{}
			validator := NewTokenValidator(mock)

			check, err := validator.Validate(context.Background(), tt.token)
			if err != nil {
				t.Fatalf("予期しないエラー: %v", err)
			}
			if check.Status != model.TokenInvalid {
				t.Errorf("Status = %v, want %v", check.Status, model.TokenInvalid)
			}
			if mock.calls != 0 {
				t.Errorf("形式不正のトークンでバックエンドが呼ばれた: %d回", mock.calls)
			}
		})
	}
}

func TestTokenValidator_Validate_WellFormedTokenDelegates(t *testing.T) {
	tests := []struct {
		name       string
		status     model.TokenStatus
		mxid       string
		wantStatus model.TokenStatus
	}{
		{name: "有効なトークン", status: model.TokenValid, mxid: "@alice:example.org", wantStatus: model.TokenValid},
		{name: "期限切れのトークン", status: model.TokenExpired, wantStatus: model.TokenExpired},
		{name: "不明なトークン", status: model.TokenInvalid, wantStatus: model.TokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockBackendChecker{
				checkTokenFunc: func(ctx context.Context, token string) (*model.TokenCheck, error) {
					return &model.TokenCheck{Status: tt.status, MXID: tt.mxid}, nil
				},
			}
			validator := NewTokenValidator(mock)

			check, err := validator.Validate(context.Background(), "abcdef0123456789_-AZ")
			if err != nil {
				t.Fatalf("予期しないエラー: %v", err)
			}
			if check.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v", check.Status, tt.wantStatus)
			}
			if check.MXID != tt.mxid {
				t.Errorf("MXID = %q, want %q", check.MXID, tt.mxid)
			}
			if mock.calls != 1 {
				t.Errorf("バックエンド呼び出し回数 = %d, want 1", mock.calls)
			}
		})
	}
}

func TestTokenValidator_Validate_TransportErrorPropagates(t *testing.T) {
	transportErr := model.NewTransportError("backend_check", errors.New("connection refused"))
	mock := &mockBackendChecker{
		checkTokenFunc: func(ctx context.Context, token string) (*model.TokenCheck, error) {
			return nil, transportErr
		},
	}
	validator := NewTokenValidator(mock)

	_, err := validator.Validate(context.Background(), "abcdef0123456789abcd")
	if err == nil {
		t.Fatal("トランスポートエラーが伝播していない")
	}
	if !model.IsTransportError(err) {
		t.Errorf("トランスポートエラーとして分類されていない: %v", err)
	}
}

func TestIsWellFormed(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{name: "URL-safe base64の典型的なトークン", token: "dGhpcy1pcy1hLXRva2Vu_-09", want: true},
		{name: "最小長ちょうど", token: "abcdefgh12345678", want: true},
		{name: "最小長未満", token: "abcdefgh1234567", want: false},
		{name: "空文字列", token: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isWellFormed(tt.token); got != tt.want {
				t.Errorf("isWellFormed(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}
