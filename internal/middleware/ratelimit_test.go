package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		LoginRate:       rate.Limit(1.0),
		LoginBurst:      3,
		SubmitRate:      rate.Limit(1.0),
		SubmitBurst:     2,
		CleanupInterval: time.Hour,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, handler http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/login/check", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_LoginMiddleware_BurstExceeded(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.LoginMiddleware()(okHandler())

	// バーストの範囲内は通過
	for i := 0; i < 3; i++ {
		rec := doRequest(t, handler, "192.0.2.1:45678")
		if rec.Code != http.StatusOK {
			t.Fatalf("リクエスト%d: status = %d, want 200", i+1, rec.Code)
		}
	}

	// バースト超過で429
	rec := doRequest(t, handler, "192.0.2.1:45678")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-Afterヘッダーがない")
	}
}

func TestRateLimiter_LimitsArePerIP(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.LoginMiddleware()(okHandler())

	// 1つ目のIPがバーストを使い切る
	for i := 0; i < 3; i++ {
		doRequest(t, handler, "192.0.2.1:45678")
	}
	if rec := doRequest(t, handler, "192.0.2.1:45678"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("IP1: status = %d, want 429", rec.Code)
	}

	// 別のIPは影響を受けない
	if rec := doRequest(t, handler, "192.0.2.2:45678"); rec.Code != http.StatusOK {
		t.Errorf("IP2: status = %d, want 200", rec.Code)
	}

	if got := rl.LoginLimiterCount(); got != 2 {
		t.Errorf("LoginLimiterCount = %d, want 2", got)
	}
}

func TestRateLimiter_SubmitIsIndependentOfLogin(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	loginHandler := rl.LoginMiddleware()(okHandler())
	submitHandler := rl.SubmitMiddleware()(okHandler())

	// ログイン側のバーストを使い切る
	for i := 0; i < 4; i++ {
		doRequest(t, loginHandler, "192.0.2.1:45678")
	}

	// 提出側は独立したバケットを持つ
	if rec := doRequest(t, submitHandler, "192.0.2.1:45678"); rec.Code != http.StatusOK {
		t.Errorf("submit: status = %d, want 200", rec.Code)
	}
}

func TestRateLimiter_SubmitBurstExceeded(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.SubmitMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		if rec := doRequest(t, handler, "192.0.2.1:45678"); rec.Code != http.StatusOK {
			t.Fatalf("リクエスト%d: status = %d, want 200", i+1, rec.Code)
		}
	}
	if rec := doRequest(t, handler, "192.0.2.1:45678"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		want       string
	}{
		{name: "IPv4とポート", remoteAddr: "192.0.2.1:45678", want: "192.0.2.1"},
		{name: "IPv6とポート", remoteAddr: "[2001:db8::1]:45678", want: "2001:db8::1"},
		{name: "ポートなし", remoteAddr: "192.0.2.1", want: "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
			}
		})
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.LoginMiddleware()(okHandler())
	doRequest(t, handler, "192.0.2.1:45678")

	if got := rl.LoginLimiterCount(); got != 1 {
		t.Fatalf("LoginLimiterCount = %d, want 1", got)
	}

	// 最終アクセスをTTL超過まで巻き戻してからクリーンアップ
	rl.loginMu.Lock()
	for _, il := range rl.loginLimiters {
		il.lastAccess = time.Now().Add(-3 * time.Hour)
	}
	rl.loginMu.Unlock()

	rl.cleanup()

	if got := rl.LoginLimiterCount(); got != 0 {
		t.Errorf("クリーンアップ後のLoginLimiterCount = %d, want 0", got)
	}
}
