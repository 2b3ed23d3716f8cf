package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/bridgelogin/internal/metrics"
	"github.com/hitoshi/bridgelogin/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ログインハンドシェイク
	LoginService LoginServiceInterface

	// 内部向けトークン発行
	TokenMinter  TokenMinterInterface
	SharedSecret string

	// ミドルウェア依存
	RateLimiter *middleware.RateLimiter
	Logger      *slog.Logger

	// メトリクス
	Collector metrics.MetricsCollector
	Gatherer  prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → RateLimit(ルート別)
//
// /internal/* は共有シークレット認証の内側に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	loginHandler := NewLoginHandler(deps.LoginService, deps.Collector)
	tokenHandler := NewTokenHandler(deps.TokenMinter)

	// ログインハンドシェイク（未認証、IP単位のレート制限）
	r.Route("/api/login", func(r chi.Router) {
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/check", loginHandler.CheckToken)
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/start", loginHandler.StartLogin)

		// 提出はプロバイダーへの外部リクエストを伴うため、より厳しい制限
		r.With(deps.RateLimiter.SubmitMiddleware()).Post("/submit", loginHandler.SubmitCredential)
	})

	// ブリッジ本体専用の内部エンドポイント
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewInternalAuthMiddleware(deps.SharedSecret))
		r.Post("/internal/tokens", tokenHandler.MintToken)
	})

	// 死活監視
	r.Get("/health", healthHandler)

	// Prometheusスクレイプ
	if deps.Gatherer != nil {
		r.Get("/metrics", metrics.Handler(deps.Gatherer).ServeHTTP)
	}

	return r
}

// healthHandler は死活監視用のレスポンスを返す。
// GET /health
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
