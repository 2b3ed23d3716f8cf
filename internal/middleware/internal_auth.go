package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/hitoshi/bridgelogin/internal/model"
)

// NewInternalAuthMiddleware は内部エンドポイント用の共有シークレット認証ミドルウェアを返す。
// ブリッジ本体だけがトークン発行エンドポイントを呼べるように、
// Authorization: Bearer <secret> の一致を要求する。比較は定数時間で行う。
func NewInternalAuthMiddleware(sharedSecret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(sharedSecret)) != 1 {
				WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
					Code:     "UNAUTHORIZED",
					Message:  "認証が必要です。",
					Category: "auth",
					Action:   "共有シークレットを確認してください。",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
