// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/memoman/internal/auth"
	"github.com/hitoshi/memoman/internal/metrics"
	"github.com/hitoshi/memoman/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに解決済みIdentityを格納するためのキー。
var identityContextKey = contextKey("identity")

// NewAuthMiddleware はリクエストから身元を解決するミドルウェアを返す。
// 解決済みIdentityをリクエストコンテキストに注入する。
// 未認可リクエストには下流ハンドラーを一切実行せず401を返す。
// どの戦略（セッション/Bearer）が身元を解決するかはresolverの実装が決める。
func NewAuthMiddleware(resolver auth.Resolver, collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := resolver.Resolve(r.Context(), r)
			if err != nil {
				collector.RecordAuthFailure(authFailureReason(err))
				if !errors.Is(err, auth.ErrNoCredential) && !errors.Is(err, auth.ErrInvalidCredential) {
					// 資格情報の問題ではなくストア側の障害。詳細はログにのみ残す。
					slog.Error("identity resolution failed",
						slog.String("error", err.Error()),
					)
				}
				writeUnauthorized(w)
				return
			}

			ctx := ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authFailureReason はメトリクスの理由ラベル用にエラーを分類する。
func authFailureReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrNoCredential):
		return "no_credential"
	case errors.Is(err, auth.ErrInvalidCredential):
		return "invalid_credential"
	default:
		return "resolver_error"
	}
}

// unauthorizedResponseBody は401応答の統一フォーマット。
type unauthorizedResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeUnauthorized は統一エラーフォーマットで401を書き込む。
// 資格情報が欠落・無効・期限切れのいずれであっても応答は同一とし、内部事情を漏らさない。
func writeUnauthorized(w http.ResponseWriter) {
	apiErr := model.NewUnauthorizedError()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(unauthorizedResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// IdentityFromContext はリクエストコンテキストから解決済みIdentityを取得する。
// 認可ミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (*auth.Identity, error) {
	identity, ok := ctx.Value(identityContextKey).(*auth.Identity)
	if !ok || identity == nil || identity.UserID == "" {
		return nil, fmt.Errorf("identity not found in context")
	}
	return identity, nil
}

// ContextWithIdentity はコンテキストにIdentityを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	identity, err := IdentityFromContext(ctx)
	if err != nil {
		return "", err
	}
	return identity.UserID, nil
}
