package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/memoman/internal/auth"
)

// --- モック定義 ---

type mockResolver struct {
	resolveFn func(ctx context.Context, r *http.Request) (*auth.Identity, error)
}

func (m *mockResolver) Resolve(ctx context.Context, r *http.Request) (*auth.Identity, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, r)
	}
	return nil, auth.ErrNoCredential
}

// recordingMetrics は認可失敗の理由ラベルを記録するメトリクスコレクター。
type recordingMetrics struct {
	authFailures []string
}

func (m *recordingMetrics) RecordHTTPStatus(statusCode int)                          {}
func (m *recordingMetrics) RecordAuthFailure(reason string)                          { m.authFailures = append(m.authFailures, reason) }
func (m *recordingMetrics) RecordTokenExchange(duration time.Duration, success bool) {}
func (m *recordingMetrics) RecordJWKSRefresh()                                       {}
func (m *recordingMetrics) RecordNoteCreated()                                       {}

// --- テスト ---

func TestAuthMiddleware_ValidCredential_InjectsIdentity(t *testing.T) {
	resolver := &mockResolver{
		resolveFn: func(ctx context.Context, r *http.Request) (*auth.Identity, error) {
			return &auth.Identity{UserID: "auth0|user-1", Name: "山田太郎"}, nil
		},
	}

	var gotIdentity *auth.Identity
	handler := NewAuthMiddleware(resolver, &recordingMetrics{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := IdentityFromContext(r.Context())
		if err != nil {
			t.Errorf("expected identity in context, got error %v", err)
		}
		gotIdentity = identity
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotIdentity == nil || gotIdentity.UserID != "auth0|user-1" {
		t.Errorf("identity = %+v, want UserID auth0|user-1", gotIdentity)
	}
}

func TestAuthMiddleware_NoCredential_Returns401(t *testing.T) {
	metrics := &recordingMetrics{}
	var handlerCalled bool
	handler := NewAuthMiddleware(&mockResolver{}, metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	// 下流ハンドラーは実行されないこと
	if handlerCalled {
		t.Error("downstream handler should not be called")
	}

	if len(metrics.authFailures) != 1 || metrics.authFailures[0] != "no_credential" {
		t.Errorf("auth failure reasons = %v, want [no_credential]", metrics.authFailures)
	}

	// 統一エラーフォーマットであること
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["code"] != "UNAUTHORIZED" {
		t.Errorf("code = %q, want %q", body["code"], "UNAUTHORIZED")
	}
}

// 資格情報の欠落・無効・ストア障害のいずれでも応答ボディは同一
func TestAuthMiddleware_FailureResponsesAreUniform(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantReason string
	}{
		{"no credential", auth.ErrNoCredential, "no_credential"},
		{"invalid credential", fmt.Errorf("%w: expired", auth.ErrInvalidCredential), "invalid_credential"},
		{"resolver error", errors.New("connection refused"), "resolver_error"},
	}

	var bodies []string
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			metrics := &recordingMetrics{}
			resolver := &mockResolver{
				resolveFn: func(ctx context.Context, r *http.Request) (*auth.Identity, error) {
					return nil, tc.err
				},
			}
			handler := NewAuthMiddleware(resolver, metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

			req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if len(metrics.authFailures) != 1 || metrics.authFailures[0] != tc.wantReason {
				t.Errorf("auth failure reasons = %v, want [%s]", metrics.authFailures, tc.wantReason)
			}
			bodies = append(bodies, w.Body.String())
		})
	}

	for i := 1; i < len(bodies); i++ {
		if bodies[i] != bodies[0] {
			t.Error("401 response bodies should be identical across failure causes")
		}
	}
}

func TestIdentityFromContext_NotSet_ReturnsError(t *testing.T) {
	if _, err := IdentityFromContext(context.Background()); err == nil {
		t.Fatal("expected error for context without identity")
	}
}

func TestUserIDFromContext_ReturnsUserID(t *testing.T) {
	ctx := ContextWithIdentity(context.Background(), &auth.Identity{UserID: "auth0|user-1"})

	userID, err := UserIDFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if userID != "auth0|user-1" {
		t.Errorf("userID = %q, want %q", userID, "auth0|user-1")
	}
}
