// Package auth はOAuth2/OIDC認可フロー、セッション管理、トークン検証を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/memoman/internal/metrics"
	"github.com/hitoshi/memoman/internal/model"
	"github.com/hitoshi/memoman/internal/repository"
)

// OIDCProvider はIdPとの対話のインターフェース。
type OIDCProvider interface {
	// LoginURL は認可エンドポイントURLを生成する。
	LoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換する。
	ExchangeCode(ctx context.Context, code string) (*TokenSet, error)
	// LogoutURL はIdPのログアウトURLを生成する。
	LogoutURL(returnTo string) string
}

// IDTokenVerifier はIDトークンの検証に必要なインターフェース。
type IDTokenVerifier interface {
	Verify(ctx context.Context, tokenString string) (*Claims, error)
}

// ServiceConfig は認可サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認可コードフローの完了とセッションのライフサイクルを担う。
type Service struct {
	provider OIDCProvider
	verifier IDTokenVerifier
	users    repository.UserRepository
	sessions repository.SessionRepository
	metrics  metrics.MetricsCollector
	config   ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	provider OIDCProvider,
	verifier IDTokenVerifier,
	users repository.UserRepository,
	sessions repository.SessionRepository,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	return &Service{
		provider: provider,
		verifier: verifier,
		users:    users,
		sessions: sessions,
		metrics:  collector,
		config:   config,
	}
}

// LoginURL は認可エンドポイントURLを生成する。
func (s *Service) LoginURL(state string) string {
	return s.provider.LoginURL(state)
}

// LogoutURL はIdPのログアウトURLを生成する。
func (s *Service) LogoutURL(returnTo string) string {
	return s.provider.LogoutURL(returnTo)
}

// HandleCallback は認可コードをトークンに交換し、セッションを発行する。
//
// IDトークンはサーバー間チャネルで受け取るが、署名はここでもJWKSに対して
// 検証する。チャネルの信頼だけに依存しないための明示的な設計判断。
// ユーザー行は初回ログイン時に遅延作成され、以降は表示フィールドのみ更新される。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	start := time.Now()
	tokens, err := s.provider.ExchangeCode(ctx, code)
	s.metrics.RecordTokenExchange(time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	claims, err := s.verifier.Verify(ctx, tokens.IDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id token: %w", err)
	}

	user := &model.User{
		ID:      claims.Subject,
		Name:    claims.Name,
		Email:   claims.Email,
		Picture: claims.Picture,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	session, err := s.createSession(ctx, user, tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
	)

	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// createSession はセッションを作成し永続化する。
// プロファイルスナップショットとIdPトークンをセッションに保持する。
func (s *Service) createSession(ctx context.Context, user *model.User, tokens *TokenSet) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:     sessionID,
		UserID: user.ID,
		Profile: model.SessionProfile{
			Name:    user.Name,
			Email:   user.Email,
			Picture: user.Picture,
		},
		Tokens: model.SessionTokens{
			AccessToken: tokens.AccessToken,
			IDToken:     tokens.IDToken,
		},
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
