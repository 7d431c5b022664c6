package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/memoman/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "bff_session"

// Identity はリクエストから解決されたユーザー識別情報。
// 表示フィールドはsessionモードでのみ埋まる。bearerモードではUserID（sub）のみ。
type Identity struct {
	UserID  string
	Name    string
	Email   string
	Picture string
}

// 認可失敗の分類。ミドルウェアがメトリクスの理由ラベルに使用する。
var (
	// ErrNoCredential はリクエストが資格情報を一切持たないことを示す。
	ErrNoCredential = errors.New("no credential in request")
	// ErrInvalidCredential は資格情報が無効・期限切れ・検証不能であることを示す。
	ErrInvalidCredential = errors.New("invalid credential")
)

// Resolver はリクエストから身元を解決する単一の能力。
// デプロイメントごとに1つの実装だけが構成され、
// 下流ハンドラーはどの戦略が身元を解決したかを知らない。
type Resolver interface {
	// Resolve はリクエストが有効な身元の証明を持つ場合にIdentityを返す。
	// 持たない場合はErrNoCredentialまたはErrInvalidCredentialをラップしたエラーを返す。
	Resolve(ctx context.Context, r *http.Request) (*Identity, error)
}

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// SessionResolver はHTTP Only Cookieのセッションから身元を解決する。
type SessionResolver struct {
	sessions SessionFinder
}

// NewSessionResolver はSessionResolverを生成する。
func NewSessionResolver(sessions SessionFinder) *SessionResolver {
	return &SessionResolver{sessions: sessions}
}

// Resolve はセッションCookieを検証し、保存されたプロファイルスナップショットから
// Identityを組み立てる。期限切れ・破棄済みセッションはErrInvalidCredential。
func (r *SessionResolver) Resolve(ctx context.Context, req *http.Request) (*Identity, error) {
	cookie, err := req.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoCredential
	}

	session, err := r.sessions.FindByID(ctx, cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session not found or expired", ErrInvalidCredential)
	}

	return &Identity{
		UserID:  session.UserID,
		Name:    session.Profile.Name,
		Email:   session.Profile.Email,
		Picture: session.Profile.Picture,
	}, nil
}

// AccessTokenVerifier はアクセストークンの検証に必要なインターフェース。
type AccessTokenVerifier interface {
	Verify(ctx context.Context, tokenString string) (*Claims, error)
}

// BearerResolver はAuthorizationヘッダーのBearerトークンから身元を解決する。
// トークンをフロントエンドが取得して保持する構成でも、サーバー側の検証は同一。
type BearerResolver struct {
	verifier AccessTokenVerifier
}

// NewBearerResolver はBearerResolverを生成する。
func NewBearerResolver(verifier AccessTokenVerifier) *BearerResolver {
	return &BearerResolver{verifier: verifier}
}

// Resolve はBearerトークンを検証し、subクレームをIdentityとして返す。
// アクセストークンには表示フィールドは含まれない。
func (r *BearerResolver) Resolve(ctx context.Context, req *http.Request) (*Identity, error) {
	header := req.Header.Get("Authorization")
	if header == "" {
		return nil, ErrNoCredential
	}

	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return nil, fmt.Errorf("%w: malformed authorization header", ErrInvalidCredential)
	}
	tokenString := strings.TrimSpace(header[len(prefix):])
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty bearer token", ErrInvalidCredential)
	}

	claims, err := r.verifier.Verify(ctx, tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	return &Identity{UserID: claims.Subject}, nil
}

// compile-time interface checks
var (
	_ Resolver = (*SessionResolver)(nil)
	_ Resolver = (*BearerResolver)(nil)
)
