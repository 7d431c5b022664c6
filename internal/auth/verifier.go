package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims はトークンから取り出すクレーム。
// アクセストークンにはプロファイルクレームは含まれないため、subのみが保証される。
type Claims struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Verifier はissuerの鍵セットに対してJWTの署名とクレームを検証する。
// IDトークン検証（audience = client id）とアクセストークン検証
// （audience = API identifier）の両方でaudienceを変えて使用する。
type Verifier struct {
	jwks     *JWKSCache
	issuer   string
	audience string
	parser   *jwt.Parser
}

// NewVerifier はVerifierを生成する。
// 受理する署名アルゴリズムはRS256のみ。exp検証は必須とし、30秒のleewayを許容する。
func NewVerifier(jwks *JWKSCache, issuer, audience string) *Verifier {
	return &Verifier{
		jwks:     jwks,
		issuer:   issuer,
		audience: audience,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256"}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		),
	}
}

// Verify はトークンを検証し、クレームを返す。
// 署名不正・期限切れ・issuer/audience不一致・アルゴリズム不一致はすべてエラー。
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token header missing kid")
		}
		return v.jwks.Key(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}

	return claims, nil
}
