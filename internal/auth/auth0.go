package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Auth0Config はAuth0テナントの設定。
type Auth0Config struct {
	Domain       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Audience を指定すると認可リクエストでAPI用アクセストークンを要求する。
	Audience string

	// テスト用にオーバーライド可能なURL
	AuthorizeURL string
	TokenURL     string
	LogoutURL    string

	// IdPへのサーバー間通信のタイムアウト。未指定の場合は10秒。
	Timeout time.Duration
}

// Auth0Provider はAuth0による認可コードフローを提供する。
type Auth0Provider struct {
	config Auth0Config
	client *http.Client
}

// NewAuth0Provider はAuth0Providerを生成する。
func NewAuth0Provider(config Auth0Config) *Auth0Provider {
	if config.AuthorizeURL == "" {
		config.AuthorizeURL = "https://" + config.Domain + "/authorize"
	}
	if config.TokenURL == "" {
		config.TokenURL = "https://" + config.Domain + "/oauth/token"
	}
	if config.LogoutURL == "" {
		config.LogoutURL = "https://" + config.Domain + "/v2/logout"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &Auth0Provider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// LoginURL はAuth0の認可エンドポイントURLを生成する。
// スコープにはopenid, profile, emailを含む。
func (p *Auth0Provider) LoginURL(state string) string {
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"scope":         {"openid profile email"},
		"state":         {state},
	}
	if p.config.Audience != "" {
		params.Set("audience", p.config.Audience)
	}
	return p.config.AuthorizeURL + "?" + params.Encode()
}

// LogoutURL はAuth0のRP-Initiated LogoutエンドポイントURLを生成する。
// ログアウト完了後はreturnToにリダイレクトされる。
func (p *Auth0Provider) LogoutURL(returnTo string) string {
	params := url.Values{
		"client_id": {p.config.ClientID},
		"returnTo":  {returnTo},
	}
	return p.config.LogoutURL + "?" + params.Encode()
}

// tokenRequest はAuth0のトークンエンドポイントへのリクエストボディ。
// Auth0はJSONボディを受け付ける。
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
}

// tokenResponse はAuth0のトークンエンドポイントのレスポンス。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// TokenSet はコード交換で得たトークン一式。
type TokenSet struct {
	AccessToken string
	IDToken     string
	ExpiresIn   int
}

// ExchangeCode は認可コードをトークンに交換する。
// タイムアウトはクライアント側で制限されており、リクエストが無期限にブロックすることはない。
func (p *Auth0Provider) ExchangeCode(ctx context.Context, code string) (*TokenSet, error) {
	reqBody, err := json.Marshal(tokenRequest{
		GrantType:    "authorization_code",
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		Code:         code,
		RedirectURI:  p.config.RedirectURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.IDToken == "" {
		return nil, fmt.Errorf("empty id_token in response")
	}

	return &TokenSet{
		AccessToken: tokenResp.AccessToken,
		IDToken:     tokenResp.IDToken,
		ExpiresIn:   tokenResp.ExpiresIn,
	}, nil
}

// compile-time interface check
var _ OIDCProvider = (*Auth0Provider)(nil)
