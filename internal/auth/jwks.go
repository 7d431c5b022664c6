package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/memoman/internal/metrics"
)

// minRefreshInterval は未知のkidによる再取得の最小間隔。
// 署名検証失敗のたびにIdPへ取得が飛ぶことを防ぐ。
const minRefreshInterval = time.Minute

// JWKSCache はissuerの公開鍵セットをプロセス全体でキャッシュする。
// 鍵はkidで索引し、未知のkidに遭遇した場合のみ再取得する。
// 取得はミューテックスで直列化され、並行する検証リクエストはキャッシュを共有する。
type JWKSCache struct {
	jwksURL string
	client  *http.Client
	metrics metrics.MetricsCollector

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	lastFetch time.Time
}

// NewJWKSCache はJWKSCacheを生成する。
// clientがnilの場合は10秒タイムアウトのクライアントを使用する。
func NewJWKSCache(jwksURL string, client *http.Client, collector metrics.MetricsCollector) *JWKSCache {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &JWKSCache{
		jwksURL: jwksURL,
		client:  client,
		metrics: collector,
		keys:    map[string]*rsa.PublicKey{},
	}
}

// JWKSURLForDomain はAuth0テナントのJWKSエンドポイントURLを返す。
func JWKSURLForDomain(domain string) string {
	return "https://" + domain + "/.well-known/jwks.json"
}

// Key は指定kidのRSA公開鍵を返す。
// キャッシュにない場合は鍵セットを再取得する。直近に取得済みの場合は
// 再取得せずエラーを返す（未知kidの連打によるIdPへの負荷を防ぐ）。
func (c *JWKSCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key, ok := c.keys[kid]; ok {
		return key, nil
	}

	if time.Since(c.lastFetch) < minRefreshInterval {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}

	if err := c.refreshLocked(ctx); err != nil {
		return nil, err
	}

	key, ok := c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key id %q after refresh", kid)
	}
	return key, nil
}

// jwksDocument はJWKSエンドポイントのレスポンス。
type jwksDocument struct {
	Keys []jwksKey `json:"keys"`
}

// jwksKey はJWKS内の1つの鍵を表す。
type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// refreshLocked は鍵セットを取得してキャッシュを置き換える。
// 呼び出し側でmuを保持していること。
func (c *JWKSCache) refreshLocked(ctx context.Context) error {
	c.lastFetch = time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create jwks request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("jwks fetch failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read jwks response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks fetch failed with status %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("failed to parse jwks response: %w", err)
	}

	keys := map[string]*rsa.PublicKey{}
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		key, err := parseRSAKey(k)
		if err != nil {
			slog.Warn("skipping unparsable jwks key",
				slog.String("kid", k.Kid),
				slog.String("error", err.Error()),
			)
			continue
		}
		keys[k.Kid] = key
	}

	if len(keys) == 0 {
		return fmt.Errorf("jwks response contained no usable RSA keys")
	}

	c.keys = keys
	c.metrics.RecordJWKSRefresh()

	slog.Info("jwks refreshed", slog.Int("key_count", len(keys)))
	return nil
}

// parseRSAKey はJWKのn/e（base64url）からRSA公開鍵を組み立てる。
func parseRSAKey(k jwksKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e <= 0 {
		return nil, fmt.Errorf("non-positive exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
