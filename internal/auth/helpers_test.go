package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// --- テスト共通ヘルパー ---

// nopMetrics は何も記録しないメトリクスコレクター。
type nopMetrics struct{}

func (nopMetrics) RecordHTTPStatus(statusCode int)                          {}
func (nopMetrics) RecordAuthFailure(reason string)                          {}
func (nopMetrics) RecordTokenExchange(duration time.Duration, success bool) {}
func (nopMetrics) RecordJWKSRefresh()                                       {}
func (nopMetrics) RecordNoteCreated()                                       {}

// countingMetrics はJWKS再取得回数を数えるメトリクスコレクター。
type countingMetrics struct {
	nopMetrics
	jwksRefreshes int
}

func (m *countingMetrics) RecordJWKSRefresh() {
	m.jwksRefreshes++
}

// generateTestKey はテスト用のRSA鍵ペアを生成する。
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate rsa key: %v", err)
	}
	return key
}

// jwksJSON は公開鍵をJWKSレスポンス形式にエンコードする。
func jwksJSON(t *testing.T, kid string, pub *rsa.PublicKey) []byte {
	t.Helper()
	doc := jwksDocument{
		Keys: []jwksKey{
			{
				Kty: "RSA",
				Kid: kid,
				Use: "sig",
				N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("failed to marshal jwks: %v", err)
	}
	return b
}

// newJWKSServer は指定の鍵を配信するJWKSエンドポイントを起動する。
func newJWKSServer(t *testing.T, kid string, pub *rsa.PublicKey) *httptest.Server {
	t.Helper()
	body := jwksJSON(t, kid, pub)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}
