// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// IDはIdPが発行するsubject（例: "auth0|abc123"）をそのまま主キーとして使う。
// レコードは登録時ではなく、最初の認可成功時に遅延作成される。
type User struct {
	ID        string
	Name      string
	Email     string
	Picture   string
	CreatedAt time.Time
}

// Session はユーザーのログインセッションを表す。
// ProfileとTokensはコールバック時のスナップショットとしてdataカラムに保持する。
type Session struct {
	ID        string
	UserID    string
	Profile   SessionProfile
	Tokens    SessionTokens
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SessionProfile はIDトークンから解決したユーザープロファイルのスナップショット。
type SessionProfile struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// SessionTokens はIdPから受け取ったトークン一式。
// IdPのAPIを呼ぶ場合に備えてセッションに保持する。
type SessionTokens struct {
	AccessToken string `json:"access_token,omitempty"`
	IDToken     string `json:"id_token,omitempty"`
}
