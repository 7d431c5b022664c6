package model

import "time"

// Note はユーザーが所有するテキストメモを表す。
// IDはDBが採番する単調増加のサロゲートキー。
// Noteは所有者本人のみが閲覧・作成できる。
type Note struct {
	ID        int64
	UserID    string
	Title     string
	Content   string
	CreatedAt time.Time
}
