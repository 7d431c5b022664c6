// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/memoman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// Upsert はユーザーを冪等に作成または更新する。
	// 既存行がある場合、空でない表示フィールド（name/email/picture）のみ更新し、
	// idとcreated_atは決して変更しない。
	// subjectだけを持つUser（bearerモード）のUpsertは既存行には何もしない。
	Upsert(ctx context.Context, user *model.User) error
}

// NoteRepository はメモデータの永続化インターフェース。
type NoteRepository interface {
	// ListByUserID は指定ユーザーのメモ一覧を新しい順に返す。
	// 作成時刻が同一の場合はidの降順で順序を決定的にする。
	ListByUserID(ctx context.Context, userID string) ([]*model.Note, error)

	// Create はメモを作成し、DBが採番したidとcreated_atをnoteに書き戻す。
	Create(ctx context.Context, note *model.Note) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
