package repository

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/memoman/internal/model"
)

// PostgresNoteRepoはNoteRepositoryインターフェースを満たすことを検証
func TestPostgresNoteRepo_ImplementsInterface(t *testing.T) {
	var _ NoteRepository = (*PostgresNoteRepo)(nil)
}

func createTestUser(t *testing.T, users *PostgresUserRepo, id string) {
	t.Helper()
	if err := users.Upsert(context.Background(), &model.User{ID: id}); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
}

func TestPostgresNoteRepo_Create_AssignsIDAndCreatedAt(t *testing.T) {
	db := openTestDB(t)
	users := NewPostgresUserRepo(db)
	repo := NewPostgresNoteRepo(db)
	ctx := context.Background()

	createTestUser(t, users, "auth0|user-1")

	note := &model.Note{UserID: "auth0|user-1", Title: "買い物リスト", Content: "牛乳、卵"}
	if err := repo.Create(ctx, note); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if note.ID == 0 {
		t.Error("expected DB-assigned ID to be written back")
	}
	if note.CreatedAt.IsZero() {
		t.Error("expected DB-assigned CreatedAt to be written back")
	}
}

func TestPostgresNoteRepo_ListByUserID_NewestFirst(t *testing.T) {
	db := openTestDB(t)
	users := NewPostgresUserRepo(db)
	repo := NewPostgresNoteRepo(db)
	ctx := context.Background()

	createTestUser(t, users, "auth0|user-1")

	// created_atを明示して順序を固定する
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, title := range []string{"最古", "中間", "最新"} {
		_, err := db.Exec(
			`INSERT INTO notes (user_id, title, created_at) VALUES ($1, $2, $3)`,
			"auth0|user-1", title, base.Add(time.Duration(i)*time.Hour),
		)
		if err != nil {
			t.Fatalf("failed to insert note: %v", err)
		}
	}

	notes, err := repo.ListByUserID(ctx, "auth0|user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(notes) != 3 {
		t.Fatalf("len(notes) = %d, want 3", len(notes))
	}
	if notes[0].Title != "最新" || notes[2].Title != "最古" {
		t.Errorf("order = [%s %s %s], want newest first", notes[0].Title, notes[1].Title, notes[2].Title)
	}
}

// created_atが同一の場合はidの降順で決定的に並ぶ
func TestPostgresNoteRepo_ListByUserID_TiesBrokenByID(t *testing.T) {
	db := openTestDB(t)
	users := NewPostgresUserRepo(db)
	repo := NewPostgresNoteRepo(db)
	ctx := context.Background()

	createTestUser(t, users, "auth0|user-1")

	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for _, title := range []string{"先に挿入", "後に挿入"} {
		_, err := db.Exec(
			`INSERT INTO notes (user_id, title, created_at) VALUES ($1, $2, $3)`,
			"auth0|user-1", title, ts,
		)
		if err != nil {
			t.Fatalf("failed to insert note: %v", err)
		}
	}

	notes, err := repo.ListByUserID(ctx, "auth0|user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("len(notes) = %d, want 2", len(notes))
	}
	if notes[0].Title != "後に挿入" {
		t.Errorf("first = %q, want the later insert (higher id)", notes[0].Title)
	}
}

// 一覧は所有者のメモだけを返す
func TestPostgresNoteRepo_ListByUserID_ScopedToOwner(t *testing.T) {
	db := openTestDB(t)
	users := NewPostgresUserRepo(db)
	repo := NewPostgresNoteRepo(db)
	ctx := context.Background()

	createTestUser(t, users, "auth0|user-1")
	createTestUser(t, users, "auth0|user-2")

	if err := repo.Create(ctx, &model.Note{UserID: "auth0|user-1", Title: "user-1のメモ"}); err != nil {
		t.Fatalf("failed to create note: %v", err)
	}
	if err := repo.Create(ctx, &model.Note{UserID: "auth0|user-2", Title: "user-2のメモ"}); err != nil {
		t.Fatalf("failed to create note: %v", err)
	}

	notes, err := repo.ListByUserID(ctx, "auth0|user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("len(notes) = %d, want 1", len(notes))
	}
	if notes[0].Title != "user-1のメモ" {
		t.Errorf("title = %q, want user-1's note only", notes[0].Title)
	}
}

func TestPostgresNoteRepo_ListByUserID_NoNotes_ReturnsEmptySlice(t *testing.T) {
	db := openTestDB(t)
	users := NewPostgresUserRepo(db)
	repo := NewPostgresNoteRepo(db)

	createTestUser(t, users, "auth0|user-1")

	notes, err := repo.ListByUserID(context.Background(), "auth0|user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if notes == nil {
		t.Error("expected empty slice, got nil")
	}
	if len(notes) != 0 {
		t.Errorf("len(notes) = %d, want 0", len(notes))
	}
}
