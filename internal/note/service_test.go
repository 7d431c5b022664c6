package note

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/memoman/internal/auth"
	"github.com/hitoshi/memoman/internal/model"
)

// --- モック定義 ---

type mockUserRepo struct {
	upsertFn    func(ctx context.Context, user *model.User) error
	upsertCalls int
}

func (m *mockUserRepo) Upsert(ctx context.Context, user *model.User) error {
	m.upsertCalls++
	if m.upsertFn != nil {
		return m.upsertFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return nil, nil
}

type mockNoteRepo struct {
	listByUserIDFn func(ctx context.Context, userID string) ([]*model.Note, error)
	createFn       func(ctx context.Context, note *model.Note) error
}

func (m *mockNoteRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Note, error) {
	if m.listByUserIDFn != nil {
		return m.listByUserIDFn(ctx, userID)
	}
	return []*model.Note{}, nil
}

func (m *mockNoteRepo) Create(ctx context.Context, note *model.Note) error {
	if m.createFn != nil {
		return m.createFn(ctx, note)
	}
	return nil
}

type nopMetrics struct{}

func (nopMetrics) RecordHTTPStatus(statusCode int)                          {}
func (nopMetrics) RecordAuthFailure(reason string)                          {}
func (nopMetrics) RecordTokenExchange(duration time.Duration, success bool) {}
func (nopMetrics) RecordJWKSRefresh()                                       {}
func (nopMetrics) RecordNoteCreated()                                       {}

type countingMetrics struct {
	nopMetrics
	notesCreated int
}

func (m *countingMetrics) RecordNoteCreated() { m.notesCreated++ }

func testIdentity() *auth.Identity {
	return &auth.Identity{
		UserID: "auth0|user-1",
		Name:   "山田太郎",
		Email:  "taro@example.com",
	}
}

// --- テスト ---

func TestService_List_ScopedToUser(t *testing.T) {
	notes := &mockNoteRepo{
		listByUserIDFn: func(ctx context.Context, userID string) ([]*model.Note, error) {
			if userID != "auth0|user-1" {
				t.Errorf("userID = %q, want %q", userID, "auth0|user-1")
			}
			return []*model.Note{
				{ID: 2, UserID: userID, Title: "新しいメモ"},
				{ID: 1, UserID: userID, Title: "古いメモ"},
			}, nil
		},
	}

	svc := NewService(&mockUserRepo{}, notes, nopMetrics{})

	got, err := svc.List(context.Background(), testIdentity())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(notes) = %d, want 2", len(got))
	}
	if got[0].ID != 2 {
		t.Errorf("first note ID = %d, want 2 (newest first)", got[0].ID)
	}
}

// 一覧操作でもユーザー行が遅延プロビジョニングされる
func TestService_List_EnsuresUserRecord(t *testing.T) {
	users := &mockUserRepo{}
	svc := NewService(users, &mockNoteRepo{}, nopMetrics{})

	if _, err := svc.List(context.Background(), testIdentity()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if users.upsertCalls != 1 {
		t.Errorf("upsert calls = %d, want 1", users.upsertCalls)
	}
}

func TestService_Create_TrimsTitle(t *testing.T) {
	var created *model.Note
	notes := &mockNoteRepo{
		createFn: func(ctx context.Context, note *model.Note) error {
			created = note
			note.ID = 1
			note.CreatedAt = time.Now()
			return nil
		},
	}

	svc := NewService(&mockUserRepo{}, notes, nopMetrics{})

	note, err := svc.Create(context.Background(), testIdentity(), "  買い物リスト  ", "牛乳、卵")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if created.Title != "買い物リスト" {
		t.Errorf("stored title = %q, want trimmed %q", created.Title, "買い物リスト")
	}
	if note.Content != "牛乳、卵" {
		t.Errorf("content = %q, want %q", note.Content, "牛乳、卵")
	}
	if note.UserID != "auth0|user-1" {
		t.Errorf("UserID = %q, want %q", note.UserID, "auth0|user-1")
	}
}

func TestService_Create_EmptyTitle_ReturnsValidationError(t *testing.T) {
	for _, title := range []string{"", "   ", "\t\n"} {
		svc := NewService(&mockUserRepo{}, &mockNoteRepo{
			createFn: func(ctx context.Context, note *model.Note) error {
				t.Error("create should not be called for empty title")
				return nil
			},
		}, nopMetrics{})

		_, err := svc.Create(context.Background(), testIdentity(), title, "content")
		if err == nil {
			t.Fatalf("title %q: expected error", title)
		}

		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeTitleRequired {
			t.Errorf("title %q: error = %v, want TITLE_REQUIRED", title, err)
		}
	}
}

// contentが空でも作成できる
func TestService_Create_EmptyContent_Allowed(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockNoteRepo{}, nopMetrics{})

	note, err := svc.Create(context.Background(), testIdentity(), "タイトルのみ", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if note.Content != "" {
		t.Errorf("content = %q, want empty", note.Content)
	}
}

// ユーザー行の作成はメモ挿入より先に行われる（FK整合性）
func TestService_Create_UpsertsUserBeforeInsert(t *testing.T) {
	var order []string
	users := &mockUserRepo{
		upsertFn: func(ctx context.Context, user *model.User) error {
			order = append(order, "upsert")
			return nil
		},
	}
	notes := &mockNoteRepo{
		createFn: func(ctx context.Context, note *model.Note) error {
			order = append(order, "insert")
			return nil
		},
	}

	svc := NewService(users, notes, nopMetrics{})

	if _, err := svc.Create(context.Background(), testIdentity(), "メモ", ""); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(order) != 2 || order[0] != "upsert" || order[1] != "insert" {
		t.Errorf("call order = %v, want [upsert insert]", order)
	}
}

func TestService_Create_RecordsMetric(t *testing.T) {
	metrics := &countingMetrics{}
	svc := NewService(&mockUserRepo{}, &mockNoteRepo{}, metrics)

	if _, err := svc.Create(context.Background(), testIdentity(), "メモ", ""); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if metrics.notesCreated != 1 {
		t.Errorf("notes created metric = %d, want 1", metrics.notesCreated)
	}
}

func TestService_Create_EnsureUserFails_ReturnsError(t *testing.T) {
	users := &mockUserRepo{
		upsertFn: func(ctx context.Context, user *model.User) error {
			return errors.New("connection refused")
		},
	}
	svc := NewService(users, &mockNoteRepo{}, nopMetrics{})

	if _, err := svc.Create(context.Background(), testIdentity(), "メモ", ""); err == nil {
		t.Fatal("expected error when user provisioning fails")
	}
}
