// Package note はメモリソースのビジネスロジックを提供する。
package note

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/memoman/internal/auth"
	"github.com/hitoshi/memoman/internal/metrics"
	"github.com/hitoshi/memoman/internal/model"
	"github.com/hitoshi/memoman/internal/repository"
)

// Service はメモに関するビジネスロジックを提供する。
// 前提条件: 呼び出し側は認可済みで、解決済みIdentityを渡すこと。
// どの認可戦略がIdentityを解決したかをServiceは知らない。
type Service struct {
	users   repository.UserRepository
	notes   repository.NoteRepository
	metrics metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(users repository.UserRepository, notes repository.NoteRepository, collector metrics.MetricsCollector) *Service {
	return &Service{
		users:   users,
		notes:   notes,
		metrics: collector,
	}
}

// List は認可済みユーザーのメモ一覧を新しい順に返す。
// 操作は常にuserIDの等価条件でスコープされ、他ユーザーのメモは決して返らない。
func (s *Service) List(ctx context.Context, identity *auth.Identity) ([]*model.Note, error) {
	if err := s.ensureUser(ctx, identity); err != nil {
		return nil, err
	}

	notes, err := s.notes.ListByUserID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, nil
}

// Create はメモを作成する。
// titleはトリム後に空であればバリデーションエラー。contentはそのまま保存される。
// FK整合性はupsert-before-insertの順序で保証する（FK違反を事後に拾う方式は取らない）。
func (s *Service) Create(ctx context.Context, identity *auth.Identity, title, content string) (*model.Note, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, model.NewTitleRequiredError()
	}

	if err := s.ensureUser(ctx, identity); err != nil {
		return nil, err
	}

	note := &model.Note{
		UserID:  identity.UserID,
		Title:   title,
		Content: content,
	}
	if err := s.notes.Create(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}

	s.metrics.RecordNoteCreated()

	return note, nil
}

// ensureUser は認可済みIdentityに対応するユーザー行を冪等に作成・更新する。
// 初回ログイン時の遅延プロビジョニング。bearerモードでは表示フィールドは空のままで、
// subjectのみでユーザー行が成立する。
func (s *Service) ensureUser(ctx context.Context, identity *auth.Identity) error {
	user := &model.User{
		ID:      identity.UserID,
		Name:    identity.Name,
		Email:   identity.Email,
		Picture: identity.Picture,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return fmt.Errorf("failed to ensure user record: %w", err)
	}
	return nil
}
