package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/memoman/internal/auth"
	"github.com/hitoshi/memoman/internal/middleware"
	"github.com/hitoshi/memoman/internal/model"
)

// NoteServiceInterface はメモハンドラーが必要とするサービスインターフェース。
type NoteServiceInterface interface {
	List(ctx context.Context, identity *auth.Identity) ([]*model.Note, error)
	Create(ctx context.Context, identity *auth.Identity, title, content string) (*model.Note, error)
}

// NoteHandler はメモ関連のHTTPハンドラー。
type NoteHandler struct {
	service NoteServiceInterface
}

// NewNoteHandler はNoteHandlerを生成する。
func NewNoteHandler(service NoteServiceInterface) *NoteHandler {
	return &NoteHandler{service: service}
}

// noteResponse はメモ1件のレスポンス表現。
type noteResponse struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func toNoteResponse(note *model.Note) noteResponse {
	return noteResponse{
		ID:        note.ID,
		UserID:    note.UserID,
		Title:     note.Title,
		Content:   note.Content,
		CreatedAt: note.CreatedAt,
	}
}

// listNotesResponse はメモ一覧のレスポンス。
type listNotesResponse struct {
	Notes []noteResponse `json:"notes"`
}

// List はログインユーザーのメモ一覧を新しい順に返す。
// GET /api/notes
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	notes, err := h.service.List(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := listNotesResponse{Notes: make([]noteResponse, 0, len(notes))}
	for _, note := range notes {
		resp.Notes = append(resp.Notes, toNoteResponse(note))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// createNoteRequest はメモ作成リクエスト。
// contentは文字列以外の型や欠落を空文字列として扱うためRawMessageで受ける。
type createNoteRequest struct {
	Title   string          `json:"title"`
	Content json.RawMessage `json:"content"`
}

// createNoteResponse はメモ作成レスポンス。
type createNoteResponse struct {
	Note noteResponse `json:"note"`
}

// Create はメモを作成する。
// POST /api/notes
// titleは前後の空白を除去し、空の場合は400を返す。
func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	// contentは文字列の場合のみ採用し、それ以外は空文字列にフォールバック
	var content string
	if len(req.Content) > 0 {
		if err := json.Unmarshal(req.Content, &content); err != nil {
			content = ""
		}
	}

	note, err := h.service.Create(r.Context(), identity, req.Title, content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(createNoteResponse{Note: toNoteResponse(note)})
}
