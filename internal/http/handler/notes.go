package handler

import (
	"net/http"

	"satchel/internal/auth"
	"satchel/internal/note"
	syncsvc "satchel/internal/sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NoteHandler struct {
	DB          *gorm.DB
	Coordinator *syncsvc.Coordinator
}

// List returns the user's notes, pinned first in their pinned order,
// then the rest by recency. An optional ?tag= filters by tag.
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	q := h.DB.Where("user_id = ? and deleted_at is null", uid)
	if tag := r.URL.Query().Get("tag"); tag != "" {
		q = q.Where("? = any(tags)", tag)
	}

	var notes []note.Note
	if err := q.Order("pinned desc, pinned_order asc nulls last, updated_at desc").
		Find(&notes).Error; err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, notes)
}

// Pin goes through the same batch path as offline sync so online and
// offline pins contend on the same advisory lock.
func (h *NoteHandler) Pin(w http.ResponseWriter, r *http.Request) {
	h.pinOp(w, r, syncsvc.OpPin)
}

func (h *NoteHandler) Unpin(w http.ResponseWriter, r *http.Request) {
	h.pinOp(w, r, syncsvc.OpUnpin)
}

func (h *NoteHandler) pinOp(w http.ResponseWriter, r *http.Request, op string) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	res, err := h.Coordinator.ApplyOperations(r.Context(), uid, syncsvc.KindNotes, []syncsvc.Operation{{
		OperationID: uuid.NewString(),
		Op:          op,
		ID:          id,
	}})
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if len(res.Conflicts) > 0 {
		writeJSON(w, http.StatusConflict, res.Conflicts[0])
		return
	}

	writeJSON(w, http.StatusOK, res.Applied[0])
}
