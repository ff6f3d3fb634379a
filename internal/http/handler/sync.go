package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"satchel/internal/auth"
	syncsvc "satchel/internal/sync"

	"github.com/go-chi/chi/v5"
)

type SyncHandler struct {
	Coordinator *syncsvc.Coordinator
}

type syncReq struct {
	// LastSync is informational; conflict detection runs per-operation off
	// client_updated_at, not off the batch watermark.
	LastSync   *time.Time          `json:"last_sync,omitempty"`
	Operations []syncsvc.Operation `json:"operations"`
}

// Apply runs one batch of offline operations for a single entity kind.
// The whole batch is one transaction; conflicts come back in the response
// body rather than as an HTTP error.
func (h *SyncHandler) Apply(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	kind, ok := syncsvc.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		http.Error(w, "unknown kind", http.StatusNotFound)
		return
	}

	var req syncReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if len(req.Operations) == 0 {
		http.Error(w, "empty batch", http.StatusBadRequest)
		return
	}
	for _, op := range req.Operations {
		if op.OperationID == "" || op.ID == "" {
			http.Error(w, "operation_id and id are required", http.StatusBadRequest)
			return
		}
	}

	res, err := h.Coordinator.ApplyOperations(r.Context(), uid, kind, req.Operations)
	if err != nil {
		log.Printf("sync: apply %s batch for user %d: %v", kind, uid, err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}
