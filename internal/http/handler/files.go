package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"satchel/internal/auth"
	"satchel/internal/blob"
	"satchel/internal/ingest"
	"satchel/internal/userfile"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxUploadBytes = 50 << 20

type FileHandler struct {
	DB    *gorm.DB
	Blobs blob.Store
	Queue *ingest.GormStore
}

type fileResp struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Size        int64   `json:"size"`
	ContentType string  `json:"content_type"`
	TextKey     *string `json:"text_key,omitempty"`
	MarkdownKey *string `json:"markdown_key,omitempty"`
	ThumbKey    *string `json:"thumb_key,omitempty"`
	JobID       uint64  `json:"job_id,omitempty"`
	JobStatus   string  `json:"job_status,omitempty"`
}

// Upload stores the bytes first, then creates the metadata row and the
// processing job in one transaction. A dangling object from a failed
// transaction is harmless; a row without an object is not.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	name, contentType, data, ok := readUpload(w, r)
	if !ok {
		return
	}

	id := uuid.NewString()
	objectKey := "raw/" + id

	if err := h.Blobs.Put(r.Context(), objectKey, data, contentType); err != nil {
		log.Printf("files: put %s: %v", objectKey, err)
		http.Error(w, "storage unavailable", http.StatusBadGateway)
		return
	}

	f := userfile.File{
		ID:          id,
		UserID:      uid,
		Name:        name,
		ObjectKey:   objectKey,
		Size:        int64(len(data)),
		ContentType: contentType,
	}
	var job ingest.Job
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&f).Error; err != nil {
			return err
		}
		job = jobFor(&f)
		return h.Queue.Enqueue(tx, &job)
	})
	if err != nil {
		log.Printf("files: create %s: %v", id, err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, fileResp{
		ID:          f.ID,
		Name:        f.Name,
		Size:        f.Size,
		ContentType: f.ContentType,
		JobID:       job.ID,
		JobStatus:   string(job.Status),
	})
}

// Reupload replaces the stored bytes and supersedes any earlier job with
// a fresh one. Derived keys are cleared so stale artifacts never show up
// before the new job rebuilds them.
func (h *FileHandler) Reupload(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var f userfile.File
	if err := h.DB.Where("id = ? and user_id = ? and deleted_at is null", id, uid).First(&f).Error; err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	name, contentType, data, ok := readUpload(w, r)
	if !ok {
		return
	}

	if err := h.Blobs.Put(r.Context(), f.ObjectKey, data, contentType); err != nil {
		log.Printf("files: put %s: %v", f.ObjectKey, err)
		http.Error(w, "storage unavailable", http.StatusBadGateway)
		return
	}

	var job ingest.Job
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"name":         name,
			"size":         int64(len(data)),
			"content_type": contentType,
			"text_key":     nil,
			"markdown_key": nil,
			"thumb_key":    nil,
		}
		if err := tx.Model(&f).Updates(updates).Error; err != nil {
			return err
		}
		f.Name = name
		f.Size = int64(len(data))
		f.ContentType = contentType
		job = jobFor(&f)
		return h.Queue.Enqueue(tx, &job)
	})
	if err != nil {
		log.Printf("files: reupload %s: %v", id, err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, fileResp{
		ID:          f.ID,
		Name:        f.Name,
		Size:        f.Size,
		ContentType: f.ContentType,
		JobID:       job.ID,
		JobStatus:   string(job.Status),
	})
}

func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var f userfile.File
	if err := h.DB.Where("id = ? and user_id = ? and deleted_at is null", id, uid).First(&f).Error; err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	resp := fileResp{
		ID:          f.ID,
		Name:        f.Name,
		Size:        f.Size,
		ContentType: f.ContentType,
		TextKey:     f.TextKey,
		MarkdownKey: f.MarkdownKey,
		ThumbKey:    f.ThumbKey,
	}
	if job, err := h.latestJob(uid, id); err == nil {
		resp.JobID = job.ID
		resp.JobStatus = string(job.Status)
	}
	writeJSON(w, http.StatusOK, resp)
}

// JobStatus returns the newest job row for a file. Older superseded rows
// stay in the table but are not reported.
func (h *FileHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	job, err := h.latestJob(uid, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":            job.ID,
		"status":        job.Status,
		"stage":         job.Stage,
		"attempts":      job.Attempts,
		"error_code":    job.ErrorCode,
		"error_message": job.ErrorMessage,
		"started_at":    job.StartedAt,
		"finished_at":   job.FinishedAt,
	})
}

// JobControl pauses, resumes, or cancels the newest job for a file. Pause
// takes effect at the next stage boundary, not mid-stage.
func (h *FileHandler) JobControl(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	job, err := h.latestJob(uid, id)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	var changed bool
	switch action := chi.URLParam(r, "action"); action {
	case "pause":
		changed, err = h.Queue.Pause(r.Context(), uid, job.ID)
	case "resume":
		changed, err = h.Queue.Resume(r.Context(), uid, job.ID)
	case "cancel":
		changed, err = h.Queue.Cancel(r.Context(), uid, job.ID)
	default:
		http.Error(w, "unknown action", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if !changed {
		http.Error(w, "job not in a controllable state", http.StatusConflict)
		return
	}

	status, err := h.Queue.Status(r.Context(), job.ID)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": job.ID, "status": status})
}

func (h *FileHandler) latestJob(userID uint64, fileID string) (*ingest.Job, error) {
	var job ingest.Job
	err := h.DB.Where("user_id = ? and file_id = ?", userID, fileID).
		Order("id desc").First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func jobFor(f *userfile.File) ingest.Job {
	return ingest.Job{
		UserID:      f.UserID,
		FileID:      f.ID,
		FileName:    f.Name,
		ObjectKey:   f.ObjectKey,
		ContentType: f.ContentType,
	}
}

func readUpload(w http.ResponseWriter, r *http.Request) (name, contentType string, data []byte, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "file too large or malformed form", http.StatusRequestEntityTooLarge)
		return "", "", nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return "", "", nil, false
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return "", "", nil, false
	}

	contentType = header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return header.Filename, contentType, data, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
