package http

import (
	"net/http"

	"satchel/internal/auth"
	"satchel/internal/blob"
	"satchel/internal/config"
	"satchel/internal/http/handler"
	mw "satchel/internal/http/middleware"
	"satchel/internal/ingest"
	syncsvc "satchel/internal/sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

func NewRouter(cfg config.Config, db *gorm.DB, jwtSvc *auth.JWT, coord *syncsvc.Coordinator, blobs blob.Store, queue *ingest.GormStore) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ah := &handler.AuthHandler{DB: db, JWT: jwtSvc}
	r.Post("/auth/register", ah.Register)
	r.Post("/auth/login", ah.Login)

	me := &handler.MeHandler{}
	r.With(auth.RequireAuth(jwtSvc)).Get("/me", me.Me)

	sh := &handler.SyncHandler{Coordinator: coord}
	fh := &handler.FileHandler{DB: db, Blobs: blobs, Queue: queue}
	nh := &handler.NoteHandler{DB: db, Coordinator: coord}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(jwtSvc))

		r.Post("/sync/{kind}", sh.Apply)

		r.Post("/files", fh.Upload)
		r.Post("/files/{id}", fh.Reupload)
		r.Get("/files/{id}", fh.Get)
		r.Get("/files/{id}/job", fh.JobStatus)
		r.Post("/files/{id}/job/{action}", fh.JobControl)

		r.Get("/notes", nh.List)
		r.Post("/notes/{id}/pin", nh.Pin)
		r.Delete("/notes/{id}/pin", nh.Unpin)
	})

	return r
}
