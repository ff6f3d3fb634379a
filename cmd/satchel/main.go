package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"satchel/internal/auth"
	"satchel/internal/blob"
	"satchel/internal/config"
	"satchel/internal/db"
	httpx "satchel/internal/http"
	"satchel/internal/ingest"
	"satchel/internal/notify"
	syncsvc "satchel/internal/sync"

	"github.com/google/uuid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		log.Fatal(err)
	}

	blobs, err := blob.NewS3(cfg)
	if err != nil {
		log.Fatal(err)
	}
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := blobs.EnsureBucket(bootCtx); err != nil {
		bootCancel()
		log.Fatal(err)
	}
	bootCancel()

	jwtSvc := auth.NewJWT(cfg.JWTSecret)

	notifier := notify.NewDebounced(&notify.LogPublisher{}, cfg.NotifyDebounce, time.Hour)
	coord := &syncsvc.Coordinator{DB: gdb, Notifier: notifier}

	store := &ingest.GormStore{
		DB:           gdb,
		LeaseSeconds: cfg.IngestLeaseSeconds,
		MaxAttempts:  cfg.IngestMaxAttempts,
	}
	pipeline := &ingest.Pipeline{Blobs: blobs, DB: gdb}

	ctx, cancel := context.WithCancel(context.Background())

	for i := 0; i < cfg.IngestWorkers; i++ {
		w := &ingest.Worker{
			ID:       fmt.Sprintf("worker-%d-%s", i, uuid.NewString()[:8]),
			Store:    store,
			Pipeline: pipeline,
			Poll:     cfg.IngestPollInterval,
		}
		go w.Run(ctx)
	}
	go ingest.RunStalledSweep(ctx, store, time.Duration(cfg.IngestLeaseSeconds)*time.Second/2)

	r := httpx.NewRouter(cfg, gdb, jwtSvc, coord, blobs, store)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on %s\n", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
