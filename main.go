package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"imaging-gateway/retrieval"
	"imaging-gateway/scp"
	"imaging-gateway/storage"
)

func main() {
	cfg := LoadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gate, err := storage.NewAdmissionGate(cfg.StorageRoot, cfg.Watermark, cfg.ReserveGB)
	if err != nil {
		log.Fatalf("failed to init storage admission gate: %v", err)
	}

	fsdb, err := NewFirestoreDB(ctx, cfg.ProjectID, cfg.MaxRetries)
	if err != nil {
		log.Fatalf("failed to init Firestore: %v", err)
	}
	defer func() {
		if err := fsdb.Close(); err != nil {
			log.Printf("error closing Firestore client: %v", err)
		}
	}()

	var archive *storage.Archive
	if cfg.ArchiveBucket != "" {
		archive, err = storage.NewArchive(ctx, cfg.ArchiveBucket)
		if err != nil {
			log.Fatalf("failed to init archive bucket %q: %v", cfg.ArchiveBucket, err)
		}
		defer func() {
			if err := archive.Close(); err != nil {
				log.Printf("error closing archive client: %v", err)
			}
		}()
	}

	queue := NewFileNotificationQueue(256)
	writer := storage.NewWriter(cfg.StorageRoot, gate, queue, archive)

	aeManager := scp.NewConfigAEManager(cfg.AETitles, cfg.Sources(), cfg.AEConfig())
	if _, err := scp.NewHandler(aeManager, writer); err != nil {
		log.Fatalf("failed to init SCP handler: %v", err)
	}

	orchestrator := &retrieval.Orchestrator{
		Repo:       fsdb,
		Notifier:   queue,
		Gate:       gate,
		FS:         retrieval.OSFileSystem(),
		Secrets:    &secretManagerSource{projectID: cfg.ProjectID},
		HTTPClient: &http.Client{Timeout: 10 * time.Minute},
	}
	go func() {
		if err := orchestrator.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("orchestrator stopped: %v", err)
		}
	}()

	go drainNotifications(ctx, queue)

	go func() {
		log.Printf("Metrics listening on %s", cfg.MetricsAddr)
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, metricsMux); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server failed: %v", err)
		}
	}()

	h := &Handlers{
		Cfg:     cfg,
		DB:      fsdb,
		Writer:  writer,
		Gate:    gate,
		Archive: archive,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.HealthHandler)
	mux.HandleFunc("/dicomweb/studies", h.StowHandler)
	mux.HandleFunc("/dicomweb/studies/", h.StowHandler)
	mux.HandleFunc("/api/inference/requests", h.RequestsHandler)
	mux.HandleFunc("/api/inference/requests/", h.RequestsHandler)
	mux.HandleFunc("/internal/archive", h.ArchiveHandler)
	mux.HandleFunc("/internal/scp", h.ScpStatusHandler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("Imaging gateway listening on %s (project=%s)", cfg.ListenAddr, cfg.ProjectID)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down server...")
	cancel()
	if err := server.Shutdown(context.Background()); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}
