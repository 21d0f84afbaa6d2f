package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/molpadia/molparelay/internal/app"
	"github.com/molpadia/molparelay/internal/config"
	"github.com/molpadia/molparelay/internal/infrastructure/persistence"
	"github.com/molpadia/molparelay/internal/infrastructure/stream"
	"github.com/molpadia/molparelay/internal/logging"
	"github.com/molpadia/molparelay/internal/pipeline"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("cannot load configuration: %v", err)
	}
	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("cannot create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, "server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	stager, err := persistence.NewDiskStager(cfg.StagingDir)
	if err != nil {
		return err
	}
	archive, err := persistence.NewArchive(persistence.ArchiveOptions{
		Endpoint:        cfg.ArchiveEndpointURL(),
		Region:          cfg.ArchiveRegion,
		AccessKeyID:     cfg.ArchiveAccessKeyID,
		SecretAccessKey: cfg.ArchiveSecretAccessKey,
		Bucket:          cfg.ArchiveBucket,
		PublicDomain:    cfg.ArchivePublicDomain,
		Timeout:         cfg.ArchiveTimeout,
	})
	if err != nil {
		return fmt.Errorf("cannot create archive client: %w", err)
	}
	jobs := stream.NewClient(stream.Options{
		BaseURL:           cfg.StreamAPIURL,
		AccountID:         cfg.StreamAccountID,
		APIToken:          cfg.StreamAPIToken,
		RequireSignedURLs: cfg.StreamRequireSignedURLs,
		Timeout:           cfg.StreamTimeout,
	})

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: app.NewHandler(app.Options{
			Uploads:        pipeline.New(stager, archive, jobs, logger),
			Jobs:           jobs,
			Logger:         logger,
			MaxUploadSize:  cfg.MaxUploadSize,
			AllowedOrigins: cfg.AllowedOrigins,
		}),
		// Uploads stream for as long as the client sends, so only the
		// headers are bounded.
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info(ctx, "the server started", "addr", srv.Addr, "staging_dir", stager.Dir(), "tls", cfg.TLS())
		if cfg.TLS() {
			errc <- srv.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			errc <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
