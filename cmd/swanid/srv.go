package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"swanid/internal/blobstore"
	"swanid/internal/classifier"
	"swanid/internal/config"
	"swanid/internal/metrics"
	"swanid/internal/server"
	"swanid/internal/store"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the swanid API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			logger.Info("opening database", "path", cfg.DBPath)
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			logger.Info("opening image store", "path", cfg.ImagesDir())
			blobs, err := blobstore.NewLocalStore(cfg.ImagesDir())
			if err != nil {
				return err
			}

			var cls classifier.Classifier = classifier.Disabled{}
			if cfg.Inference.URL != "" {
				httpClassifier, err := classifier.NewHTTPClient(cfg.Inference.URL, cfg.InferenceTimeout())
				if err != nil {
					return fmt.Errorf("inference client: %w", err)
				}
				logger.Info("classification enabled", "url", cfg.Inference.URL, "timeout", cfg.InferenceTimeout())
				cls = httpClassifier
			} else {
				logger.Warn("inference.url not set; classification requests will fail with 503")
			}

			m, err := metrics.New()
			if err != nil {
				return err
			}

			srv := server.New(addr, st, blobs, server.Options{
				Logger:             logger,
				Metrics:            m,
				Classifier:         cls,
				ScratchDir:         cfg.ScratchDir,
				MaxUploadBytes:     cfg.Uploads.MaxUploadBytes,
				MultipartMaxMemory: cfg.Uploads.MultipartMaxMemory,
				AnalyzeConcurrency: cfg.Inference.MaxConcurrent,
				APITokenHash:       cfg.Auth.APITokenHash,
				AllowedOrigins:     cfg.CORS.AllowedOrigins,
			})
			return srv.ListenAndServe()
		},
	}
}
