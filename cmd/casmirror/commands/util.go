package commands

import (
	"context"
	"fmt"

	"github.com/casmirror/casmirror/internal/logger"
	"github.com/casmirror/casmirror/pkg/blobstore"
	"github.com/casmirror/casmirror/pkg/config"
	"github.com/casmirror/casmirror/pkg/dbclient"
	"github.com/casmirror/casmirror/pkg/metrics"
	"github.com/casmirror/casmirror/pkg/registrar"
	"github.com/casmirror/casmirror/pkg/scanner"
	"github.com/casmirror/casmirror/pkg/uploader"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	return config.GetDefaultConfigPath()
}

// newGatewayFactory returns a factory for metadata API clients. Gateways are
// cheap to build and never shared across goroutines, so every component gets
// its own.
func newGatewayFactory(cfg *config.Config) func() *dbclient.Client {
	return func() *dbclient.Client {
		return dbclient.New(cfg.Metadata.URL, cfg.Metadata.APIKey, cfg.Metadata.Timeout)
	}
}

// buildScanner wires a full-reconciliation scanner from configuration.
func buildScanner(cfg *config.Config, roots []string) (*scanner.Scanner, error) {
	newDB := newGatewayFactory(cfg)
	return scanner.New(scanner.Config{
		Roots:       roots,
		Workers:     cfg.Sync.Workers,
		MaxFileSize: cfg.Sync.MaxScanSize.Int64(),
		NewDB:       func() scanner.DB { return newDB() },
		Metrics:     metrics.NewScannerMetrics(),
	})
}

// buildUploader wires the upload worker from configuration. The dequeue is
// restricted to the configured roots so a replica only uploads content it
// can actually read.
func buildUploader(cfg *config.Config, roots []string) (*uploader.Worker, error) {
	prefixes := make([]string, 0, len(roots))
	for _, root := range roots {
		prefixes = append(prefixes, registrar.NormalizePath(root))
	}

	newDB := newGatewayFactory(cfg)
	newStore := func(ctx context.Context) (uploader.BlobStore, error) {
		client, err := blobstore.NewClientFromConfig(ctx,
			cfg.Storage.Endpoint,
			cfg.Storage.Region,
			cfg.Storage.AccessKey,
			cfg.Storage.SecretKey,
			cfg.Storage.UsePathStyle,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		return blobstore.New(ctx, blobstore.Config{
			Client:  client,
			Bucket:  cfg.Storage.Bucket,
			Metrics: metrics.NewBlobStoreMetrics(),
		})
	}

	return uploader.New(uploader.Config{
		NewDB:          func() uploader.DB { return newDB() },
		NewStore:       newStore,
		SourcePrefixes: prefixes,
		MaxUploadSize:  cfg.Sync.MaxUploadSize.Int64(),
		Metrics:        metrics.NewUploaderMetrics(),
	})
}
