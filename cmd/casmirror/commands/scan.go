package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/casmirror/casmirror/pkg/config"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one full reconciliation scan and exit",
	Long: `Run a single full scan over the configured source roots.

Every regular file is registered against the metadata store, and paths the
scan did not see are soft-deleted. This is the same scan the daemon runs on
its daily schedule; running it by hand is useful after bulk changes or when
seeding a fresh metadata store.

Examples:
  # Scan with the default config location
  casmirror scan

  # Scan with a custom config
  casmirror scan --config /etc/casmirror/config.yaml`,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	roots := config.NormalizeSourcePaths(cfg.Sync.SourcePaths)
	sc, err := buildScanner(cfg, roots)
	if err != nil {
		return err
	}

	if _, err := sc.Run(ctx); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	return nil
}
