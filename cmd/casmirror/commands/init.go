package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/casmirror/casmirror/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample casmirror configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/casmirror/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  casmirror init

  # Initialize with custom path
  casmirror init --config /etc/casmirror/config.yaml

  # Force overwrite existing config
  casmirror init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		// Use custom path
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		// Use default path
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file: set source_paths, the metadata API")
	fmt.Println("     key, and the S3 credentials")
	fmt.Println("  2. Start the synchronizer with: casmirror start")
	fmt.Printf("  3. Or specify custom config: casmirror start --config %s\n", configPath)

	return nil
}
