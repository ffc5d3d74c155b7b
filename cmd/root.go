package cmd

import (
	"fmt"
	"os"

	"github.com/samsaffron/markview/internal/config"
	"github.com/samsaffron/markview/internal/logger"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var (
	configFile string
	logLevel   string
	logFile    string

	// appConfig is loaded once before any command runs.
	appConfig *config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/markview/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to a size-rotated file instead of stderr")
}

var rootCmd = &cobra.Command{
	Use:   "markview",
	Short: "Render chat-style markdown to safe, highlighted HTML",
	Long: `markview renders markdown the way a chat client does: GitHub flavored
markdown, syntax highlighted code blocks with copy buttons, math,
emoji images and a streaming cursor.

Examples:
  markview render notes.md              # terminal preview on a TTY, HTML otherwise
  markview render notes.md --json       # html + code block map
  cat reply.md | markview render --streaming
  markview render notes.md --copy code-block-0
  markview serve --ui                   # browser preview on :8081
  markview export notes.md --format pdf -o notes.pdf
  markview config init`,
	Version:           Version,
	SilenceUsage:      true,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// skipConfigAnnotation marks commands that must run without a readable
// config file.
const skipConfigAnnotation = "markview/skip-config"

// setup loads the config and configures logging. Flags win over the file.
func setup(cmd *cobra.Command, args []string) error {
	cfg := config.Defaults()
	if cmd.Annotations[skipConfigAnnotation] == "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = loaded
	}

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	file := cfg.Log.File
	if logFile != "" {
		file = logFile
	}
	if err := logger.Configure(level, file); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	appConfig = cfg
	return nil
}
