package cli

import (
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"live-quiz-service/internal/config"
)

var (
	port       string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envPort := os.Getenv("PORT")
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "live-quiz",
		Short:        "Live multi-participant quiz service over WebSocket",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&port, "port", envPort, "port to listen on (overrides server.port)")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewTokenCmd(&configPath))
	return cmd
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var out io.Writer = os.Stdout
	if cfg.Log.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "live-quiz").Logger()
}
