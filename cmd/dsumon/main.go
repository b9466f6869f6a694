package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dsumotion/pkg/config"
)

func main() {
	if err := mainE(); err != nil {
		os.Exit(1)
	}
}

func mainE() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	root := NewRootCmd(logger, level)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("Failure", "err", err)
		os.Stderr.Sync()
		return err
	}

	return nil
}

type rootFlags struct {
	configPath string
	logLevel   string
}

// NewRootCmd wires every subcommand to log. level, when non-nil, is adjusted
// by --log-level or by log.level from the config file.
func NewRootCmd(log *slog.Logger, level *slog.LevelVar) *cobra.Command {
	var flags rootFlags

	rootCmd := &cobra.Command{
		Use: "dsumon SUBCOMMAND",

		Long: `dsumon talks to a DSU (cemuhook) motion server, turns the pad's
accelerometer and gyroscope stream into gestures and fans the results out
to a JSONL log, a Foxglove websocket, an MQTT broker or a terminal monitor.

It also ships a mock DSU server for trying the pipeline without a controller.
`,

		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.logLevel == "" {
				return nil
			}
			return setLevel(level, flags.logLevel)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", config.DefaultConfigPath, "config file (.toml, .yaml or .yml)")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (default: log.level from the config)")

	rootCmd.AddCommand(
		newClientCmd(log, level, &flags),
		newMockCmd(log),
		newConfigCmd(&flags),
	)

	return rootCmd
}

func setLevel(level *slog.LevelVar, name string) error {
	if level == nil {
		return nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return nil
}
