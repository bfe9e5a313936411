// Package main provides the voxel server binary: a websocket sync endpoint
// for the shared grid plus an optional static file server for the client.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/YashM20/voxel-builder-threejs/internal/config"
	"github.com/YashM20/voxel-builder-threejs/internal/observability"
)

var (
	configPath string
	logLevel   string
	version    = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "voxelserver",
	Short: "Authoritative voxel world server",
	Long: `voxelserver holds a shared voxel grid and keeps every connected
browser client in sync over WebSocket.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the voxel server",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "voxelserver v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file (defaults and VOXEL_* env when empty)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "override logging.level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	start := time.Now()

	cfg, err := loadConfig(configPath, logLevel)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "voxelserver")
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting voxel server",
		zap.String("version", version),
		zap.String("ws_addr", cfg.Server.Addr()),
		zap.Bool("static_enabled", cfg.Static.Enabled),
		zap.Bool("shared_listener", cfg.SharedListener()),
	)

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("assembling server", zap.Error(err))
		return err
	}
	defer app.Close()

	logger.Info("voxel server ready", zap.Duration("startup", time.Since(start)))
	return app.lifecycle.Run(context.Background())
}

// loadConfig loads cfg from path and applies the --log-level override.
func loadConfig(path, level string) (config.Config, error) {
	v := config.NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config.Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	if level != "" {
		v.Set("logging.level", level)
	}
	return config.LoadFromViper(v)
}
