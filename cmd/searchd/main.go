// Package main is the entry point for the search orchestrator daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/simpleflo/arabhybrid/internal/config"
	"github.com/simpleflo/arabhybrid/internal/daemon"
	"github.com/simpleflo/arabhybrid/internal/observability"
)

var (
	// Version is set at build time.
	Version = "dev"
	// BuildTime is set at build time.
	BuildTime = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "searchd",
		Short:   "Arabic/Islamic hybrid search orchestrator daemon",
		Long:    `searchd serves the hybrid lexical/semantic search API over HTTP, fusing results across books, Quran ayahs, and hadiths.`,
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		RunE:    runDaemon,
	}

	rootCmd.Flags().String("data-dir", "", "Data directory (default: ~/.arabhybrid)")
	rootCmd.Flags().String("listen-addr", "", "HTTP listen address (default: :8080)")
	rootCmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.Flags().String("log-format", "json", "Log format: json, console")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if listenAddr, _ := cmd.Flags().GetString("listen-addr"); listenAddr != "" {
		cfg.HTTP.ListenAddr = listenAddr
	}
	if logLevel, _ := cmd.Flags().GetString("log-level"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat, _ := cmd.Flags().GetString("log-format"); logFormat != "" {
		cfg.LogFormat = logFormat
	}

	observability.SetupLogging(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	d, err := daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	return d.Run()
}
