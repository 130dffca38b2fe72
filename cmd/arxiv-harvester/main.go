// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the arxiv-harvester CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/arxiv-harvester/internal/logctx"
	"github.com/pdiddy/arxiv-harvester/internal/secrets"
	"github.com/pdiddy/arxiv-harvester/internal/telemetry"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// loadedSecrets holds credentials loaded from .secrets/ at startup.
	loadedSecrets map[string]string

	// logCloser releases the log file after the command finishes.
	logCloser io.Closer

	// metrics is shared by every stage of the command. It records nothing
	// unless --metrics-addr is set.
	metrics *telemetry.Telemetry

	stopMetrics context.CancelFunc
)

// rootCmd is the base command for the arxiv-harvester CLI.
var rootCmd = &cobra.Command{
	Use:   "arxiv-harvester",
	Short: "Harvest arXiv identifiers and download qualifying PDFs",
	Long: `arxiv-harvester lists identifiers of a catalog partition over OAI-PMH,
resolves them into download links through the search API and fetches the PDFs
politely: one catalog request every few seconds, at most four downloads at a
time, and Fibonacci backoff whenever the catalog throttles or misbehaves.

Each stage is a subcommand (harvest, resolve, download); run chains them.
convert and extract post-process downloaded PDFs; status reports the ledger.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(viper.GetString("secrets_dir"))
		if err != nil {
			return err
		}
		loadedSecrets = s

		logger, closer, err := logctx.New(os.Stderr, logConfig())
		if err != nil {
			return err
		}
		logCloser = closer
		ctx := logctx.WithLogger(cmd.Context(), logger)

		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("loaded secrets", "keys", keys)
		}

		addr := viper.GetString("metrics_addr")
		metrics, err = telemetry.New(telemetry.Config{
			Enabled:        addr != "",
			ServiceName:    "arxiv-harvester",
			ServiceVersion: version,
		})
		if err != nil {
			return err
		}
		if addr != "" {
			var metricsCtx context.Context
			metricsCtx, stopMetrics = context.WithCancel(ctx)
			go func() {
				if err := metrics.Serve(metricsCtx, addr); err != nil {
					logger.Error("metrics server stopped", "err", err)
				}
			}()
		}

		cmd.SetContext(ctx)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if stopMetrics != nil {
			stopMetrics()
		}
		if metrics != nil {
			if err := metrics.Shutdown(context.WithoutCancel(cmd.Context())); err != nil {
				return err
			}
		}
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./arxiv-harvester.yaml or ~/.config/arxiv-harvester/arxiv-harvester.yaml)")
	pf.String("secrets-dir", ".secrets", "directory of credential files (contact-email)")
	pf.String("log-level", "", "console log level: DEBUG, INFO, WARN, ERROR (default INFO)")
	pf.String("log-file", "", "log file path (default arxiv-harvester.log; \"-\" disables)")
	pf.Bool("log-json", false, "log to the console as JSON")
	pf.String("ledger", "", "SQLite ledger path (default harvest.db; \"-\" disables)")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	mustBind("secrets_dir", pf.Lookup("secrets-dir"))
	mustBind("log.console_level", pf.Lookup("log-level"))
	mustBind("log.file", pf.Lookup("log-file"))
	mustBind("log.json", pf.Lookup("log-json"))
	mustBind("ledger_path", pf.Lookup("ledger"))
	mustBind("metrics_addr", pf.Lookup("metrics-addr"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("arxiv-harvester")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "arxiv-harvester"))
		}
	}

	viper.SetEnvPrefix("ARXIV_HARVESTER")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
