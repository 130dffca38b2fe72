// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pdiddy/arxiv-harvester/internal/secrets"
	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

// envKeyReplacer maps nested keys to environment names, so download.workers
// is read from ARXIV_HARVESTER_DOWNLOAD_WORKERS.
var envKeyReplacer = strings.NewReplacer(".", "_")

// disabled is the flag value that turns off the log file or the ledger.
const disabled = "-"

func setDefaults() {
	viper.SetDefault("secrets_dir", ".secrets")

	viper.SetDefault("http.timeout", types.DefaultRequestTimeout)
	viper.SetDefault("http.user_agent", types.DefaultUserAgent)
	viper.SetDefault("http.request_interval", types.DefaultRequestInterval)

	viper.SetDefault("harvest.metadata_prefix", types.DefaultMetadataPrefix)
	viper.SetDefault("harvest.set", types.DefaultSet)
	viper.SetDefault("harvest.batch_size", types.DefaultBatchSize)
	viper.SetDefault("harvest.max_failures", types.DefaultMaxFailures)
	viper.SetDefault("harvest.max_delay", types.DefaultMaxDelay)

	viper.SetDefault("resolve.page_size", types.DefaultPageSize)
	viper.SetDefault("resolve.mirror_host", types.DefaultMirrorHost)
	viper.SetDefault("resolve.max_delay", types.DefaultMaxDelay)

	viper.SetDefault("download.papers_dir", types.DefaultPapersDir)
	viper.SetDefault("download.workers", types.DefaultWorkers)
	viper.SetDefault("download.max_attempts", types.DefaultMaxAttempts)
	viper.SetDefault("download.download_timeout", types.DefaultDownloadTimeout)
	viper.SetDefault("download.max_delay", types.DefaultMaxDelay)

	viper.SetDefault("log.console_level", types.DefaultConsoleLogLevel)
	viper.SetDefault("log.file_level", types.DefaultFileLogLevel)
	viper.SetDefault("log.file", types.DefaultLogFile)

	viper.SetDefault("ledger_path", types.DefaultLedgerPath)
}

func mustBind(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", flag.Name, err))
	}
}

// bindFlags binds the command's flags to config keys. Commands share keys
// such as resolve.topic, so binding happens when the command runs rather
// than at init, where the last command to bind would win.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for flag, key := range keys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			return fmt.Errorf("unknown flag %q", flag)
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %s: %w", flag, err)
		}
	}
	return nil
}

func logConfig() types.LogConfig {
	cfg := types.LogConfig{
		ConsoleLevel: viper.GetString("log.console_level"),
		FileLevel:    viper.GetString("log.file_level"),
		File:         viper.GetString("log.file"),
		JSON:         viper.GetBool("log.json"),
	}
	if cfg.File == disabled {
		cfg.File = ""
	}
	return cfg
}

// pipelineConfig assembles the stage configs from defaults, the config
// file, the environment and bound flags. The shared http section fills the
// HTTP settings of every stage that leaves them unset, and the contact
// e-mail from the secrets directory is appended to the User-Agent.
func pipelineConfig() (types.PipelineConfig, error) {
	var cfg types.PipelineConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("reading configuration: %w", err)
	}

	var shared types.HTTPConfig
	if err := viper.UnmarshalKey("http", &shared); err != nil {
		return cfg, fmt.Errorf("reading http configuration: %w", err)
	}
	shared.UserAgent = secrets.UserAgent(shared.UserAgent, loadedSecrets)

	cfg.Harvest.HTTPConfig = mergeHTTP(cfg.Harvest.HTTPConfig, shared)
	cfg.Resolve.HTTPConfig = mergeHTTP(cfg.Resolve.HTTPConfig, shared)
	cfg.Download.HTTPConfig = mergeHTTP(cfg.Download.HTTPConfig, shared)

	if cfg.LedgerPath == disabled {
		cfg.LedgerPath = ""
	}
	cfg.Log = logConfig()
	return cfg, nil
}

func mergeHTTP(stage, shared types.HTTPConfig) types.HTTPConfig {
	if stage.Timeout == 0 {
		stage.Timeout = shared.Timeout
	}
	if stage.UserAgent == "" {
		stage.UserAgent = shared.UserAgent
	}
	if stage.RequestInterval == 0 {
		stage.RequestInterval = shared.RequestInterval
	}
	return stage
}
