// SPDX-License-Identifier: Apache 2.0

// Package cmd is the sdls CLI: a cobra command tree binding viper
// configuration to the Library's public entry points, in the
// teacher's PreRunE-loads-config / RunE-dispatches shape.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"hermannm.dev/devlog"

	"github.com/nasa-itc/sdls/internal/config"
)

var (
	configFilePath string
	debug          bool
	logLevel       slog.LevelVar

	// libraryConfig holds the result of the most recent
	// loadLibraryConfig call. PreRunE populates it once per invocation;
	// RunE reads it back rather than re-parsing the config file.
	libraryConfig *config.Config
)

var rootCmd = &cobra.Command{
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	Use:   "sdls",
	Short: "CCSDS Space Data Link Security (SDLS) command-line tool",
	Long: `sdls applies and removes SDLS protection from CCSDS TC/TM
transfer frames and drives the SA Store through SDLS command PDUs. It
can run a single apply/process/sdls-pdu operation on a hex-encoded
frame or PDU given as a flag, or
serve the demo HTTP API continuously.`,
}

// Execute runs the root command. Called once from main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	slog.SetDefault(slog.New(devlog.NewHandler(os.Stdout, &devlog.Options{
		Level: &logLevel,
	})))

	rootCmd.PersistentFlags().String("config", "", "Path to the sdls configuration file (YAML)")
	rootCmd.PersistentFlags().Bool("debug", false, "Print debug logging")
}

// loadLibraryConfig binds cmd's persistent flags into viper, reads
// the configuration file (if one was given), decodes it into
// libraryConfig, and returns it. Subcommands call this once from
// PreRunE; RunE reads libraryConfig back rather than reloading it, the
// same PreRunE-populates/RunE-reads split as the teacher's
// manufacturingCmdLoadConfig/getState pair.
func loadLibraryConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := viper.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return nil, err
	}
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	configFilePath = viper.GetString("config")
	if configFilePath != "" {
		slog.Debug("loading configuration file", "path", configFilePath)
		viper.SetConfigFile(configFilePath)
		if err := viper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	debug = viper.GetBool("debug")
	if debug {
		logLevel.Set(slog.LevelDebug)
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	libraryConfig = cfg
	return cfg, nil
}
