// SPDX-License-Identifier: Apache 2.0

package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var processFrameHex string

var processTCCmd = &cobra.Command{
	Use:   "process-tc",
	Short: "Validate and strip SDLS protection from a received TC frame",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := loadLibraryConfig(cmd)
		return err
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := newLibraryFromConfig(libraryConfig)
		if err != nil {
			return err
		}
		defer func() { _ = lib.Shutdown() }()

		protected, err := hex.DecodeString(strings.TrimSpace(processFrameHex))
		if err != nil {
			return fmt.Errorf("--frame must be hex-encoded: %w", err)
		}

		plain, report, err := lib.ProcessSecurityTC(protected)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(plain))
		cmd.PrintErrf("spi=%d\n", report.SPI)
		if report.FSR != nil {
			cmd.PrintErrf("fsr=%s\n", hex.EncodeToString(report.FSR.Build()))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(processTCCmd)
	processTCCmd.Flags().StringVar(&processFrameHex, "frame", "", "Hex-encoded protected TC frame")
	_ = processTCCmd.MarkFlagRequired("frame")
}
