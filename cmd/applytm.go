// SPDX-License-Identifier: Apache 2.0

package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nasa-itc/sdls/internal/sa"
)

var (
	applyTMFrameHex     string
	applyTMTFVN         uint8
	applyTMSCID         uint16
	applyTMVCID         uint8
	applyTMMCFrameCount uint8
	applyTMVCFrameCount uint8
)

var applyTMCmd = &cobra.Command{
	Use:   "apply-tm",
	Short: "Frame a plaintext TM payload with the TM security header/trailer",
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

		plain, err := hex.DecodeString(strings.TrimSpace(applyTMFrameHex))
		if err != nil {
			return fmt.Errorf("--frame must be hex-encoded: %w", err)
		}

		gvcid := sa.GVCID{TFVN: applyTMTFVN, SCID: applyTMSCID, VCID: applyTMVCID}
		protected, err := lib.ApplySecurityTM(plain, gvcid, applyTMMCFrameCount, applyTMVCFrameCount)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(protected))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(applyTMCmd)
	applyTMCmd.Flags().StringVar(&applyTMFrameHex, "frame", "", "Hex-encoded plaintext TM payload")
	applyTMCmd.Flags().Uint8Var(&applyTMTFVN, "tfvn", 0, "Transfer Frame Version Number")
	applyTMCmd.Flags().Uint16Var(&applyTMSCID, "scid", 0, "Spacecraft Identifier")
	applyTMCmd.Flags().Uint8Var(&applyTMVCID, "vcid", 0, "Virtual Channel Identifier")
	applyTMCmd.Flags().Uint8Var(&applyTMMCFrameCount, "mc-frame-count", 0, "Master channel frame count")
	applyTMCmd.Flags().Uint8Var(&applyTMVCFrameCount, "vc-frame-count", 0, "Virtual channel frame count")
	_ = applyTMCmd.MarkFlagRequired("frame")
}
