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
	applyFrameHex string
	applyTFVN     uint8
	applySCID     uint16
	applyVCID     uint8
	applyHasMAPID bool
	applyMAPID    uint8
)

var applyTCCmd = &cobra.Command{
	Use:   "apply-tc",
	Short: "Apply SDLS protection to a plaintext TC frame",
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

		plain, err := hex.DecodeString(strings.TrimSpace(applyFrameHex))
		if err != nil {
			return fmt.Errorf("--frame must be hex-encoded: %w", err)
		}

		gvcid := sa.GVCID{TFVN: applyTFVN, SCID: applySCID, VCID: applyVCID}
		var mapid *uint8
		if applyHasMAPID {
			mapid = &applyMAPID
		}

		protected, err := lib.ApplySecurityTC(plain, gvcid, mapid)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(protected))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(applyTCCmd)
	applyTCCmd.Flags().StringVar(&applyFrameHex, "frame", "", "Hex-encoded plaintext TC frame")
	applyTCCmd.Flags().Uint8Var(&applyTFVN, "tfvn", 0, "Transfer Frame Version Number")
	applyTCCmd.Flags().Uint16Var(&applySCID, "scid", 0, "Spacecraft Identifier")
	applyTCCmd.Flags().Uint8Var(&applyVCID, "vcid", 0, "Virtual Channel Identifier")
	applyTCCmd.Flags().BoolVar(&applyHasMAPID, "has-mapid", false, "Whether a MAPID is present")
	applyTCCmd.Flags().Uint8Var(&applyMAPID, "mapid", 0, "Multiplexer Access Point Identifier")
	_ = applyTCCmd.MarkFlagRequired("frame")
}
