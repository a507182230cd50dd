// SPDX-License-Identifier: Apache 2.0

package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var sdlsPDUHex string

var sdlsPDUCmd = &cobra.Command{
	Use:   "sdls-pdu",
	Short: "Dispatch a raw SDLS command PDU against the SA Store",
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

		pdu, err := hex.DecodeString(strings.TrimSpace(sdlsPDUHex))
		if err != nil {
			return fmt.Errorf("--pdu must be hex-encoded: %w", err)
		}

		result, err := lib.HandleSDLSPDU(pdu)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(result.FSR.Build()))
		if result.Status != nil {
			for _, s := range result.Status.SAs {
				cmd.PrintErrf("spi=%d state=%s ekid=%d akid=%d\n", s.SPI, s.State, s.EKID, s.AKID)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sdlsPDUCmd)
	sdlsPDUCmd.Flags().StringVar(&sdlsPDUHex, "pdu", "", "Hex-encoded SDLS command PDU")
	_ = sdlsPDUCmd.MarkFlagRequired("pdu")
}
