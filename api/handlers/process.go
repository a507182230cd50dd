// SPDX-License-Identifier: Apache 2.0

package handlers

import (
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nasa-itc/sdls"
)

type processResponse struct {
	Frame string  `json:"frame"`
	SPI   uint16  `json:"spi"`
	FSR   *string `json:"fsr,omitempty"`
}

// ProcessTCHandler validates and strips SDLS protection from a
// received TC frame (POST /tc/process).
func ProcessTCHandler(lib *sdls.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		_, protected, err := decodeFrameRequest(r)
		if err != nil {
			slog.Debug("process-tc: bad request", "error", err)
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		plain, report, err := lib.ProcessSecurityTC(protected)
		if err != nil {
			writeLibraryError(w, err)
			return
		}
		resp := processResponse{Frame: hex.EncodeToString(plain), SPI: report.SPI}
		if report.FSR != nil {
			s := hex.EncodeToString(report.FSR.Build())
			resp.FSR = &s
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
