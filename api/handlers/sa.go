// SPDX-License-Identifier: Apache 2.0

package handlers

import (
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nasa-itc/sdls"
)

type sdlsPDURequest struct {
	PDU string `json:"pdu"`
}

type sdlsPDUResponse struct {
	FSR string   `json:"fsr"`
	SAs []saView `json:"sas,omitempty"`
}

// SDLSPDUHandler dispatches a raw SDLS command PDU against the SA
// Store (POST /sdls-pdu, hex-encoded "pdu" in the body) and replies
// with the resulting Frame Security Report. For an SA_STATUS PDU
// (PID 9) the reply additionally carries the requested SA(s), the
// status payload spec.md documents as that command's distinct reply.
func SDLSPDUHandler(lib *sdls.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req sdlsPDURequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Debug("sdls-pdu: bad request", "error", err)
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		pdu, err := hex.DecodeString(req.PDU)
		if err != nil {
			http.Error(w, "pdu must be hex-encoded", http.StatusBadRequest)
			return
		}
		result, err := lib.HandleSDLSPDU(pdu)
		if err != nil {
			writeLibraryError(w, err)
			return
		}
		resp := sdlsPDUResponse{FSR: hex.EncodeToString(result.FSR.Build())}
		if result.Status != nil {
			resp.SAs = make([]saView, len(result.Status.SAs))
			for i, s := range result.Status.SAs {
				resp.SAs[i] = toSAView(s)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
