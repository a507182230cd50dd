// SPDX-License-Identifier: Apache 2.0

package handlers

import (
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nasa-itc/sdls"
	"github.com/nasa-itc/sdls/internal/sa"
)

// frameRequest is the common hex-encoded-frame request body shared by
// the apply/process endpoints.
type frameRequest struct {
	Frame string `json:"frame"`
	TFVN  uint8  `json:"tfvn"`
	SCID  uint16 `json:"scid"`
	VCID  uint8  `json:"vcid"`
	MAPID *uint8 `json:"mapid,omitempty"`
}

type frameResponse struct {
	Frame string `json:"frame"`
}

func decodeFrameRequest(r *http.Request) (frameRequest, []byte, error) {
	var req frameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, nil, err
	}
	raw, err := hex.DecodeString(req.Frame)
	return req, raw, err
}

// ApplyTCHandler applies SDLS protection to a plaintext TC frame
// (POST /tc/apply, hex-encoded "frame" in the body).
func ApplyTCHandler(lib *sdls.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		req, plain, err := decodeFrameRequest(r)
		if err != nil {
			slog.Debug("apply-tc: bad request", "error", err)
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		gvcid := sa.GVCID{TFVN: req.TFVN, SCID: req.SCID, VCID: req.VCID}
		protected, err := lib.ApplySecurityTC(plain, gvcid, req.MAPID)
		if err != nil {
			writeLibraryError(w, err)
			return
		}
		writeFrame(w, protected)
	}
}

// ApplyTMHandler applies SDLS protection to a plaintext TM frame
// (POST /tm/apply).
func ApplyTMHandler(lib *sdls.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		req, plain, err := decodeFrameRequest(r)
		if err != nil {
			slog.Debug("apply-tm: bad request", "error", err)
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		gvcid := sa.GVCID{TFVN: req.TFVN, SCID: req.SCID, VCID: req.VCID}
		protected, err := lib.ApplySecurityTM(plain, gvcid, 0, 0)
		if err != nil {
			writeLibraryError(w, err)
			return
		}
		writeFrame(w, protected)
	}
}

func writeFrame(w http.ResponseWriter, frame []byte) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(frameResponse{Frame: hex.EncodeToString(frame)})
}

func writeLibraryError(w http.ResponseWriter, err error) {
	code := sdls.CodeOf(err)
	status := http.StatusUnprocessableEntity
	switch code {
	case sdls.CodeConfigurationNotComplete, sdls.CodeManagedParamNotComplete, sdls.CodeSadbInvalidType:
		status = http.StatusInternalServerError
	case sdls.CodeManagedParamNotFound, sdls.CodeSANotFound, sdls.CodeSPIInvalid:
		status = http.StatusNotFound
	case sdls.CodeThrottled:
		status = http.StatusTooManyRequests
	}
	slog.Debug("library operation failed", "code", code, "error", err)
	http.Error(w, err.Error(), status)
}
