// SPDX-License-Identifier: Apache 2.0

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/nasa-itc/sdls"
	"github.com/nasa-itc/sdls/internal/sa"
)

// saView is the JSON-facing projection of a SecurityAssociation:
// the first ECS byte is hex-encoded; IV, ARC and ABM are not exposed.
type saView struct {
	SPI     uint16 `json:"spi"`
	TFVN    uint8  `json:"tfvn"`
	SCID    uint16 `json:"scid"`
	VCID    uint8  `json:"vcid"`
	MAPID   *uint8 `json:"mapid,omitempty"`
	State   string `json:"state"`
	EKID    uint16 `json:"ekid"`
	AKID    uint16 `json:"akid"`
	ARCW    uint16 `json:"arcw"`
	ECSHex  string `json:"ecs"`
	ACS     uint8  `json:"acs"`
}

func toSAView(s *sa.SecurityAssociation) saView {
	return saView{
		SPI:    s.SPI,
		TFVN:   s.GVCIDTC.TFVN,
		SCID:   s.GVCIDTC.SCID,
		VCID:   s.GVCIDTC.VCID,
		MAPID:  s.MAPID,
		State:  s.State.String(),
		EKID:   s.EKID,
		AKID:   s.AKID,
		ARCW:   s.ARCW,
		ECSHex: hexByte(s.ECS[0]),
		ACS:    s.ACS,
	}
}

func hexByte(b byte) string {
	const hexDigits = "0123456789abcdef"
	return string([]byte{hexDigits[b>>4], hexDigits[b&0xF]})
}

// SAStatusHandler reports one SA by SPI (GET /sa/{spi}) or the full
// table when no SPI is given (GET /sa), the REST-shaped equivalent of
// an SA_STATUS SDLS PDU.
func SAStatusHandler(lib *sdls.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		spiStr := strings.TrimPrefix(r.URL.Path, "/sa/")
		if spiStr == "" || spiStr == r.URL.Path {
			listSAs(lib, w)
			return
		}
		spi, err := strconv.ParseUint(spiStr, 10, 16)
		if err != nil {
			http.Error(w, "spi must be a 16-bit integer", http.StatusBadRequest)
			return
		}
		s, err := lib.SAStatus(uint16(spi))
		if err != nil {
			writeLibraryError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toSAView(s))
	}
}

func listSAs(lib *sdls.Library, w http.ResponseWriter) {
	all, err := lib.ListSAs()
	if err != nil {
		writeLibraryError(w, err)
		return
	}
	views := make([]saView, len(all))
	for i, s := range all {
		views[i] = toSAView(s)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}
