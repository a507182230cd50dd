// SPDX-License-Identifier: Apache 2.0

// Package api assembles the optional HTTP demo layer's routes on top
// of a configured and initialized Library, mirroring the teacher's
// NewHTTPHandler/RegisterRoutes shape.
package api

import (
	"net/http"

	"github.com/nasa-itc/sdls"
	"github.com/nasa-itc/sdls/api/handlers"
)

// NewRouter registers the health, apply/process, SA status, and SDLS
// PDU endpoints against lib and returns the assembled mux.
func NewRouter(lib *sdls.Library) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HealthHandler)
	mux.HandleFunc("/tc/apply", handlers.ApplyTCHandler(lib))
	mux.HandleFunc("/tc/process", handlers.ProcessTCHandler(lib))
	mux.HandleFunc("/tm/apply", handlers.ApplyTMHandler(lib))
	mux.HandleFunc("/sdls-pdu", handlers.SDLSPDUHandler(lib))
	mux.HandleFunc("/sa", handlers.SAStatusHandler(lib))
	mux.HandleFunc("/sa/", handlers.SAStatusHandler(lib))
	return mux
}
