// SPDX-License-Identifier: Apache 2.0

package cmd

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nasa-itc/sdls"
	"github.com/nasa-itc/sdls/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the SDLS demo HTTP API",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := loadLibraryConfig(cmd)
		return err
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		lib := sdls.NewLibrary()
		if err := lib.Configure(libraryConfig); err != nil {
			return err
		}
		if err := lib.Init(); err != nil {
			return err
		}
		defer func() { _ = lib.Shutdown() }()

		return NewAPIServer(serveAddr, api.NewRouter(lib)).Start()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8443", "HTTP listen address")
}

// APIServer wraps the demo HTTP layer with the teacher's
// signal-driven graceful shutdown (manufacturing.go/rendezvous.go
// Start pattern).
type APIServer struct {
	addr    string
	handler http.Handler
}

func NewAPIServer(addr string, handler http.Handler) *APIServer {
	return &APIServer{addr: addr, handler: handler}
}

func (s *APIServer) Start() error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 3 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Debug("shutting down sdls api server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Debug("server forced to shutdown", "error", err)
		}
	}()

	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	defer func() { _ = lis.Close() }()
	slog.Info("sdls api listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}
