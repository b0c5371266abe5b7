package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richinsley/comfymcp/tool"
	"github.com/spf13/cobra"
)

var serveFlags struct {
	http bool
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Starts an MCP server exposing the generate_image and comfyui_info tools.
By default the server speaks over stdin/stdout. With --http it serves the
streamable HTTP transport on /mcp together with /metrics and /healthz.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.BoolVar(&serveFlags.http, "http", false, "Serve over HTTP instead of stdio")
	f.StringVar(&serveFlags.addr, "addr", "", "HTTP listen address (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	t, _, err := newTool(ctx)
	if err != nil {
		return err
	}
	server := tool.NewServer(t, version)

	if !serveFlags.http {
		slog.Info("starting MCP server over stdio", "backend", cfg.URL)
		return server.Run(ctx, &mcp.StdioTransport{})
	}

	addr := serveFlags.addr
	if addr == "" {
		addr = cfg.HTTPAddr
	}
	return serveHTTP(ctx, addr, server)
}

func newRouter(server *mcp.Server) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}).Methods("GET")

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil))
	return r
}

func serveHTTP(ctx context.Context, addr string, server *mcp.Server) error {
	// no write timeout: a tool call lasts as long as the job
	srv := &http.Server{
		Addr:        addr,
		Handler:     newRouter(server),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting MCP server over http", "addr", addr, "backend", cfg.URL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
