package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yousuf/profremap/internal/config"
	"github.com/yousuf/profremap/internal/logger"
	"github.com/yousuf/profremap/internal/remap"
	"github.com/yousuf/profremap/internal/server"
	"github.com/yousuf/profremap/internal/sourcemap"
)

func main() {
	logger := logger.NewLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), "profremap-mcp")

	// Layout overrides are optional
	layout := config.Default()
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		var err error
		layout, err = config.Load(configPath)
		if err != nil {
			level.Error(logger).Log("msg", "failed to load config", "err", err)
			os.Exit(1)
		}
		level.Info(logger).Log("msg", "loaded configuration", "path", configPath)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	remapper := remap.New(logger, reg, layout, sourcemap.NewFileLoader(logger))
	mcpServer := server.NewMCPServer(logger, remapper, layout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Without a port the server speaks MCP over stdin/stdout
	port := os.Getenv("PORT")
	if port == "" {
		level.Info(logger).Log("msg", "serving MCP over stdio")
		if err := mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			level.Error(logger).Log("msg", "server failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := serveHTTP(ctx, logger, reg, mcpServer, port); err != nil {
		level.Error(logger).Log("msg", "server failed", "err", err)
		os.Exit(1)
	}
}

// serveHTTP serves MCP on /mcp and metrics on /metrics until ctx is done, then shuts down gracefully.
func serveHTTP(ctx context.Context, logger log.Logger, reg *prometheus.Registry, mcpServer *mcp.Server, port string) error {
	handler := mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return mcpServer
	}, &mcp.StreamableHTTPOptions{})

	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		level.Info(logger).Log("msg", "profremap MCP server listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	level.Info(logger).Log("msg", "shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	level.Info(logger).Log("msg", "server stopped")
	return nil
}
