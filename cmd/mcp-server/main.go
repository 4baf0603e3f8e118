package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edvin/firestore-admin/internal/admin"
	"github.com/edvin/firestore-admin/internal/cli"
	"github.com/edvin/firestore-admin/internal/config"
	"github.com/edvin/firestore-admin/internal/logging"
	"github.com/edvin/firestore-admin/internal/mcpserver"
	"github.com/edvin/firestore-admin/internal/metrics"
	"github.com/edvin/firestore-admin/internal/retry"
	"github.com/edvin/firestore-admin/internal/transport"
)

func main() {
	var (
		configPath = flag.String("config", "mcp.yaml", "Path to mcp.yaml configuration file")
		profile    = flag.String("profile", "", "Connection profile (defaults to the active profile)")
		addr       = flag.String("addr", ":8090", "Listen address")
		readOnly   = flag.Bool("read-only", false, "Expose only read tools")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "mcp-server"
	}
	if _, err := cli.Resolve(cfg, *profile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to resolve profile: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate("mcp-server"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	mcpCfg := &mcpserver.Config{}
	if _, statErr := os.Stat(*configPath); statErr == nil {
		if mcpCfg, err = mcpserver.LoadConfig(*configPath); err != nil {
			logger.Fatal().Err(err).Msg("failed to load MCP config")
		}
	} else {
		logger.Info().Str("path", *configPath).Msg("no MCP config file, exposing every tool")
	}
	if *readOnly {
		mcpCfg.ReadOnly = true
	}

	tc, err := transport.NewFromConfig(cfg, logger, transport.AdminRoutes, retry.AdminDefaults())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create admin transport")
	}
	srv := mcpserver.New(mcpCfg, tc, admin.New(tc, logger), logger)

	if envAddr := os.Getenv("MCP_ADDR"); envAddr != "" {
		*addr = envAddr
	}

	httpSrv := &http.Server{
		Addr:         *addr,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = metrics.NewServer(cfg.MetricsAddr)
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info().Str("addr", *addr).Int("tools", len(srv.ToolNames())).Msg("MCP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-done
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	if metricsSrv != nil {
		metricsSrv.Shutdown(ctx)
	}

	fmt.Println("MCP server stopped")
}
