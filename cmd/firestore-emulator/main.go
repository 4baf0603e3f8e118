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

	"github.com/edvin/firestore-admin/internal/config"
	"github.com/edvin/firestore-admin/internal/emulator"
	"github.com/edvin/firestore-admin/internal/logging"
)

func main() {
	addrFlag := flag.String("addr", "", "Listen address (overrides HTTP_LISTEN_ADDR)")
	exportDirFlag := flag.String("export-dir", "", "Directory export and backup blobs are written to (overrides EMULATOR_EXPORT_DIR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *addrFlag != "" {
		cfg.HTTPListenAddr = *addrFlag
	}
	if *exportDirFlag != "" {
		cfg.EmulatorExportDir = *exportDirFlag
	}

	if err := cfg.Validate("firestore-emulator"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	emu := emulator.New(cfg, logger)
	defer emu.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := emu.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("backup scheduler stopped")
		}
	}()

	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      emu.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.HTTPListenAddr).
			Str("export_dir", cfg.EmulatorExportDir).
			Dur("operation_delay", cfg.EmulatorOperationDelay).
			Msg("starting firestore emulator")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down emulator")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}
