// File path: cmd/codeproof/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeproof/codeproof/internal/api"
	"github.com/codeproof/codeproof/internal/common"
	"github.com/codeproof/codeproof/internal/config"
	"github.com/codeproof/codeproof/internal/data/orchestrator"
	"github.com/codeproof/codeproof/internal/scheduler"
)

func main() {
	logger := common.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(); err != nil {
		logger.Warn("codeproof: .env file not loaded", "error", err)
	} else {
		logger.Info("codeproof: environment loaded from .env")
	}

	addr := flag.String("addr", ":8080", "listen address")
	indexPath := flag.String("index", defaultIndexPath(), "path to the SQLite index database")
	workers := flag.Int("workers", 2, "background scheduler workers")
	autoStartDefault := false
	if env := strings.TrimSpace(os.Getenv("CODEPROOF_AUTOSTART")); env != "" {
		if parsed, err := strconv.ParseBool(env); err == nil {
			autoStartDefault = parsed
		}
	}
	autoStart := flag.Bool("auto-start-qdrant", autoStartDefault, "launch a bundled Qdrant helper process")
	flag.Parse()

	logger.Info("codeproof: startup initiated", "addr", *addr, "index", *indexPath)

	if *autoStart {
		service, err := startQdrant(ctx, logger)
		if err != nil {
			logger.Error("codeproof: failed to launch qdrant", "error", err)
			fmt.Fprintln(os.Stderr, "qdrant startup error:", err)
			os.Exit(1)
		}
		defer service.Stop(context.Background())
	}

	cfg := config.Load()
	orch, err := orchestrator.New(ctx, cfg, *indexPath)
	if err != nil {
		logger.Error("codeproof: orchestrator init failed", "error", err)
		os.Exit(1)
	}
	defer orch.Close()

	sched := scheduler.NewInline(*workers, 128)
	defer sched.Close()

	server, err := api.NewServer(orch, sched)
	if err != nil {
		logger.Error("codeproof: server init failed", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.Info("codeproof: shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
		cancel()
	}()

	logger.Info("codeproof: serving", "addr", *addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("codeproof: server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("codeproof: shutdown complete")
}

func defaultIndexPath() string {
	if env := strings.TrimSpace(os.Getenv("INDEX_DB_PATH")); env != "" {
		return env
	}
	return "codeproof.db"
}
