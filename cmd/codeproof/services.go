// File path: cmd/codeproof/services.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/codeproof/codeproof/internal/common/process"
)

// startQdrant supervises a bundled Qdrant binary for single-node setups.
// Production deployments point QDRANT_HOST at a managed instance instead.
func startQdrant(ctx context.Context, logger *slog.Logger) (*process.ManagedService, error) {
	binary := strings.TrimSpace(os.Getenv("QDRANT_BINARY"))
	if binary == "" {
		binary = "qdrant"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("qdrant binary %q not found in PATH: %w", binary, err)
	}

	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	dataDir := filepath.Join(workDir, "qdrant_data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare qdrant data directory: %w", err)
	}

	for key, value := range map[string]string{
		"QDRANT_HOST":   "127.0.0.1",
		"QDRANT_PORT":   "6333",
		"QDRANT_SCHEME": "http",
	} {
		if err := ensureEnvDefault(key, value); err != nil {
			return nil, err
		}
	}

	host := os.Getenv("QDRANT_HOST")
	port := os.Getenv("QDRANT_PORT")
	readyURL := fmt.Sprintf("%s://%s/readyz", os.Getenv("QDRANT_SCHEME"), net.JoinHostPort(host, port))

	return process.Start(ctx, process.ServiceConfig{
		Name:     "qdrant",
		Command:  binary,
		Env:      []string{"QDRANT__STORAGE__STORAGE_PATH=" + dataDir},
		WorkDir:  workDir,
		ReadyURL: readyURL,
		Logger:   logger,
	})
}

func ensureEnvDefault(key, value string) error {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return nil
	}
	if err := os.Setenv(key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
