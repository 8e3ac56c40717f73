// Command synthd runs the synthesis pipeline's HTTP API.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fieldjoshua/UltrAI-JFF/api"
	"github.com/fieldjoshua/UltrAI-JFF/internal/config"
	"github.com/fieldjoshua/UltrAI-JFF/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := logging.New(os.Stderr, cfg.LogJSON, cfg.LogLevel).WithComponent("synthd")

	srv, err := api.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("listening", map[string]interface{}{"addr": addr})
	return httpServer.ListenAndServe()
}
