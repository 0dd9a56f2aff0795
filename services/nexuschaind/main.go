package nexuschaind

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nexuschain/observability/logging"
)

// Main runs the commerce/consensus chain daemon using the provided command
// line flags. It is the single entrypoint cmd/nexuschaind delegates to.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/nexuschaind/config.json", "path to nexuschaind configuration")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("NEXUS_ENV"))
	logger := logging.Setup("nexuschaind", env)

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	chainCfg, err := cfg.ToChainConfig()
	if err != nil {
		return fmt.Errorf("decode chain config: %w", err)
	}

	chain := NewChain(chainCfg)
	srv := NewServer(chain, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Printf("nexuschaind listening on %s", cfg.ListenAddr)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
		}
		return nil
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
