package nexusagentd

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

	"nexuschain/nexus/agent"
	"nexuschain/nexus/keymanager"
	"nexuschain/nexus/platform"
	"nexuschain/nexus/ruleengine"
	"nexuschain/observability/logging"
)

// Main runs the agent daemon using the provided command line flags. It is
// the single entrypoint cmd/nexusagentd delegates to.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/nexusagentd/config.json", "path to nexusagentd configuration")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("NEXUS_ENV"))
	logger := logging.Setup("nexusagentd", env)

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	registry := platform.NewRegistry()
	adapter, err := registry.MustGet(cfg.Platform)
	if err != nil {
		return fmt.Errorf("resolve platform adapter: %w", err)
	}

	km, err := keymanager.LoadOrGenerate(cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("load agent key: %w", err)
	}

	seq, err := agent.OpenSequencer(cfg.SequencerPath)
	if err != nil {
		return fmt.Errorf("open sequencer: %w", err)
	}
	defer func() { _ = seq.Close() }()

	signer := agent.NewSigner(km, seq, cfg.BotIDHash)
	engine := ruleengine.NewEngine()
	mc := NewRESTMulticaster(cfg.NodeEndpoints)

	srv := NewServer(cfg, adapter, engine, signer, mc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv.Start(ctx)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Printf("nexusagentd listening on %s (platform=%s)", cfg.ListenAddr, cfg.Platform)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
		}
		srv.Stop()
		return nil
	case err := <-errs:
		srv.Stop()
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
