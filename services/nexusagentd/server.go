package nexusagentd

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"nexuschain/nexus/agent"
	"nexuschain/nexus/platform"
	"nexuschain/nexus/ruleengine"
	"nexuschain/services/webhook"
)

const (
	defaultMulticastTimeout = 10 * time.Second
	webhookBodyLimit        = 1 << 20 // 1 MiB, generous for a single chat-platform event payload
)

// rateLimitSubject is the single tracked id for this process's one bot/group
// scope: nexusagentd runs one bot per process, so the webhook route has
// exactly one rate-limit bucket rather than one per caller.
const rateLimitSubject int64 = 0

// webhookJob is one raw platform delivery queued for rule evaluation.
type webhookJob struct {
	raw json.RawMessage
}

// Server terminates one bot's webhook deliveries, evaluates them against the
// group's rule configuration, and signs and multicasts the resulting action
// proposal to the owner's selected consensus nodes. The HTTP handler and the
// evaluation pipeline are decoupled by a bounded channel so a burst of
// deliveries backpressures at the queue rather than spawning unbounded
// goroutines.
type Server struct {
	cfg     Config
	adapter platform.Adapter
	engine  *ruleengine.Engine
	signer  *agent.Signer
	mc      agent.Multicaster
	limiter *webhook.RateLimiter
	logger  *slog.Logger

	jobs chan webhookJob
	wg   sync.WaitGroup
}

// NewServer wires the already-constructed collaborators into a running
// pipeline. Start must be called to launch the worker pool before the
// returned server is handed to an http.Server.
func NewServer(cfg Config, adapter platform.Adapter, engine *ruleengine.Engine, signer *agent.Signer, mc agent.Multicaster, logger *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		adapter: adapter,
		engine:  engine,
		signer:  signer,
		mc:      mc,
		limiter: webhook.NewRateLimiter(),
		logger:  logger,
		jobs:    make(chan webhookJob, cfg.QueueCapacity),
	}
}

// Start launches the fixed-size worker pool. Call once before serving
// traffic; Stop drains it on shutdown.
func (s *Server) Start(ctx context.Context) {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
}

// Stop closes the job queue and waits for in-flight work to finish.
func (s *Server) Stop() {
	close(s.jobs)
	s.wg.Wait()
}

// Router builds the chi mux: a liveness probe and the single webhook
// ingress route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Get("/healthz", s.handleHealthz)
	r.Post("/webhook", s.handleWebhook)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(rateLimitSubject, s.cfg.WebhookRateLimitPerMinute, time.Now().UTC()) {
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	select {
	case s.jobs <- webhookJob{raw: json.RawMessage(body)}:
		w.WriteHeader(http.StatusAccepted)
	default:
		// Queue saturated: refuse rather than buffer unboundedly.
		s.logger.Warn("webhook queue saturated, rejecting delivery")
		w.WriteHeader(http.StatusServiceUnavailable)
	}
}

func (s *Server) worker(ctx context.Context) {
	defer s.wg.Done()
	for job := range s.jobs {
		s.process(ctx, job)
	}
}

func (s *Server) process(ctx context.Context, job webhookJob) {
	ev, ok := s.adapter.ExtractContext(job.raw)
	if !ok {
		return
	}
	if !ev.Valid() {
		s.logger.Warn("dropping normalized event with conflicting event-kind flags")
		return
	}

	ruleCtx := ruleengine.RuleContext{Event: ev, Config: s.cfg.Group}
	action := s.engine.Evaluate(ruleCtx)
	if action.Kind == platform.ActionNone {
		return
	}

	var telegramUpdate []byte
	if s.cfg.Platform == platform.Telegram {
		telegramUpdate = job.raw
	}

	signed, err := s.signer.Sign(ev, telegramUpdate)
	if err != nil {
		s.logger.Error("failed to sign action proposal", "error", err)
		return
	}

	targets := agent.SelectNodes(s.cfg.Nodes, signed.Sequence, s.cfg.BotIDHash, s.cfg.QuorumSize)
	if len(targets) == 0 {
		s.logger.Error("no eligible consensus nodes to multicast to")
		return
	}

	results := agent.Multicast(ctx, s.mc, targets, signed)
	if successes := agent.CountSuccesses(results); successes < s.cfg.QuorumSize {
		s.logger.Warn("multicast fell short of quorum target",
			"successes", successes, "targets", len(targets), "sequence", signed.Sequence)
	}
}
