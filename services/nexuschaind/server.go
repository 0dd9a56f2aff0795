package nexuschaind

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server exposes the on-chain commerce and consensus pallets over a single
// JSON transaction endpoint, the same terminate-then-dispatch shape
// nexusagentd uses for webhook deliveries, generalized to a synchronous
// request/response instead of a queued pipeline since pallet calls are
// in-memory and return immediately.
type Server struct {
	chain  *Chain
	logger *slog.Logger
}

// NewServer wires an already-assembled Chain into a running HTTP surface.
func NewServer(chain *Chain, logger *slog.Logger) *Server {
	return &Server{chain: chain, logger: logger}
}

// Router builds the chi mux: a liveness probe and the tx dispatch route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Get("/healthz", s.handleHealthz)
	r.Post("/tx", s.handleTx)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// txRequest is the wire envelope for one dispatched operation: a type name
// matching a dispatchTable key and its operation-specific JSON params.
type txRequest struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

type txResponse struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleTx(w http.ResponseWriter, r *http.Request) {
	var req txRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, txResponse{Error: "invalid request body"})
		return
	}

	handler, ok := dispatchTable[req.Type]
	if !ok {
		s.writeJSON(w, http.StatusNotFound, txResponse{Error: "unknown tx type " + req.Type})
		return
	}

	result, err := handler(s.chain, req.Params)
	if err != nil {
		s.logger.Warn("tx rejected", "type", req.Type, "error", err)
		s.writeJSON(w, http.StatusBadRequest, txResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, txResponse{Result: result})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body txResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
