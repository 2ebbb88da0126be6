// Package statsapi serves the miner's live status over HTTP, following the
// APIResponse{Success,Message,Data} envelope and mux.HandleFunc routing
// dilithiumcoin's api.go uses for its node endpoints.
package statsapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/verus-community/verusminer/internal/mining"
	"github.com/verus-community/verusminer/internal/stratum"
)

// APIResponse is the standard response envelope for every endpoint.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Server exposes an Engine and Client's live counters over HTTP.
type Server struct {
	engine    *mining.Engine
	client    *stratum.Client
	startedAt time.Time
	rl        *rateLimiter
}

// New returns a Server. startedAt is supplied by the caller and is the
// moment the reported uptime and hashrate are measured from.
func New(engine *mining.Engine, client *stratum.Client, startedAt time.Time) *Server {
	return &Server{
		engine:    engine,
		client:    client,
		startedAt: startedAt,
		rl:        newRateLimiter(60, time.Minute),
	}
}

// ListenAndServe registers routes and blocks serving on addr, matching
// StartAPI's ListenAndServe-and-log-error pattern.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/summary", rateLimitMiddleware(s.rl, s.handleSummary))
	mux.HandleFunc("/threads", rateLimitMiddleware(s.rl, s.handleThreads))
	mux.HandleFunc("/pool", rateLimitMiddleware(s.rl, s.handlePool))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "only GET allowed")
		return
	}

	accepted, rejected := s.client.Stats()
	uptime := time.Since(s.startedAt)
	total := s.engine.TotalHashes()

	respondJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "summary retrieved",
		Data: map[string]interface{}{
			"uptime_seconds":   uptime.Seconds(),
			"total_hashes":     total,
			"hashrate":         hashrate(total, uptime),
			"shares_accepted":  accepted,
			"shares_rejected":  rejected,
			"pool_state":       s.client.State().String(),
		},
	})
}

func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "only GET allowed")
		return
	}
	respondJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "thread stats retrieved",
		Data:    s.engine.Stats(),
	})
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "only GET allowed")
		return
	}
	respondJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "pool state retrieved",
		Data: map[string]interface{}{
			"state":        s.client.State().String(),
			"extranonce1":  hexOrEmpty(s.client.ExtraNonce1()),
		},
	})
}

func hashrate(totalHashes uint64, uptime time.Duration) float64 {
	secs := uptime.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(totalHashes) / secs
}

func hexOrEmpty(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexdigits[v>>4]
		out[i*2+1] = hexdigits[v&0xf]
	}
	return string(out)
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, APIResponse{
		Success: false,
		Message: message,
	})
}
