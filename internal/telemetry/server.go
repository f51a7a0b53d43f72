package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/agenthatchery/watchdog/internal/state"
)

// StatusSource provides the data behind /healthz and /status.
type StatusSource interface {
	// Snapshot returns a copy of the current run state.
	Snapshot() state.State
	// Ready reports whether the cold-start sync has completed.
	Ready() bool
}

// ChildStats is a point-in-time resource sample of the running child.
type ChildStats struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	NumThreads int32   `json:"num_threads"`
	Children   int     `json:"children"`
}

// StatusResponse is the /status document.
type StatusResponse struct {
	state.State
	ChildStats *ChildStats `json:"child_stats,omitempty"`
}

// Server serves /metrics, /healthz and /status.
type Server struct {
	addr    string
	metrics *Metrics
	source  StatusSource
	log     *slog.Logger
}

// NewServer creates a Server listening on addr once Run is called.
func NewServer(addr string, m *Metrics, src StatusSource, logger *slog.Logger) *Server {
	return &Server{addr: addr, metrics: m, source: src, log: logger.With("component", "telemetry")}
}

// Handler returns the router with all endpoints registered.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	if reg := s.metrics.Registry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("telemetry listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return fmt.Errorf("serving telemetry: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down telemetry: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !s.source.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"starting"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{State: s.source.Snapshot()}
	if resp.Child != nil && resp.Child.PID > 0 {
		stats, err := sampleChild(r.Context(), resp.Child.PID)
		if err != nil {
			s.log.Debug("sampling child failed", "pid", resp.Child.PID, "error", err)
		} else {
			resp.ChildStats = stats
		}
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		s.log.Debug("writing status failed", "error", err)
	}
}

// sampleChild reads the child's resource usage. Missing individual values
// are left at zero.
func sampleChild(ctx context.Context, pid int) (*ChildStats, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, err
	}
	stats := &ChildStats{PID: p.Pid}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil {
		stats.RSSBytes = mem.RSS
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = cpu
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		stats.NumThreads = n
	}
	if children, err := p.ChildrenWithContext(ctx); err == nil {
		stats.Children = len(children)
	}
	return stats, nil
}
