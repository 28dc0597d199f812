package monitor

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/ignition-tsdb/histops/internal/logger"
)

// Server re-runs the health checks on an interval and serves the latest
// report over HTTP, so an external scraper or dashboard can poll it.
type Server struct {
	checker  *Checker
	interval time.Duration

	mu     sync.RWMutex
	latest *Report
	runErr error
}

// NewServer creates a monitor server.
func NewServer(checker *Checker, interval time.Duration) *Server {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Server{checker: checker, interval: interval}
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
// The first check run happens before the listener starts so /report never
// serves an empty body to the first client.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.refresh(ctx)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.loop(loopCtx)

	server := &fasthttp.Server{
		Handler:      s.handle,
		Name:         "histops-monitor",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Get().Info().
			Str("address", addr).
			Dur("interval", s.interval).
			Msg("Monitor server starting")
		serverErrors <- server.ListenAndServe(addr)
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		logger.Get().Info().Msg("Shutting down monitor server")
		return server.Shutdown()
	}
}

func (s *Server) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *Server) refresh(ctx context.Context) {
	report, err := s.checker.Run(ctx)

	s.mu.Lock()
	if err != nil {
		s.runErr = err
	} else {
		s.latest = report
		s.runErr = nil
	}
	s.mu.Unlock()

	if err != nil {
		logger.Get().Error().Err(err).Msg("Health check run failed")
	} else {
		logger.Get().Info().Str("status", report.Status).Msg("Health check run complete")
	}
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/health":
		s.handleHealth(ctx)
	case "/report":
		s.handleReport(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetContentType("application/json")
		fmt.Fprintf(ctx, `{"error":"not found"}`)
	}
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	s.mu.RLock()
	latest, runErr := s.latest, s.runErr
	s.mu.RUnlock()

	ctx.SetContentType("application/json")
	switch {
	case runErr != nil:
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		fmt.Fprintf(ctx, `{"status":"error"}`)
	case latest == nil:
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		fmt.Fprintf(ctx, `{"status":"pending"}`)
	default:
		ctx.SetStatusCode(fasthttp.StatusOK)
		fmt.Fprintf(ctx, `{"status":%q}`, latest.Status)
	}
}

func (s *Server) handleReport(ctx *fasthttp.RequestCtx) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()

	if latest == nil {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		ctx.SetContentType("application/json")
		fmt.Fprintf(ctx, `{"error":"no report available yet"}`)
		return
	}

	var buf bytes.Buffer
	if err := WriteJSON(&buf, latest); err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetContentType("application/json")
		fmt.Fprintf(ctx, `{"error":"failed to encode report"}`)
		return
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(buf.Bytes())
}
