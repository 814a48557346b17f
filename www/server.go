package www

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/icodeforyou/meterit-go/config"
	"github.com/icodeforyou/meterit-go/database"
	"github.com/icodeforyou/meterit-go/metrics"
	"github.com/icodeforyou/meterit-go/task"
	"github.com/icodeforyou/meterit-go/types/maybe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

type ReadingStore interface {
	SaveReading(ctx context.Context, r database.ReadingRow) error
	GetReadings(ctx context.Context) ([]database.ReadingRow, error)
}

type PriceSource interface {
	Get(ctx context.Context) maybe.Maybe[decimal.Decimal]
	Invalidate(ctx context.Context)
}

type PriceFetcher interface {
	Fetch(ctx context.Context, today bool) (task.FetchResult, error)
}

type Server struct {
	logger  *slog.Logger
	config  config.AppConfigApi
	mux     *http.ServeMux
	metrics *metrics.Metrics
}

func NewServer(
	db ReadingStore,
	prices PriceSource,
	fetcher PriceFetcher,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	config config.AppConfigApi,
) *Server {
	logger := slog.Default().With("module", "www")
	s := &Server{
		logger:  logger,
		config:  config,
		mux:     http.NewServeMux(),
		metrics: m,
	}

	s.handle("GET /{$}", NewListReadingsHandler(logger.With(slog.String("handler", "list_readings")), db))
	s.handle("POST /{$}", NewCreateReadingHandler(logger.With(slog.String("handler", "create_reading")), db, prices, m))
	s.handle("GET /current_price", NewCurrentPriceHandler(logger.With(slog.String("handler", "current_price")), prices))
	s.handle("GET /force_get_prices", NewForceGetPricesHandler(logger.With(slog.String("handler", "force_get_prices")), fetcher, prices))
	s.handle("GET /ping", NewPingHandler())

	if gatherer != nil {
		s.handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return s
}

func (s *Server) handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, s.logReqMW(pattern, h))
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logReqMW(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		s.metrics.ObserveRequest(route, rec.status, elapsed)
		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("url", r.URL.String()),
			slog.String("remoteAddr", r.RemoteAddr),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", elapsed))
	})
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)
	s.logger.Info("starting server...", slog.String("addr", addr))

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErrors := make(chan error, 1)
	go func() {
		srvErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-srvErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		s.logger.Info("server stopped")
		return nil
	}
}
