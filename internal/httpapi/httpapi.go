package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/TemirB/save-cart-for-later/internal/application/service"
	"github.com/TemirB/save-cart-for-later/internal/domain"
	"github.com/TemirB/save-cart-for-later/internal/normalize"
	"github.com/TemirB/save-cart-for-later/internal/observability"
)

//go:generate mockgen -source internal/httpapi/httpapi.go -destination=internal/httpapi/httpapi_mock_test.go -package=httpapi

type CartService interface {
	Save(ctx context.Context, req domain.NormalizedSaveRequest) (*domain.SavedCartSnapshot, service.UpsertStats, error)
	Retrieve(ctx context.Context, key domain.Key) (*domain.SavedCartSnapshot, service.LookupStats, error)
	Ready(ctx context.Context) error
}

type Verifier interface {
	Verify(params url.Values) error
}

type Options struct {
	// APIKey enables the /api/cart routes when set.
	APIKey      string
	CORSOrigins []string
}

type Server struct {
	service    CartService
	verifier   Verifier
	normalizer *normalize.Normalizer
	opts       Options
	router     chi.Router
	logger     *zap.Logger
	metrics    observability.Metrics
}

func New(svc CartService, verifier Verifier, normalizer *normalize.Normalizer, opts Options, logger *zap.Logger, metrics observability.Metrics) *Server {
	if metrics == nil {
		metrics = observability.Noop{}
	}
	s := &Server{
		service:    svc,
		verifier:   verifier,
		normalizer: normalizer,
		opts:       opts,
		router:     chi.NewRouter(),
		logger:     logger,
		metrics:    metrics,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(s.opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", headerAPIKey, normalize.HeaderCustomerID},
			ExposedHeaders: []string{"Server-Timing", headerCartVersion},
			MaxAge:         300,
		}))
	}
	r.Use(ServerTimingApp(s.metrics))

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Get("/debug/metrics", s.debugMetrics)

	r.Route("/apps/save-cart", func(r chi.Router) {
		r.Use(s.proxySignature)
		r.Post("/save", s.save)
		r.Get("/saved", s.retrieve)
	})
	r.With(s.proxySignature).HandleFunc("/app_proxy", s.appProxy)

	if s.opts.APIKey != "" {
		r.Route("/api/cart", func(r chi.Router) {
			r.Use(s.requireAPIKey)
			r.Post("/save", s.save)
			r.Get("/saved", s.retrieve)
			// route names used by the admin app
			r.Post("/save-cart", s.save)
			r.Post("/import-saved-cart", s.retrieve)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "Not found"})
	})
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for at most shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
