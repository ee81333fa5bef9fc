package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/TemirB/save-cart-for-later/internal/domain"
	"github.com/TemirB/save-cart-for-later/internal/normalize"
	"github.com/TemirB/save-cart-for-later/internal/observability"
)

const headerAPIKey = "X-API-Key"

type sessionKey struct{}

func withSession(ctx context.Context, s normalize.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func sessionFrom(ctx context.Context) normalize.Session {
	s, _ := ctx.Value(sessionKey{}).(normalize.Session)
	return s
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}

// timingWriter appends app;dur=... right before the status line goes out,
// while headers can still be modified.
type timingWriter struct {
	http.ResponseWriter
	start time.Time
	wrote bool
}

func (tw *timingWriter) WriteHeader(code int) {
	if !tw.wrote {
		tw.wrote = true
		observability.AppendServerTiming(tw.ResponseWriter, observability.TimingApp, msSince(tw.start), "")
	}
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *timingWriter) Write(b []byte) (int, error) {
	if !tw.wrote {
		tw.WriteHeader(http.StatusOK)
	}
	return tw.ResponseWriter.Write(b)
}

// ServerTimingApp measures total handling time, writes it to Server-Timing
// and reports the request to Metrics.ObserveHTTP under its route pattern.
func ServerTimingApp(m observability.Metrics) func(http.Handler) http.Handler {
	if m == nil {
		m = observability.Noop{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(&timingWriter{ResponseWriter: w, start: start}, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.ObserveHTTP(r.Method, route, ww.Status(), msSince(start))
		})
	}
}

// proxySignature rejects requests without a valid app proxy signature before
// any body is read, and puts the signed identity into the request context.
func (s *Server) proxySignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query()
		err := s.verifier.Verify(q)
		observability.AppendServerTiming(w, observability.TimingVerify, msSince(start), "")
		if err != nil {
			reason := "invalid_signature"
			if errors.Is(err, domain.ErrMissingCredentials) {
				reason = "missing_credentials"
			}
			s.metrics.IncAuthFailure(reason)
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), normalize.SessionFromProxy(q))))
	})
}

// requireAPIKey guards the server-to-server routes. The caller is trusted to
// forward the authenticated customer in X-Shopify-Customer-Id.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	want := []byte(s.opts.APIKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get(headerAPIKey))
		if len(got) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			s.metrics.IncAuthFailure("api_key")
			writeJSON(w, http.StatusForbidden, errorResponse{Message: "Forbidden: invalid or missing API key"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), normalize.SessionFromHeader(r.Header))))
	})
}
