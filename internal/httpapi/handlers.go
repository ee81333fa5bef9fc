package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/TemirB/save-cart-for-later/internal/domain"
	"github.com/TemirB/save-cart-for-later/internal/normalize"
	"github.com/TemirB/save-cart-for-later/internal/observability"
)

const (
	maxBodyBytes      = 1 << 20
	headerCartVersion = "X-Cart-Version"
)

type saveResponse struct {
	Success bool                      `json:"success"`
	Message string                    `json:"message"`
	Count   int                       `json:"count"`
	Cart    *domain.SavedCartSnapshot `json:"cart"`
}

type retrieveResponse struct {
	Success bool                      `json:"success"`
	Cart    *domain.SavedCartSnapshot `json:"cart"`
}

func (s *Server) save(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: read body: %w", domain.ErrMalformedRequest, err))
		return
	}

	req, err := s.normalizer.Save(normalize.Raw{
		Query:   r.URL.Query(),
		Body:    body,
		Session: sessionFrom(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	snap, st, err := s.service.Save(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	observability.AppendServerTiming(w, observability.TimingDBWrite, st.DBWriteMs, "")
	w.Header().Set(headerCartVersion, strconv.FormatInt(snap.Version, 10))

	writeJSON(w, http.StatusOK, saveResponse{
		Success: true,
		Message: fmt.Sprintf("Saved %d items to cart", len(snap.Items)),
		Count:   len(snap.Items),
		Cart:    snap,
	})
}

func (s *Server) retrieve(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Method == http.MethodPost {
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: read body: %w", domain.ErrMalformedRequest, err))
			return
		}
		body = b
	}

	req, err := s.normalizer.Retrieve(normalize.Raw{
		Query:   r.URL.Query(),
		Body:    body,
		Session: sessionFrom(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	snap, st, err := s.service.Retrieve(r.Context(), req.Key())
	observability.AppendServerTiming(w, observability.TimingCache, st.CacheMs, "")
	observability.AppendServerTiming(w, observability.TimingDB, st.DBMs, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	observability.AppendServerTiming(w, observability.TimingSource, 0, string(st.Source))
	w.Header().Set("X-Source", string(st.Source))
	w.Header().Set(headerCartVersion, strconv.FormatInt(snap.Version, 10))

	writeJSON(w, http.StatusOK, retrieveResponse{Success: true, Cart: snap})
}

// appProxy is the single entry point used when the storefront proxy is
// configured with one URL; the target is picked by the path query parameter.
func (s *Server) appProxy(w http.ResponseWriter, r *http.Request) {
	switch path := r.URL.Query().Get("path"); {
	case path == "save-cart" && r.Method == http.MethodPost:
		s.save(w, r)
	case path == "saved-cart" && r.Method == http.MethodGet:
		s.retrieve(w, r)
	default:
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "Not found"})
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ready(r.Context()); err != nil {
		s.logger.Warn("Readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type totals interface {
	Totals() observability.Totals
}

func (s *Server) debugMetrics(w http.ResponseWriter, _ *http.Request) {
	t, ok := s.metrics.(totals)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "Not found"})
		return
	}
	writeJSON(w, http.StatusOK, t.Totals())
}

// isBodyTooLarge reports whether err came from MaxBytesReader.
func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
