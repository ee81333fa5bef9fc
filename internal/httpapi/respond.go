package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/TemirB/save-cart-for-later/internal/domain"
)

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes. Server-side details stay
// in the log.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := errorStatus(err)
	if status == http.StatusInternalServerError && savingRequest(r) {
		resp.Message = "Failed to save cart"
	}
	if isBodyTooLarge(err) {
		status = http.StatusRequestEntityTooLarge
	}

	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", fields...)
	} else {
		s.logger.Info("Request rejected", fields...)
	}
	writeJSON(w, status, resp)
}

func errorStatus(err error) (int, errorResponse) {
	switch {
	case domain.IsAuthError(err):
		return http.StatusUnauthorized, errorResponse{Message: "Unauthorized", Error: err.Error()}
	case domain.IsClientError(err):
		return http.StatusBadRequest, errorResponse{Message: clientMessage(err), Error: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorResponse{Message: "No saved cart found"}
	case errors.Is(err, domain.ErrStorage):
		return http.StatusInternalServerError, errorResponse{Message: "Failed to retrieve saved cart"}
	default:
		return http.StatusInternalServerError, errorResponse{Message: "Internal server error"}
	}
}

func clientMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingCustomer):
		return "Customer ID is required"
	case errors.Is(err, domain.ErrEmptyItems):
		return "No cart items to save"
	case errors.Is(err, domain.ErrInvalidItems):
		return "Invalid items"
	default:
		return "Invalid request body"
	}
}

func savingRequest(r *http.Request) bool {
	return r.Method == http.MethodPost && !strings.HasSuffix(r.URL.Path, "/import-saved-cart")
}
