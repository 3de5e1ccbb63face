package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/FairForge/viewercore/internal/drivers"
	"github.com/FairForge/viewercore/internal/image360"
	"github.com/FairForge/viewercore/internal/provider"
	"github.com/FairForge/viewercore/internal/scene"
)

// maxBodyBytes bounds request bodies, scene metadata included.
const maxBodyBytes = 32 << 20

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		logger.Error("API error", zap.Error(err), zap.Int("status", status))
	} else {
		logger.Debug("API error", zap.Error(err), zap.Int("status", status))
	}
	writeJSON(logger, w, status, map[string]string{
		"error": err.Error(),
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, image360.ErrNotFound),
		errors.Is(err, provider.ErrUnknownSite),
		errors.Is(err, drivers.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, image360.ErrDisposed), errors.Is(err, image360.ErrPurged):
		return http.StatusGone
	case errors.Is(err, image360.ErrCacheClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, scene.ErrInvalidMetadata), scene.IsStructural(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, w http.ResponseWriter, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
