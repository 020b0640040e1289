package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jjudge-oj/accountserver/internal/apperr"
	"github.com/jjudge-oj/accountserver/internal/services"
	"go.uber.org/zap"
)

type contextKey string

const contextIdentityKey contextKey = "identity"

// ErrorResponse is the error payload returned to clients.
type ErrorResponse struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

func withIdentity(ctx context.Context, identity services.Identity) context.Context {
	return context.WithValue(ctx, contextIdentityKey, identity)
}

// identityFromContext returns the caller attached by RequireAuth.
func identityFromContext(ctx context.Context) (services.Identity, bool) {
	identity, ok := ctx.Value(contextIdentityKey).(services.Identity)
	if !ok || identity.Subject == "" {
		return services.Identity{}, false
	}
	return identity, true
}

// httpStatus maps a status classification to an HTTP status code.
func httpStatus(status apperr.Status) int {
	switch status {
	case apperr.StatusOK:
		return http.StatusOK
	case apperr.StatusUnauthorized:
		return http.StatusUnauthorized
	case apperr.StatusForbidden:
		return http.StatusForbidden
	case apperr.StatusBadRequest:
		return http.StatusBadRequest
	case apperr.StatusConflict:
		return http.StatusConflict
	case apperr.StatusNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// writeError renders err as {kind, message}. Internal causes are logged and
// never sent to the client.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	kind := apperr.KindOf(err)
	status := httpStatus(kind.Status())
	if status == http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", zap.String("kind", string(kind)), zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Kind: kind, Message: apperr.MessageOf(err)})
}
