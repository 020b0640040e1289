package handlers

import (
	"net/http"
	"strings"

	"github.com/jjudge-oj/accountserver/internal/apperr"
	"github.com/jjudge-oj/accountserver/internal/services"
	"go.uber.org/zap"
)

// TokenVerifier recovers the subject of a bearer token.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// RequireAuth is the single enforcement point for protected routes. It
// verifies the bearer token and attaches the caller's identity to the
// request context; on failure the request ends with 401 and next is never
// called.
func RequireAuth(verifier TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, logger, err)
				return
			}

			subject, err := verifier.Verify(tokenString)
			if err != nil {
				logger.Debug("bearer token rejected", zap.String("kind", string(apperr.KindOf(err))))
				writeError(w, logger, err)
				return
			}

			ctx := withIdentity(r.Context(), services.Identity{Subject: subject})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", apperr.New(apperr.KindMalformedToken, "missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", apperr.New(apperr.KindMalformedToken, "invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", apperr.New(apperr.KindMalformedToken, "invalid authorization")
	}
	return token, nil
}
