package auth

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/order-management/internal/transport"
	"github.com/frahmantamala/order-management/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	validator *TokenValidator
}

func NewHandler(validator *TokenValidator) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		validator:   validator,
	}
}

// AuthMiddleware validates the bearer token and puts the authenticated user
// into the request context.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.Logger.Error("auth middleware: missing authorization token")
			h.WriteError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		claims, err := h.validator.ValidateAccessToken(token)
		if err != nil {
			h.Logger.Error("auth middleware: token validation failed", "error", err)
			h.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		user, err := UserFromClaims(claims)
		if err != nil {
			h.Logger.Error("auth middleware: malformed identity claims", "error", err)
			h.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := logger.With(r.Context(), "userID", user.ID)
		ctx = ContextWithUser(ctx, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission gates a route group on a single permission. Runs after
// AuthMiddleware.
func (h *Handler) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok || user == nil {
				h.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !user.HasPermission(permission) {
				h.Logger.Warn("permission denied",
					"user_id", user.ID,
					"permission", permission)
				h.WriteError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
