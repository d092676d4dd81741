package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dukapos/dukapos/internal/platform/httpx"
	"github.com/dukapos/dukapos/internal/shared"
)

// Middleware authenticates bearer tokens and enforces role predicates.
type Middleware struct {
	logger  *slog.Logger
	issuer  *TokenIssuer
	service *Service
}

// NewMiddleware constructs Middleware.
func NewMiddleware(logger *slog.Logger, issuer *TokenIssuer, service *Service) *Middleware {
	return &Middleware{logger: logger, issuer: issuer, service: service}
}

// Authenticate verifies the Authorization header and re-resolves the full
// user so role and status changes apply to outstanding tokens immediately.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			httpx.RespondError(w, shared.ErrTokenInvalid)
			return
		}
		userID, err := m.issuer.Verify(token)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		user, err := m.service.GetByID(r.Context(), userID)
		if err != nil {
			httpx.RespondError(w, shared.ErrTokenInvalid)
			return
		}
		if user.Status != StatusActive {
			httpx.RespondError(w, shared.ErrAccountInactive)
			return
		}
		identity := shared.Identity{UserID: user.ID, Username: user.Username, Role: string(user.Role)}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
	})
}

// RequireAdmin rejects non-admin callers.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := shared.IdentityFromContext(r.Context())
		if !ok {
			httpx.RespondError(w, shared.ErrTokenInvalid)
			return
		}
		if !identity.IsAdmin() {
			httpx.RespondError(w, shared.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSelfOrAdmin allows admins, or callers whose authenticated id matches
// the URL parameter. The comparison uses the server-resolved identity, never
// a client-supplied claim.
func (m *Middleware) RequireSelfOrAdmin(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := shared.IdentityFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrTokenInvalid)
				return
			}
			targetID, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
			if err != nil {
				httpx.RespondError(w, shared.ErrNotFound)
				return
			}
			if !identity.IsAdmin() && identity.UserID != targetID {
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
