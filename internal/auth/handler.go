package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dukapos/dukapos/internal/platform/httpx"
	"github.com/dukapos/dukapos/internal/shared"
)

// AuditPort abstracts the audit trail for the handler.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	issuer     *TokenIssuer
	throttle   *LoginThrottle
	audit      AuditPort
	validator  *validator.Validate
	production bool
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, issuer *TokenIssuer, throttle *LoginThrottle, audit AuditPort, production bool) *Handler {
	return &Handler{
		logger:     logger,
		service:    service,
		issuer:     issuer,
		throttle:   throttle,
		audit:      audit,
		validator:  validator.New(),
		production: production,
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router, mw *Middleware) {
	r.Post("/login", h.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate)
		r.Post("/register", h.handleRegister)
		r.Get("/me", h.handleMe)
		r.Post("/logout", h.handleLogout)
		r.Post("/change-password", h.handleChangePassword)
		r.With(mw.RequireSelfOrAdmin("id")).Get("/users/{id}", h.handleGetUser)
	})
}

func (h *Handler) fieldErrors(err error) []httpx.FieldError {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []httpx.FieldError{{Field: "body", Message: err.Error()}}
	}
	out := make([]httpx.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, httpx.FieldError{Field: fe.Field(), Message: fmt.Sprintf("failed %s validation", fe.Tag())})
	}
	return out
}

func (h *Handler) recordAudit(w http.ResponseWriter, r *http.Request, log shared.AuditLog) bool {
	if err := h.audit.Record(r.Context(), log); err != nil {
		h.logger.Error("audit write failed", slog.String("action", log.Action), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return false
	}
	return true
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string   `json:"token"`
	User  SafeUser `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, h.fieldErrors(err))
		return
	}

	blocked, err := h.throttle.Blocked(r.Context(), req.Username)
	if err != nil {
		h.logger.Warn("login throttle check", slog.Any("error", err))
	}
	if blocked {
		httpx.Problem(w, http.StatusTooManyRequests, "Too Many Attempts", "try again later")
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if terr := h.throttle.Fail(r.Context(), req.Username); terr != nil {
			h.logger.Warn("login throttle record", slog.Any("error", terr))
		}
		httpx.RespondError(w, err)
		return
	}
	if err := h.throttle.Reset(r.Context(), req.Username); err != nil {
		h.logger.Warn("login throttle reset", slog.Any("error", err))
	}

	token, err := h.issuer.Issue(user.ID)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	if !h.recordAudit(w, r, shared.AuditLog{
		ActorID:  &user.ID,
		Action:   "login",
		Entity:   "user",
		EntityID: &user.ID,
		Details:  fmt.Sprintf("User %s logged in", user.Username),
		IP:       r.RemoteAddr,
	}) {
		return
	}

	h.logger.Info("user logged in", slog.String("username", user.Username))
	httpx.JSON(w, http.StatusOK, loginResponse{Token: token, User: user.Safe()})
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,min=2"`
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3"`
	Password string `json:"password" validate:"required,min=6"`
	Role     Role   `json:"role" validate:"omitempty,oneof=admin seller"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	if h.production && !identity.IsAdmin() {
		httpx.RespondError(w, fmt.Errorf("%w: only admins can create users", shared.ErrForbidden))
		return
	}

	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, h.fieldErrors(err))
		return
	}

	user, err := h.service.Register(r.Context(), RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	if !h.recordAudit(w, r, shared.AuditLog{
		ActorID:  &identity.UserID,
		Action:   "create",
		Entity:   "user",
		EntityID: &user.ID,
		Details:  fmt.Sprintf("Created new user: %s (%s)", user.Username, user.Role),
		IP:       r.RemoteAddr,
	}) {
		return
	}

	h.logger.Info("user created", slog.String("username", user.Username), slog.String("by", identity.Username))
	httpx.JSON(w, http.StatusCreated, map[string]any{"user": user.Safe()})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	user, err := h.service.GetByID(r.Context(), identity.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user.Safe()})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	// Stateless tokens cannot be revoked server-side; the client discards the
	// token and the audit trail records the logout.
	if !h.recordAudit(w, r, shared.AuditLog{
		ActorID:  &identity.UserID,
		Action:   "logout",
		Entity:   "user",
		EntityID: &identity.UserID,
		Details:  fmt.Sprintf("User %s logged out", identity.Username),
		IP:       r.RemoteAddr,
	}) {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())

	var req changePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, h.fieldErrors(err))
		return
	}

	if err := h.service.ChangePassword(r.Context(), identity.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		httpx.RespondError(w, err)
		return
	}

	if !h.recordAudit(w, r, shared.AuditLog{
		ActorID:  &identity.UserID,
		Action:   "update",
		Entity:   "user",
		EntityID: &identity.UserID,
		Details:  "Password changed",
		IP:       r.RemoteAddr,
	}) {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	user, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user.Safe()})
}
