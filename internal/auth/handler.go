package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sentra-auth/sentra/internal/platform/httpx"
	"github.com/sentra-auth/sentra/internal/rbac"
	"github.com/sentra-auth/sentra/internal/shared"
	"github.com/sentra-auth/sentra/internal/users"
)

// Handler wires HTTP endpoints for registration, login and the
// token-protected self-service routes.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	tokenMW   Middleware
	rbacMW    rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, tokenMW Middleware, rbacMW rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		tokenMW:   tokenMW,
		rbacMW:    rbacMW,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Group(func(r chi.Router) {
		r.Use(h.tokenMW.Authenticate)
		r.Get("/profile", h.profile)
		r.With(h.rbacMW.RequireRole(rbac.RoleAdministrator)).Get("/admin", h.admin)
	})
}

type registerRequest struct {
	Name    string `json:"name" validate:"required,min=3,max=80"`
	Contact string `json:"contact" validate:"required,email,max=120"`
	Secret  string `json:"secret" validate:"required,min=4"`
	Role    string `json:"role"`
}

type loginRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Secret  string `json:"secret" validate:"required"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid body", shared.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, validationDetail(err)))
		return
	}
	principal, err := h.service.Register(r.Context(), req.Name, req.Contact, req.Secret, req.Role)
	if err != nil {
		h.logger.Warn("register", slog.String("contact", req.Contact), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, users.NewSummary(principal))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid body", shared.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, validationDetail(err)))
		return
	}
	token, expiresAt, err := h.service.Authenticate(r.Context(), req.Name, req.Contact, req.Secret)
	if err != nil {
		h.logger.Info("login rejected", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt})
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	principalID, ok := shared.PrincipalIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrTokenMissing)
		return
	}
	principal, err := h.service.Profile(r.Context(), principalID)
	if err != nil {
		h.logger.Warn("profile", slog.Int64("principal", principalID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, users.NewSummary(principal))
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "welcome, administrator"})
}

func validationDetail(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	return verrs[0].Field() + " is invalid"
}
