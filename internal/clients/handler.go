package clients

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/caretide/authz/internal/authz"
	"github.com/caretide/authz/internal/platform/httpx"
	"github.com/caretide/authz/internal/shared"
)

// Handler exposes client registration routes.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	authz    authz.Middleware
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: mw, validate: validator.New()}
}

// MountRoutes registers client routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/clients", func(r chi.Router) {
		r.Use(h.authz.RequireAny(shared.PermClientsManage))
		r.Post("/", h.registerClient)
		r.Get("/{clientID}", h.getClient)
		r.Delete("/{clientID}", h.deleteClient)
	})
}

type registerClientRequest struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
}

func (h *Handler) registerClient(w http.ResponseWriter, r *http.Request) {
	var req registerClientRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	client, secret, err := h.service.RegisterClient(r.Context(), req.ID, req.Name)
	if err != nil {
		h.respondError(w, err)
		return
	}
	// The plaintext secret appears in this response only.
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":     client.ID,
		"name":   client.Name,
		"secret": secret,
	})
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	client, err := h.service.GetClient(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := map[string]any{"id": client.ID, "name": client.Name}
	if client.TopLevel != nil {
		resp["topLevelSecurableItem"] = client.TopLevel.Name
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) deleteClient(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteClient(r.Context(), chi.URLParam(r, "clientID")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		h.logger.Error("clients request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
