package authz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/caretide/authz/internal/platform/httpx"
	"github.com/caretide/authz/internal/shared"
)

// Handler exposes permission resolution and granular permission mutation
// over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	mw       Middleware
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw, validate: validator.New()}
}

// MountRoutes registers resolution routes. Resolution is open to any
// authenticated caller; granular mutation is itself permission-guarded.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/users/{identityProvider}/{subjectID}/permissions", func(r chi.Router) {
		r.Get("/", h.resolveUserPermissions)
		r.Group(func(r chi.Router) {
			r.Use(h.mw.RequireAny(shared.PermGranularWrite))
			r.Post("/", h.addGranularPermissions)
			r.Delete("/", h.deleteGranularPermissions)
		})
	})
	r.Post("/permissions/resolve", h.resolveGroupPermissions)
}

type permissionDTO struct {
	Grain         string `json:"grain" validate:"required"`
	SecurableItem string `json:"securableItem" validate:"required"`
	Name          string `json:"name" validate:"required"`
	Action        string `json:"permissionAction" validate:"required,oneof=allow deny"`
}

type granularRequest struct {
	Permissions []permissionDTO `json:"permissions" validate:"required,dive"`
}

type resolveGroupsRequest struct {
	GroupNames    []string `json:"groupNames" validate:"required"`
	Grain         string   `json:"grain"`
	SecurableItem string   `json:"securableItem"`
}

type permissionsResponse struct {
	Permissions []string `json:"permissions"`
}

func (h *Handler) resolveUserPermissions(w http.ResponseWriter, r *http.Request) {
	idProvider := chi.URLParam(r, "identityProvider")
	subjectID := chi.URLParam(r, "subjectID")

	user, err := h.service.User(r.Context(), subjectID, idProvider)
	if err != nil {
		h.respondError(w, err)
		return
	}

	// Groups reported by the caller's token are merged with stored
	// memberships; claim extraction itself happens upstream.
	groups := append([]string{}, user.Groups...)
	groups = append(groups, r.URL.Query()["group"]...)

	perms, err := h.service.ResolvePermissionsForUser(r.Context(), user.Key(), groups,
		r.URL.Query().Get("grain"), r.URL.Query().Get("securableItem"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{Permissions: perms})
}

func (h *Handler) resolveGroupPermissions(w http.ResponseWriter, r *http.Request) {
	var req resolveGroupsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	perms, err := h.service.ResolvePermissionsForGroups(r.Context(), req.GroupNames, req.Grain, req.SecurableItem)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{Permissions: perms})
}

func (h *Handler) addGranularPermissions(w http.ResponseWriter, r *http.Request) {
	h.mutateGranularPermissions(w, r, h.service.AddGranularPermissions)
}

func (h *Handler) deleteGranularPermissions(w http.ResponseWriter, r *http.Request) {
	h.mutateGranularPermissions(w, r, h.service.DeleteGranularPermissions)
}

func (h *Handler) mutateGranularPermissions(w http.ResponseWriter, r *http.Request, mutate func(ctx context.Context, userID string, allow, deny []Permission) error) {
	idProvider := chi.URLParam(r, "identityProvider")
	subjectID := chi.URLParam(r, "subjectID")

	var req granularRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	var allow, deny []Permission
	for _, dto := range req.Permissions {
		perm := Permission{
			Grain:         dto.Grain,
			SecurableItem: dto.SecurableItem,
			Name:          dto.Name,
			Action:        PermissionAction(dto.Action),
		}
		if perm.Action == ActionDeny {
			deny = append(deny, perm)
		} else {
			allow = append(allow, perm)
		}
	}

	if err := mutate(r.Context(), UserKey(subjectID, idProvider), allow, deny); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var invalid *InvalidPermissionError
	var notFound *NotFoundError
	var cycle *CycleError
	switch {
	case errors.As(err, &invalid):
		httpx.ProblemWithViolations(w, http.StatusConflict, "Invalid Permissions", invalid.Summary, invalid.Violations)
	case errors.Is(err, ErrEmptyBatch):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.As(err, &notFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &cycle):
		h.logger.Error("role hierarchy cycle", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "role hierarchy data is corrupted")
	default:
		h.logger.Error("authz request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
