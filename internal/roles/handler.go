package roles

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/caretide/authz/internal/authz"
	"github.com/caretide/authz/internal/platform/httpx"
	"github.com/caretide/authz/internal/shared"
)

// Handler exposes role and permission administration routes.
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

// MountRoutes registers administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/roles", func(r chi.Router) {
		r.Use(h.authz.RequireAny(shared.PermRolesManage))
		r.Get("/", h.listRoles)
		r.Post("/", h.createRole)
		r.Delete("/{roleID}", h.deleteRole)
		r.Post("/{roleID}/permissions", h.addRolePermissions)
		r.Delete("/{roleID}/permissions", h.removeRolePermissions)
	})
	r.Route("/permissions", func(r chi.Router) {
		r.Use(h.authz.RequireAny(shared.PermPermissionsManage))
		r.Post("/", h.createPermission)
		r.Delete("/{permissionID}", h.deletePermission)
	})
}

type roleDTO struct {
	ID            string  `json:"id"`
	Grain         string  `json:"grain"`
	SecurableItem string  `json:"securableItem"`
	Name          string  `json:"name"`
	ParentID      *string `json:"parentRoleId,omitempty"`
}

type createRoleRequest struct {
	Grain         string  `json:"grain" validate:"required"`
	SecurableItem string  `json:"securableItem" validate:"required"`
	Name          string  `json:"name" validate:"required"`
	ParentID      *string `json:"parentRoleId" validate:"omitempty,uuid"`
}

type createPermissionRequest struct {
	Grain         string `json:"grain" validate:"required"`
	SecurableItem string `json:"securableItem" validate:"required"`
	Name          string `json:"name" validate:"required"`
}

type rolePermissionsRequest struct {
	PermissionIDs []string `json:"permissionIds" validate:"required,min=1,dive,uuid"`
	Action        string   `json:"permissionAction" validate:"omitempty,oneof=allow deny"`
}

func toRoleDTO(role Role) roleDTO {
	dto := roleDTO{
		ID:            role.ID.String(),
		Grain:         role.Grain,
		SecurableItem: role.SecurableItem,
		Name:          role.Name,
	}
	if role.ParentID != nil {
		parent := role.ParentID.String()
		dto.ParentID = &parent
	}
	return dto
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	pagination := shared.NewPagination(page, perPage, 0)

	list, err := h.service.ListRoles(r.Context(), r.URL.Query().Get("grain"), r.URL.Query().Get("securableItem"), pagination)
	if err != nil {
		h.respondError(w, err)
		return
	}
	dtos := make([]roleDTO, 0, len(list))
	for _, role := range list {
		dtos = append(dtos, toRoleDTO(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": dtos})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	var parentID *uuid.UUID
	if req.ParentID != nil {
		id, err := uuid.Parse(*req.ParentID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "parentRoleId is not a valid UUID")
			return
		}
		parentID = &id
	}

	role, err := h.service.CreateRole(r.Context(), req.Grain, req.SecurableItem, req.Name, parentID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleDTO(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "role id is not a valid UUID")
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "role id is not a valid UUID")
		return
	}
	var req rolePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if req.Action == "" {
		req.Action = "allow"
	}

	ids, err := parseUUIDs(req.PermissionIDs)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.service.AddPermissionsToRole(r.Context(), roleID, ids, req.Action); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "role id is not a valid UUID")
		return
	}
	var req rolePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	ids, err := parseUUIDs(req.PermissionIDs)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.service.RemovePermissionsFromRole(r.Context(), roleID, ids); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), req.Grain, req.SecurableItem, req.Name)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":            perm.ID.String(),
		"grain":         perm.Grain,
		"securableItem": perm.SecurableItem,
		"name":          perm.Name,
	})
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "permissionID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "permission id is not a valid UUID")
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
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
	case errors.Is(err, ErrScopeMismatch):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("roles admin request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, errors.New("permission ids must be valid UUIDs")
		}
		out = append(out, id)
	}
	return out, nil
}
