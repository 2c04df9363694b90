package users

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/caretide/authz/internal/authz"
	"github.com/caretide/authz/internal/platform/httpx"
	"github.com/caretide/authz/internal/shared"
)

// Handler exposes user and group administration routes.
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

// MountRoutes registers user and group routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(shared.PermUsersManage))
		r.Post("/users", h.createUser)
		r.Get("/users/{identityProvider}/{subjectID}", h.getUser)
		r.Delete("/users/{identityProvider}/{subjectID}", h.deleteUser)
		r.Post("/groups", h.createGroup)
		r.Post("/groups/{groupName}/users", h.addUserToGroup)
		r.Delete("/groups/{groupName}/users/{identityProvider}/{subjectID}", h.removeUserFromGroup)
		r.Post("/groups/{groupName}/roles", h.addRoleToGroup)
		r.Delete("/groups/{groupName}/roles/{roleID}", h.removeRoleFromGroup)
	})
}

type createUserRequest struct {
	SubjectID        string `json:"subjectId" validate:"required"`
	IdentityProvider string `json:"identityProvider" validate:"required"`
}

type createGroupRequest struct {
	Name   string `json:"groupName" validate:"required"`
	Source string `json:"groupSource"`
}

type groupRoleRequest struct {
	RoleID string `json:"roleId" validate:"required,uuid"`
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.CreateUser(r.Context(), req.SubjectID, req.IdentityProvider)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"subjectId":        user.SubjectID,
		"identityProvider": user.IdentityProvider,
	})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), chi.URLParam(r, "subjectID"), chi.URLParam(r, "identityProvider"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"subjectId":        user.SubjectID,
		"identityProvider": user.IdentityProvider,
		"groups":           user.Groups,
	})
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteUser(r.Context(), chi.URLParam(r, "subjectID"), chi.URLParam(r, "identityProvider"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	group, err := h.service.CreateGroup(r.Context(), req.Name, req.Source)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":          group.ID.String(),
		"groupName":   group.Name,
		"groupSource": group.Source,
	})
}

func (h *Handler) addUserToGroup(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AddUserToGroup(r.Context(), req.SubjectID, req.IdentityProvider, chi.URLParam(r, "groupName")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeUserFromGroup(w http.ResponseWriter, r *http.Request) {
	err := h.service.RemoveUserFromGroup(r.Context(),
		chi.URLParam(r, "subjectID"), chi.URLParam(r, "identityProvider"), chi.URLParam(r, "groupName"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addRoleToGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	roleID, err := uuid.Parse(req.RoleID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "role id is not a valid UUID")
		return
	}
	if err := h.service.AddRoleToGroup(r.Context(), chi.URLParam(r, "groupName"), roleID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRoleFromGroup(w http.ResponseWriter, r *http.Request) {
	roleID, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "role id is not a valid UUID")
		return
	}
	if err := h.service.RemoveRoleFromGroup(r.Context(), chi.URLParam(r, "groupName"), roleID); err != nil {
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
		h.logger.Error("users admin request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
