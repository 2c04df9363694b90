package authz_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/caretide/authz/internal/authz"
	"github.com/caretide/authz/internal/authz/memstore"
	"github.com/caretide/authz/internal/shared"
)

func newTestHandler(t *testing.T) (*memstore.Store, http.Handler) {
	t.Helper()
	store := memstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := authz.NewService(store, nil, logger, authz.ServiceConfig{})
	mw := authz.Middleware{Service: service, Logger: logger}
	handler := authz.NewHandler(logger, service, mw)

	// The operators group may mutate granular permissions.
	store.PutRole(authz.Role{
		ID: uuid.New(), Grain: "authz", SecurableItem: "granular", Name: "granular-admin",
		Permissions: []authz.Permission{{
			ID: uuid.New(), Grain: "authz", SecurableItem: "granular", Name: "write", Action: authz.ActionAllow,
		}},
		Groups: []string{"operators"},
	})

	r := chi.NewRouter()
	handler.MountRoutes(r)
	return store, r
}

// asOperator attaches a subject entitled to granular writes.
func asOperator(req *http.Request) *http.Request {
	return req.WithContext(shared.ContextWithSubject(req.Context(), &shared.Subject{
		SubjectID:        "op",
		IdentityProvider: "windows",
		Groups:           []string{"operators"},
	}))
}

func seedViewerFixture(store *memstore.Store) {
	store.PutUser(authz.User{
		SubjectID:        "alice",
		IdentityProvider: "windows",
		Groups:           []string{"G1"},
	})
	store.PutRole(authz.Role{
		ID: uuid.New(), Grain: "app", SecurableItem: "X", Name: "viewer",
		Permissions: []authz.Permission{{
			ID: uuid.New(), Grain: "app", SecurableItem: "X", Name: "view", Action: authz.ActionAllow,
		}},
		Groups: []string{"G1"},
	})
}

func decodePermissions(t *testing.T, body io.Reader) []string {
	t.Helper()
	var resp struct {
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	return resp.Permissions
}

func TestResolveUserPermissionsEndpoint(t *testing.T) {
	store, router := newTestHandler(t)
	seedViewerFixture(store)

	req := httptest.NewRequest(http.MethodGet, "/users/windows/alice/permissions?grain=app&securableItem=X", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"app/X.view"}, decodePermissions(t, rec.Body))
}

func TestResolveUserPermissionsMatchesSubjectCaseInsensitively(t *testing.T) {
	store, router := newTestHandler(t)
	seedViewerFixture(store)

	req := httptest.NewRequest(http.MethodGet, "/users/windows/ALICE/permissions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"app/X.view"}, decodePermissions(t, rec.Body))
}

func TestResolveUserPermissionsUnknownUser(t *testing.T) {
	_, router := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/users/windows/ghost/permissions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveGroupPermissionsEndpoint(t *testing.T) {
	store, router := newTestHandler(t)
	seedViewerFixture(store)

	body := `{"groupNames":["G1"],"grain":"app","securableItem":"X"}`
	req := httptest.NewRequest(http.MethodPost, "/permissions/resolve", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"app/X.view"}, decodePermissions(t, rec.Body))
}

func TestResolveGroupPermissionsRejectsMissingGroups(t *testing.T) {
	_, router := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/permissions/resolve", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddGranularPermissionsEndpoint(t *testing.T) {
	store, router := newTestHandler(t)
	seedViewerFixture(store)

	body := `{"permissions":[{"grain":"app","securableItem":"X","name":"modify","permissionAction":"allow"}]}`
	req := asOperator(httptest.NewRequest(http.MethodPost, "/users/windows/alice/permissions", strings.NewReader(body)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// The new grant shows up in resolution.
	getReq := httptest.NewRequest(http.MethodGet, "/users/windows/alice/permissions", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	require.Equal(t, []string{"app/X.modify", "app/X.view"}, decodePermissions(t, getRec.Body))
}

func TestAddGranularPermissionsConflictReportsViolations(t *testing.T) {
	_, router := newTestHandler(t)

	body := `{"permissions":[{"grain":"app","securableItem":"X","name":"modify","permissionAction":"allow"}]}`
	first := asOperator(httptest.NewRequest(http.MethodPost, "/users/windows/alice/permissions", strings.NewReader(body)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, first)
	require.Equal(t, http.StatusNoContent, rec.Code)

	second := asOperator(httptest.NewRequest(http.MethodPost, "/users/windows/alice/permissions", strings.NewReader(body)))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, second)
	require.Equal(t, http.StatusConflict, rec.Code)

	var problem struct {
		Detail     string              `json:"detail"`
		Violations map[string][]string `json:"violations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	require.Equal(t, []string{"app/X.modify"}, problem.Violations[authz.ViolationDuplicateAllow])
}

func TestAddGranularPermissionsRejectsBadAction(t *testing.T) {
	_, router := newTestHandler(t)

	body := `{"permissions":[{"grain":"app","securableItem":"X","name":"modify","permissionAction":"grant"}]}`
	req := asOperator(httptest.NewRequest(http.MethodPost, "/users/windows/alice/permissions", strings.NewReader(body)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteGranularPermissionsEndpoint(t *testing.T) {
	_, router := newTestHandler(t)

	add := `{"permissions":[{"grain":"app","securableItem":"X","name":"modify","permissionAction":"allow"}]}`
	addReq := asOperator(httptest.NewRequest(http.MethodPost, "/users/windows/alice/permissions", strings.NewReader(add)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, addReq)
	require.Equal(t, http.StatusNoContent, rec.Code)

	delReq := asOperator(httptest.NewRequest(http.MethodDelete, "/users/windows/alice/permissions", strings.NewReader(add)))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, delReq)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Deleting again conflicts: nothing left to remove.
	delAgain := asOperator(httptest.NewRequest(http.MethodDelete, "/users/windows/alice/permissions", strings.NewReader(add)))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, delAgain)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestGranularPermissionsEmptyBatch(t *testing.T) {
	_, router := newTestHandler(t)

	req := asOperator(httptest.NewRequest(http.MethodPost, "/users/windows/alice/permissions", strings.NewReader(`{"permissions":[]}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGranularMutationForbiddenWithoutSubject(t *testing.T) {
	_, router := newTestHandler(t)

	body := `{"permissions":[{"grain":"app","securableItem":"X","name":"modify","permissionAction":"allow"}]}`
	req := httptest.NewRequest(http.MethodPost, "/users/windows/alice/permissions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
