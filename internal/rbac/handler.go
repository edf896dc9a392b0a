package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"

	rbacDatamodel "github.com/frahmantamala/dashboard-management/internal/core/datamodel/rbac"
	"github.com/frahmantamala/dashboard-management/internal/transport"
)

type ServiceAPI interface {
	CreateRole(ctx context.Context, name string) (*rbacDatamodel.Role, error)
	CreatePermission(ctx context.Context, resource, operation string) (*rbacDatamodel.Permission, error)
	AssignRole(ctx context.Context, userID int64, roleName string, expiresAt *time.Time) error
	UnassignRole(ctx context.Context, userID int64, roleName string) error
	GrantPermission(ctx context.Context, roleName, permissionName string) error
	RevokePermission(ctx context.Context, roleName, permissionName string) error
	DeactivateRole(ctx context.Context, roleName string) error
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(nil),
		Service:     svc,
	}
}

type createRoleRequest struct {
	Name string `json:"name"`
}

type createPermissionRequest struct {
	Resource  string `json:"resource"`
	Operation string `json:"operation"`
}

type grantPermissionRequest struct {
	Permission string `json:"permission"`
}

type assignRoleRequest struct {
	Role      string     `json:"role"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// writeRbacError maps the package sentinels onto HTTP statuses; anything
// unrecognized falls through to the AppError mapping.
func (h *Handler) writeRbacError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRoleNotFound),
		errors.Is(err, ErrPermissionNotFound),
		errors.Is(err, ErrAssignmentNotFound),
		errors.Is(err, ErrGrantNotFound):
		h.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateRole),
		errors.Is(err, ErrDuplicatePermission),
		errors.Is(err, ErrDuplicateAssignment):
		h.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrSystemRoleImmutable):
		h.WriteError(w, http.StatusForbidden, err.Error())
	default:
		h.WriteAppError(w, err)
	}
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	role, err := h.Service.CreateRole(r.Context(), req.Name)
	if err != nil {
		h.Logger.Warn("role creation failed", "name", req.Name, "error", err)
		h.writeRbacError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, role)
}

func (h *Handler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	perm, err := h.Service.CreatePermission(r.Context(), req.Resource, req.Operation)
	if err != nil {
		h.Logger.Warn("permission creation failed", "resource", req.Resource, "operation", req.Operation, "error", err)
		h.writeRbacError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, perm)
}

func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}

	var req assignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Service.AssignRole(r.Context(), userID, req.Role, req.ExpiresAt); err != nil {
		h.Logger.Warn("role assignment failed", "user_id", userID, "role", req.Role, "error", err)
		h.writeRbacError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UnassignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}
	roleName := chi.URLParam(r, "name")

	if err := h.Service.UnassignRole(r.Context(), userID, roleName); err != nil {
		h.Logger.Warn("role unassignment failed", "user_id", userID, "role", roleName, "error", err)
		h.writeRbacError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	roleName := chi.URLParam(r, "name")

	var req grantPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Service.GrantPermission(r.Context(), roleName, req.Permission); err != nil {
		h.Logger.Warn("grant failed", "role", roleName, "permission", req.Permission, "error", err)
		h.writeRbacError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	roleName := chi.URLParam(r, "name")
	permissionName := chi.URLParam(r, "permission")

	if err := h.Service.RevokePermission(r.Context(), roleName, permissionName); err != nil {
		h.Logger.Warn("revoke failed", "role", roleName, "permission", permissionName, "error", err)
		h.writeRbacError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeactivateRole(w http.ResponseWriter, r *http.Request) {
	roleName := chi.URLParam(r, "name")

	if err := h.Service.DeactivateRole(r.Context(), roleName); err != nil {
		h.Logger.Warn("role deactivation failed", "role", roleName, "error", err)
		h.writeRbacError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return userID, true
}
