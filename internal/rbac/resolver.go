package rbac

import (
	"context"
	"time"
)

// Resolver answers "does this user effectively hold this permission". An
// effective permission requires an active, unexpired role assignment joined
// to an active grant, with both the role and the permission active.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// HasPermission returns false, not an error, when no effective grant exists;
// callers translate false into an authorization rejection.
func (r *Resolver) HasPermission(ctx context.Context, userID int64, permissionName string) (bool, error) {
	now := time.Now()

	// The super role bypass is this explicit check, never a data mutation.
	isSuper, err := r.store.HasActiveRole(ctx, userID, SuperRoleName, now)
	if err != nil {
		return false, err
	}
	if isSuper {
		return true, nil
	}

	return r.store.HasEffectiveGrant(ctx, userID, permissionName, now)
}

// PermissionsForUser returns the user's effective permission name set, used
// to build the identity context and for caller-side field filtering.
func (r *Resolver) PermissionsForUser(ctx context.Context, userID int64) ([]string, error) {
	return r.store.EffectivePermissions(ctx, userID, time.Now())
}

// RolesForUser returns the names of the user's active, unexpired roles.
func (r *Resolver) RolesForUser(ctx context.Context, userID int64) ([]string, error) {
	return r.store.RoleNamesForUser(ctx, userID, time.Now())
}

// IsAdmin reports whether the user actively holds the super role.
func (r *Resolver) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	return r.store.HasActiveRole(ctx, userID, SuperRoleName, time.Now())
}
