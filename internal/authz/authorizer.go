// Package authz gates circulation and catalog actions on the caller's
// role. Role permission sets are reference data: they are loaded from
// the store once per role, cached, and invalidated when a role is
// edited.
package authz

import (
	"context"
	"fmt"

	"librarium/pkg/domain"
)

// RoleSource resolves a role name to its permission set.
type RoleSource interface {
	RolePermissions(ctx context.Context, role string) ([]string, error)
}

// Cache holds resolved permission sets between role edits.
type Cache interface {
	Get(ctx context.Context, role string) ([]string, bool, error)
	Set(ctx context.Context, role string, permissions []string) error
	Invalidate(ctx context.Context, role string) error
}

// Authorizer checks role permissions against a cached role→permission
// mapping.
type Authorizer struct {
	source RoleSource
	cache  Cache
}

// New builds an authorizer. A nil cache falls back to in-memory caching.
func New(source RoleSource, cache Cache) *Authorizer {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Authorizer{source: source, cache: cache}
}

// Require succeeds only if the role holds every required permission.
func (a *Authorizer) Require(ctx context.Context, role string, required ...string) error {
	granted, err := a.permissions(ctx, role)
	if err != nil {
		return fmt.Errorf("resolve permissions for role %s: %w", role, err)
	}
	for _, perm := range required {
		if _, ok := granted[perm]; !ok {
			return fmt.Errorf("role %s lacks permission %s: %w", role, perm, domain.ErrForbidden)
		}
	}
	return nil
}

// Has reports whether the role holds every required permission, for
// call sites that branch on permission instead of rejecting.
func (a *Authorizer) Has(ctx context.Context, role string, required ...string) (bool, error) {
	granted, err := a.permissions(ctx, role)
	if err != nil {
		return false, fmt.Errorf("resolve permissions for role %s: %w", role, err)
	}
	for _, perm := range required {
		if _, ok := granted[perm]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// Invalidate drops the cached permission set for a role. Call it after
// any role or permission edit.
func (a *Authorizer) Invalidate(ctx context.Context, role string) error {
	return a.cache.Invalidate(ctx, role)
}

func (a *Authorizer) permissions(ctx context.Context, role string) (map[string]struct{}, error) {
	cached, ok, err := a.cache.Get(ctx, role)
	if err != nil {
		return nil, err
	}
	if !ok {
		cached, err = a.source.RolePermissions(ctx, role)
		if err != nil {
			return nil, err
		}
		if err := a.cache.Set(ctx, role, cached); err != nil {
			return nil, err
		}
	}
	set := make(map[string]struct{}, len(cached))
	for _, perm := range cached {
		set[perm] = struct{}{}
	}
	return set, nil
}
