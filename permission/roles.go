package permission

import (
	"errors"
	"sync"
)

// RoleLevel identifies one of the BENTO roles. Lower values carry wider
// authority.
type RoleLevel uint8

const (
	// RoleSuperintendent oversees all schools.
	RoleSuperintendent RoleLevel = 1
	// RoleAdministrator manages users and schools.
	RoleAdministrator RoleLevel = 2
	// RolePrincipal reads their school's reports.
	RolePrincipal RoleLevel = 3
	// RoleCanteenManager submits their school's reports.
	RoleCanteenManager RoleLevel = 4
)

// String returns the role description used in the reporting system.
func (r RoleLevel) String() string {
	switch r {
	case RoleSuperintendent:
		return "Superintendent"
	case RoleAdministrator:
		return "Administrator"
	case RolePrincipal:
		return "Principal"
	case RoleCanteenManager:
		return "Canteen Manager"
	default:
		return "Unknown"
	}
}

// Valid reports whether r is one of the four BENTO roles.
func (r RoleLevel) Valid() bool {
	return r >= RoleSuperintendent && r <= RoleCanteenManager
}

// Admin reports whether r is administrator-level (Superintendent or
// Administrator). Admin-level accounts are protected by the last-admin
// deactivation guard.
func (r RoleLevel) Admin() bool {
	return r == RoleSuperintendent || r == RoleAdministrator
}

// DefaultPermissions lists the permission names of the reporting system in
// registration order.
var DefaultPermissions = []string{
	"users:global:create",
	"users:global:modify",
	"users:global:read",
	"users:global:deactivate",
	"users:global:selfupdate",
	"roles:global:read",
	"reports:local:write",
	"reports:local:read",
	"reports:global:read",
}

// DefaultRolePermissions maps each BENTO role to its permission names.
var DefaultRolePermissions = map[RoleLevel][]string{
	RoleSuperintendent: {
		"users:global:create",
		"users:global:modify",
		"users:global:read",
		"users:global:deactivate",
		"users:global:selfupdate",
		"roles:global:read",
		"reports:global:read",
	},
	RoleAdministrator: {
		"users:global:create",
		"users:global:modify",
		"users:global:read",
		"users:global:deactivate",
		"users:global:selfupdate",
		"roles:global:read",
		"reports:global:read",
	},
	RolePrincipal: {
		"users:global:selfupdate",
		"reports:local:read",
	},
	RoleCanteenManager: {
		"users:global:selfupdate",
		"reports:local:write",
		"reports:local:read",
	},
}

// RoleManager resolves role levels to precomputed permission masks.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[RoleLevel]Mask64
	frozen bool
}

// NewRoleManager creates a role manager over the given registry.
func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[RoleLevel]Mask64),
	}
}

// RegisterRole assembles and stores the mask for a role from its
// permission names. Must be called before [RoleManager.Freeze].
func (rm *RoleManager) RegisterRole(level RoleLevel, permissionNames []string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return errors.New("role manager frozen")
	}
	if !level.Valid() {
		return errors.New("invalid role level")
	}
	if _, exists := rm.roles[level]; exists {
		return errors.New("role already registered")
	}

	var mask Mask64
	for _, name := range permissionNames {
		bit, ok := rm.registry.Bit(name)
		if !ok {
			return errors.New("unknown permission: " + name)
		}
		mask = mask.Set(bit)
	}

	rm.roles[level] = mask
	return nil
}

// GetMask returns the mask for a role level, or false if unregistered.
func (rm *RoleManager) GetMask(level RoleLevel) (Mask64, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	mask, ok := rm.roles[level]
	return mask, ok
}

// Freeze prevents further role registrations.
func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

// NewDefaultRegistry builds and freezes a registry and role manager
// preloaded with [DefaultPermissions] and [DefaultRolePermissions].
func NewDefaultRegistry() (*Registry, *RoleManager, error) {
	registry := NewRegistry()
	for _, p := range DefaultPermissions {
		if _, err := registry.Register(p); err != nil {
			return nil, nil, err
		}
	}
	registry.Freeze()

	rm := NewRoleManager(registry)
	for level, perms := range DefaultRolePermissions {
		if err := rm.RegisterRole(level, perms); err != nil {
			return nil, nil, err
		}
	}
	rm.Freeze()

	return registry, rm, nil
}
