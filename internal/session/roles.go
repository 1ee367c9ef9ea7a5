package session

import "encoding/base64"

// Permission names one gated capability.
type Permission string

const (
	PermissionRead     Permission = "read"
	PermissionWrite    Permission = "write"
	PermissionDelete   Permission = "delete"
	PermissionModerate Permission = "moderate"
	PermissionAdmin    Permission = "admin"
)

// Role grants a named set of permissions.
type Role struct {
	Name        string
	Permissions []Permission
}

// Grants reports whether the role carries a permission.
func (r Role) Grants(permission Permission) bool {
	for _, granted := range r.Permissions {
		if granted == permission {
			return true
		}
	}
	return false
}

// Condition assigns a role to any key matching a caller-supplied
// predicate, for memberships that cannot be enumerated up front.
type Condition struct {
	Role      Role
	Predicate func(publicKey []byte) bool
}

// RoleTable resolves a public key to a role. Resolution order: explicit
// key lists first, then predicate conditions, then the baseline. Callers
// without a key always resolve to the baseline role.
type RoleTable struct {
	baseline   Role
	explicit   map[string]Role
	conditions []Condition
}

// NewRoleTable creates a role table with the given baseline role for
// unauthenticated or unmatched callers.
func NewRoleTable(baseline Role) *RoleTable {
	return &RoleTable{
		baseline: baseline,
		explicit: make(map[string]Role),
	}
}

// GrantKeys assigns a role to an explicit list of public keys.
func (t *RoleTable) GrantKeys(role Role, publicKeys ...[]byte) {
	for _, key := range publicKeys {
		t.explicit[encodeKey(key)] = role
	}
}

// GrantWhen assigns a role to keys satisfying a predicate.
func (t *RoleTable) GrantWhen(role Role, predicate func(publicKey []byte) bool) {
	if predicate == nil {
		return
	}
	t.conditions = append(t.conditions, Condition{Role: role, Predicate: predicate})
}

// Resolve returns the role for a public key.
func (t *RoleTable) Resolve(publicKey []byte) Role {
	if len(publicKey) == 0 {
		return t.baseline
	}
	if role, ok := t.explicit[encodeKey(publicKey)]; ok {
		return role
	}
	for _, condition := range t.conditions {
		if condition.Predicate(publicKey) {
			return condition.Role
		}
	}
	return t.baseline
}

// Allows reports whether the key's resolved role grants the permission.
func (t *RoleTable) Allows(publicKey []byte, permission Permission) bool {
	return t.Resolve(publicKey).Grants(permission)
}

func encodeKey(publicKey []byte) string {
	return base64.RawStdEncoding.EncodeToString(publicKey)
}
