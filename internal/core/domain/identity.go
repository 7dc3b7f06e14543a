// Package domain defines the core domain models for ussal.
package domain

import "fmt"

// Identity is an OS account.
type Identity struct {
	Name    string
	UID     int
	GID     int
	HomeDir string
}

// IsRoot reports whether the identity is the superuser.
func (i Identity) IsRoot() bool {
	return i.UID == 0 || i.Name == "root"
}

// String returns the account name.
func (i Identity) String() string {
	return i.Name
}

// DelegationRule grants the service identity the right to start processes as
// the sandbox identity and nothing else. It is resolved once at startup and
// never changes.
type DelegationRule struct {
	Service Identity
	Sandbox Identity
}

// Validate checks the structural constraints of the rule.
func (r DelegationRule) Validate() error {
	if r.Sandbox.Name == "" {
		return ErrPrivilegeUnavailable.WithDetails("sandbox identity not configured")
	}
	if r.Sandbox.IsRoot() {
		return ErrPrivilegeUnavailable.WithDetails("sandbox identity must not be root")
	}
	if r.Sandbox.Name == r.Service.Name || (r.Service.Name != "" && r.Sandbox.UID == r.Service.UID) {
		return ErrPrivilegeUnavailable.WithDetails(fmt.Sprintf("sandbox identity %q equals service identity", r.Sandbox.Name))
	}
	return nil
}

// Permits reports whether target is within the scope of the rule.
func (r DelegationRule) Permits(target Identity) bool {
	return target.Name == r.Sandbox.Name && target.UID == r.Sandbox.UID
}
