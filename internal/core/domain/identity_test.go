// Package domain defines the core domain models for ussal.
package domain

import (
	"errors"
	"testing"
)

func TestDelegationRule_Validate(t *testing.T) {
	service := Identity{Name: "ussal-runner", UID: 990}
	sandbox := Identity{Name: "ussal-sandbox", UID: 991}

	tests := []struct {
		name    string
		rule    DelegationRule
		wantErr bool
	}{
		{"valid", DelegationRule{Service: service, Sandbox: sandbox}, false},
		{"missing sandbox", DelegationRule{Service: service}, true},
		{"root sandbox by uid", DelegationRule{Service: service, Sandbox: Identity{Name: "toor", UID: 0}}, true},
		{"root sandbox by name", DelegationRule{Service: service, Sandbox: Identity{Name: "root", UID: 5}}, true},
		{"same name", DelegationRule{Service: service, Sandbox: Identity{Name: "ussal-runner", UID: 992}}, true},
		{"same uid", DelegationRule{Service: service, Sandbox: Identity{Name: "alias", UID: 990}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrPrivilegeUnavailable) {
				t.Errorf("Validate() error = %v, want ErrPrivilegeUnavailable", err)
			}
		})
	}
}

func TestDelegationRule_Permits(t *testing.T) {
	rule := DelegationRule{
		Service: Identity{Name: "ussal-runner", UID: 990},
		Sandbox: Identity{Name: "ussal-sandbox", UID: 991},
	}

	if !rule.Permits(Identity{Name: "ussal-sandbox", UID: 991}) {
		t.Error("Permits(sandbox) = false")
	}
	if rule.Permits(Identity{Name: "root", UID: 0}) {
		t.Error("Permits(root) = true")
	}
	if rule.Permits(rule.Service) {
		t.Error("Permits(service) = true")
	}
	if rule.Permits(Identity{Name: "ussal-sandbox", UID: 0}) {
		t.Error("Permits() matched name with different uid")
	}
}
