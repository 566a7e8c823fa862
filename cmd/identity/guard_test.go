package identity

import (
	"errors"
	"testing"
)

func TestAuthorize(t *testing.T) {
	const ownerID = 7

	tests := []struct {
		name  string
		p     Principal
		owner int64
		allow bool
	}{
		{"owner user", Principal{ID: ownerID, Role: RoleUser}, ownerID, true},
		{"owner admin", Principal{ID: ownerID, Role: RoleAdmin}, ownerID, true},
		{"other admin", Principal{ID: 99, Role: RoleAdmin}, ownerID, true},
		{"other user", Principal{ID: 99, Role: RoleUser}, ownerID, false},
		{"zero principal", Principal{}, 0, false},
		{"unknown role", Principal{ID: 99, Role: Role("superuser")}, ownerID, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Authorize(tc.p, tc.owner)
			if tc.allow && err != nil {
				t.Fatalf("expected allow, got %v", err)
			}
			if !tc.allow && !errors.Is(err, ErrForbidden) {
				t.Fatalf("expected ErrForbidden, got %v", err)
			}
		})
	}
}
