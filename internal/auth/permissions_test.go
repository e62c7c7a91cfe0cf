package auth

import (
	"errors"
	"testing"
)

// expectedGrants is the full positive table. Anything absent must be denied.
var expectedGrants = map[Role]map[Resource][]Action{
	RoleManagement: {
		ResourceDashboard:    {ActionRead, ActionWrite},
		ResourceSystemHealth: {ActionRead, ActionWrite},
		ResourcePerformance:  {ActionRead, ActionWrite},
		ResourceAlerts:       {ActionRead, ActionWrite},
		ResourceUsers:        {ActionRead, ActionWrite},
		ResourceSettings:     {ActionRead, ActionWrite},
	},
	RoleDevOps: {
		ResourceDashboard:    {ActionRead},
		ResourceSystemHealth: {ActionRead, ActionWrite},
		ResourcePerformance:  {ActionRead, ActionWrite},
		ResourceAlerts:       {ActionRead, ActionWrite},
		ResourceSettings:     {ActionRead},
	},
	RoleQA: {
		ResourceDashboard:    {ActionRead},
		ResourceSystemHealth: {ActionRead},
		ResourcePerformance:  {ActionRead},
		ResourceSettings:     {ActionRead},
	},
	RoleDev: {
		ResourceDashboard:    {ActionRead},
		ResourceSystemHealth: {ActionRead},
		ResourcePerformance:  {ActionRead},
		ResourceSettings:     {ActionRead},
	},
	RoleOther: {
		ResourceDashboard:    {ActionRead},
		ResourceSystemHealth: {ActionRead},
	},
}

func granted(role Role, res Resource, act Action) bool {
	for _, a := range expectedGrants[role][res] {
		if a == act {
			return true
		}
	}
	return false
}

func TestPermissionMatrix_CoversEveryRole(t *testing.T) {
	if len(permissionMatrix) != len(AllRoles) {
		t.Fatalf("matrix has %d roles, AllRoles has %d", len(permissionMatrix), len(AllRoles))
	}
	for _, role := range AllRoles {
		if !role.Valid() {
			t.Errorf("role %q in AllRoles is not Valid()", role)
		}
		if _, ok := permissionMatrix[role]; !ok {
			t.Errorf("role %q has no matrix entry", role)
		}
	}
}

func TestAllows_Exhaustive(t *testing.T) {
	for _, role := range AllRoles {
		for _, res := range AllResources {
			for _, act := range AllActions {
				want := granted(role, res, act)
				if got := Allows(role, res, act); got != want {
					t.Errorf("Allows(%s, %s, %s) = %v, want %v", role, res, act, got, want)
				}
			}
		}
	}
}

func TestAllows_UnknownValuesDenied(t *testing.T) {
	tests := []struct {
		role Role
		res  Resource
		act  Action
	}{
		{"admin", ResourceDashboard, ActionRead},
		{"", ResourceDashboard, ActionRead},
		{RoleManagement, "billing", ActionRead},
		{RoleManagement, ResourceUsers, "delete"},
	}
	for _, tt := range tests {
		if Allows(tt.role, tt.res, tt.act) {
			t.Errorf("Allows(%q, %q, %q) = true, want false", tt.role, tt.res, tt.act)
		}
	}
}

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{"admin", "owner", "MANAGEMENT", ""} {
		if r.Valid() {
			t.Errorf("Role(%q).Valid() = true, want false", r)
		}
	}
}

func TestPermissionsFor(t *testing.T) {
	grants := PermissionsFor(RoleDevOps)
	if len(grants) != len(expectedGrants[RoleDevOps]) {
		t.Fatalf("PermissionsFor(devops) returned %d grants, want %d", len(grants), len(expectedGrants[RoleDevOps]))
	}
	for i := 1; i < len(grants); i++ {
		if grants[i-1].Resource >= grants[i].Resource {
			t.Errorf("grants not sorted: %s before %s", grants[i-1].Resource, grants[i].Resource)
		}
	}

	// Returned slices must not alias the matrix.
	grants[0].Actions[0] = "mutated"
	if !Allows(RoleDevOps, grants[0].Resource, ActionRead) {
		t.Error("mutating PermissionsFor result changed the matrix")
	}

	if got := PermissionsFor("ghost"); len(got) != 0 {
		t.Errorf("PermissionsFor(unknown) = %v, want empty", got)
	}
}

func TestRequire(t *testing.T) {
	check := Require(ResourceUsers, ActionWrite)

	if err := check(&Principal{Role: RoleManagement}); err != nil {
		t.Errorf("management: Require() error = %v", err)
	}
	if err := check(&Principal{Role: RoleDevOps}); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("devops: Require() error = %v, want ErrPermissionDenied", err)
	}
	if err := check(nil); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("nil principal: Require() error = %v, want ErrPermissionDenied", err)
	}
}
