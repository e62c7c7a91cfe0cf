package auth

import (
	"slices"
	"strings"
)

// Resource is a protected area of the dashboard.
type Resource string

const (
	ResourceDashboard    Resource = "dashboard"
	ResourceSystemHealth Resource = "system-health"
	ResourcePerformance  Resource = "performance"
	ResourceAlerts       Resource = "alerts"
	ResourceUsers        Resource = "users"
	ResourceSettings     Resource = "settings"
)

// AllResources lists every protected resource.
var AllResources = []Resource{
	ResourceDashboard,
	ResourceSystemHealth,
	ResourcePerformance,
	ResourceAlerts,
	ResourceUsers,
	ResourceSettings,
}

// Action is an operation on a resource.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

// AllActions lists every action.
var AllActions = []Action{ActionRead, ActionWrite}

var readWrite = []Action{ActionRead, ActionWrite}
var readOnly = []Action{ActionRead}

// permissionMatrix is the single source of truth for authorisation.
// Every role in AllRoles has an entry; a resource missing from a role's
// entry grants nothing.
var permissionMatrix = map[Role]map[Resource][]Action{
	RoleManagement: {
		ResourceDashboard:    readWrite,
		ResourceSystemHealth: readWrite,
		ResourcePerformance:  readWrite,
		ResourceAlerts:       readWrite,
		ResourceUsers:        readWrite,
		ResourceSettings:     readWrite,
	},
	RoleDevOps: {
		ResourceDashboard:    readOnly,
		ResourceSystemHealth: readWrite,
		ResourcePerformance:  readWrite,
		ResourceAlerts:       readWrite,
		ResourceSettings:     readOnly,
	},
	RoleQA: {
		ResourceDashboard:    readOnly,
		ResourceSystemHealth: readOnly,
		ResourcePerformance:  readOnly,
		ResourceSettings:     readOnly,
	},
	RoleDev: {
		ResourceDashboard:    readOnly,
		ResourceSystemHealth: readOnly,
		ResourcePerformance:  readOnly,
		ResourceSettings:     readOnly,
	},
	RoleOther: {
		ResourceDashboard:    readOnly,
		ResourceSystemHealth: readOnly,
	},
}

// Allows reports whether role may perform action on resource.
// Unknown roles, resources and actions are denied.
func Allows(role Role, resource Resource, action Action) bool {
	return slices.Contains(permissionMatrix[role][resource], action)
}

// Grant is the set of actions a role holds on one resource.
type Grant struct {
	Resource Resource `json:"resource"`
	Actions  []Action `json:"actions"`
}

// PermissionsFor returns the grants held by role, ordered by resource name.
// Returns an empty slice for unknown roles.
func PermissionsFor(role Role) []Grant {
	entry := permissionMatrix[role]
	grants := make([]Grant, 0, len(entry))
	for res, actions := range entry {
		grants = append(grants, Grant{Resource: res, Actions: slices.Clone(actions)})
	}
	slices.SortFunc(grants, func(a, b Grant) int {
		return strings.Compare(string(a.Resource), string(b.Resource))
	})
	return grants
}

// Check is a composable authorisation step run before a protected operation.
type Check func(p *Principal) error

// Require returns a Check that passes only for principals whose role allows
// action on resource. A nil principal is always denied.
//
// Example:
//
//	if err := auth.Require(auth.ResourceUsers, auth.ActionWrite)(caller); err != nil {
//	    return err
//	}
func Require(resource Resource, action Action) Check {
	return func(p *Principal) error {
		if p == nil || !Allows(p.Role, resource, action) {
			return ErrPermissionDenied
		}
		return nil
	}
}
