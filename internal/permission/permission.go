// Package permission defines the permission vocabulary agent profiles
// are configured with: the PermissionAction an operation resolves to
// (allow/ask/deny) and the PermissionType it applies to (edit, bash,
// webfetch, ...). internal/agent.Agent.GetPermission/CheckBashPermission
// read these to classify what an agent profile is allowed to do, and
// internal/agent.Agent.PreApprovalSeed translates ActionAllow entries
// into a freshly created session's pre-approved tools/bash patterns —
// the actual enforcement point is the approval pipeline in
// internal/domain/reduce, not this package.
package permission

// PermissionAction represents the action to take for a permission check.
type PermissionAction string

const (
	ActionAllow PermissionAction = "allow"
	ActionDeny  PermissionAction = "deny"
	ActionAsk   PermissionAction = "ask"
)

// PermissionType represents the type of permission being checked.
type PermissionType string

const (
	PermBash        PermissionType = "bash"
	PermEdit        PermissionType = "edit"
	PermWebFetch    PermissionType = "webfetch"
	PermExternalDir PermissionType = "external_directory"
	PermDoomLoop    PermissionType = "doom_loop"
)
