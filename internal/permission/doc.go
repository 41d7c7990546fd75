// Package permission defines the permission vocabulary agent profiles are
// configured with.
//
// # Overview
//
// An agent profile (internal/agent.Agent) carries a permission posture per
// operation type: Edit, Bash (pattern-keyed), WebFetch, ExternalDir, and
// DoomLoop. Each resolves to one of three actions:
//   - Allow: the operation should never prompt
//   - Deny: the operation should never be offered
//   - Ask: the operation goes through the ordinary approval prompt
//
// # Where enforcement actually happens
//
// This package holds only the vocabulary, not a checker. The approval
// pipeline itself — queuing a pending approval, prompting, resolving it —
// lives in internal/domain/reduce and internal/domain/state, driven by
// actions and effects rather than a synchronous permission check from
// inside a tool implementation.
//
// Agent.GetPermission and Agent.CheckBashPermission classify a profile's
// configured posture for a given operation. Agent.PreApprovalSeed turns
// ActionAllow entries into the list of tools and bash patterns a freshly
// created session should start with already approved, so a subagent's
// permission profile shapes its child session's approval queue from its
// very first action instead of needing a live checker wired into the tool
// implementations themselves.
package permission
