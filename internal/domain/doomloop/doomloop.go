// Package doomloop detects a model calling the same tool with the same
// input repeatedly instead of making progress, so the reducer can force a
// fresh approval prompt rather than silently re-running a pre-approved
// tool into an infinite loop.
//
// Grounded on internal/permission/doom_loop.go, adapted from a
// cross-session map keyed by session id to a single per-session detector
// since one now lives inside each session's own state.AppState.
package doomloop

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Threshold is the number of consecutive identical calls that trigger
// detection.
const Threshold = 3

// historyCap bounds how much call history a session keeps, independent of
// Threshold, so a long-running session doesn't grow this unbounded.
const historyCap = 10

// Detector tracks one session's recent tool-call hashes.
type Detector struct {
	history []string
}

// NewDetector returns an empty detector for a new session.
func NewDetector() *Detector {
	return &Detector{}
}

// Check records toolName+input and reports whether the last Threshold
// calls (including this one) are identical.
func (d *Detector) Check(toolName string, input any) bool {
	hash := hashCall(toolName, input)

	isLoop := false
	if len(d.history) >= Threshold-1 {
		allSame := true
		start := len(d.history) - (Threshold - 1)
		for i := start; i < len(d.history); i++ {
			if d.history[i] != hash {
				allSame = false
				break
			}
		}
		isLoop = allSame
	}

	d.history = append(d.history, hash)
	if len(d.history) > historyCap {
		d.history = d.history[len(d.history)-historyCap:]
	}

	return isLoop
}

// Reset clears history, e.g. once a differing call breaks a loop.
func (d *Detector) Reset() {
	d.history = nil
}

func hashCall(toolName string, input any) string {
	data, _ := json.Marshal(map[string]any{"tool": toolName, "input": input})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
