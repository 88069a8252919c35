// Package trigger implements the automation pipeline: detect a qualifying
// repository event, take the cross-process lock, dispatch a slash command to
// the running agent, and fall back to a durable one-shot marker when the
// dispatch path fails.
package trigger

import (
	"fmt"
	"regexp"
	"strings"
)

// Event is an observed repository action that may trigger automation.
type Event struct {
	Action        string // e.g. "git push origin main", "merge", "PushEvent"
	Branch        string
	CommitMessage string
	ProjectDir    string
	Command       string // optional override of the configured command
}

// actionPattern matches actions that move commits onto a branch, in both
// bare form ("push", "git push origin main") and GitHub event-type form
// ("PushEvent").
var actionPattern = regexp.MustCompile(`(?i)\b(push|merge|pull)(event)?\b`)

// Qualifies reports whether the event should trigger automation, and a
// human-readable reason when it should not. The lock check happens later;
// this is the pure detection step.
func Qualifies(ev Event, protectedBranches []string, skipMarker string) (bool, string) {
	if !actionPattern.MatchString(ev.Action) {
		return false, fmt.Sprintf("action %q is not a push/merge/pull", ev.Action)
	}
	if !branchProtected(ev.Branch, protectedBranches) {
		return false, fmt.Sprintf("branch %q is not protected", ev.Branch)
	}
	if skipMarker != "" && strings.Contains(ev.CommitMessage, skipMarker) {
		return false, fmt.Sprintf("commit message carries %s", skipMarker)
	}
	return true, ""
}

func branchProtected(branch string, protected []string) bool {
	for _, p := range protected {
		if strings.EqualFold(strings.TrimSpace(branch), p) {
			return true
		}
	}
	return false
}
