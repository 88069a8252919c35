package trigger

import (
	"strings"
	"testing"
)

var protected = []string{"main", "master"}

func TestQualifies_PushToProtectedBranch(t *testing.T) {
	ok, reason := Qualifies(Event{
		Action:        "git push origin main",
		Branch:        "main",
		CommitMessage: "fix parser",
	}, protected, "[skip-agent]")
	if !ok {
		t.Errorf("expected qualify, got reason %q", reason)
	}
}

func TestQualifies_ActionVariants(t *testing.T) {
	for _, action := range []string{"push", "PUSH", "merge", "Merge branch 'dev'", "pull", "PushEvent"} {
		ok, reason := Qualifies(Event{Action: action, Branch: "main"}, protected, "")
		if !ok {
			t.Errorf("action %q should qualify, got %q", action, reason)
		}
	}
}

func TestQualifies_NonActionSkipped(t *testing.T) {
	for _, action := range []string{"commit", "checkout", "rebase", ""} {
		ok, reason := Qualifies(Event{Action: action, Branch: "main"}, protected, "")
		if ok {
			t.Errorf("action %q should not qualify", action)
		}
		if !strings.Contains(reason, "not a push") {
			t.Errorf("reason = %q", reason)
		}
	}
}

func TestQualifies_UnprotectedBranch(t *testing.T) {
	ok, reason := Qualifies(Event{Action: "push", Branch: "feature/foo"}, protected, "")
	if ok {
		t.Error("feature branch should not qualify")
	}
	if !strings.Contains(reason, "not protected") {
		t.Errorf("reason = %q", reason)
	}
}

func TestQualifies_BranchCaseAndWhitespace(t *testing.T) {
	ok, _ := Qualifies(Event{Action: "push", Branch: " Main "}, protected, "")
	if !ok {
		t.Error("branch match should ignore case and surrounding whitespace")
	}
}

func TestQualifies_SkipMarker(t *testing.T) {
	ok, reason := Qualifies(Event{
		Action:        "push",
		Branch:        "main",
		CommitMessage: "chore: bump deps [skip-agent]",
	}, protected, "[skip-agent]")
	if ok {
		t.Error("skip marker should suppress the trigger")
	}
	if !strings.Contains(reason, "[skip-agent]") {
		t.Errorf("reason = %q", reason)
	}
}

func TestQualifies_EmptyMarkerNeverMatches(t *testing.T) {
	ok, _ := Qualifies(Event{Action: "push", Branch: "main", CommitMessage: "anything"}, protected, "")
	if !ok {
		t.Error("empty skip marker must not suppress triggers")
	}
}
