package intake

import (
	"strings"
	"testing"
)

func TestAdmitHighSignalToolAlwaysAdmitsNonEmptyContent(t *testing.T) {
	d := Admit("Write", "[Write] Created main.go\npackage main")
	if !d.Admit {
		t.Errorf("expected high-signal tool content to be admitted, got reason %q", d.Reason)
	}
}

func TestAdmitHighSignalToolRejectsEmptyContent(t *testing.T) {
	d := Admit("Write", "")
	if d.Admit {
		t.Error("expected empty high-signal content to be rejected")
	}
}

func TestAdmitRejectsEmptyContentForOrdinaryTool(t *testing.T) {
	d := Admit("Bash", "")
	if d.Admit {
		t.Error("expected empty content to be rejected")
	}
}

func TestAdmitNoiseCategoriesInOrderEmptyOutputFirst(t *testing.T) {
	d := Admit("Bash", "OK.")
	if d.Admit {
		t.Error("expected trivial OK output to be rejected as noise")
	}
	if d.Reason != "noise: EMPTY_OUTPUT" {
		t.Errorf("expected EMPTY_OUTPUT noise reason, got %q", d.Reason)
	}
}

func TestAdmitBuildOutputNoise(t *testing.T) {
	d := Admit("Bash", "webpack compiled successfully in 1200ms")
	if d.Admit {
		t.Error("expected build chatter to be rejected as noise")
	}
	if d.Reason != "noise: BUILD_OUTPUT" {
		t.Errorf("expected BUILD_OUTPUT noise reason, got %q", d.Reason)
	}
}

func TestAdmitPackageInstallNoise(t *testing.T) {
	d := Admit("Bash", "added 42 packages in 3s")
	if d.Admit {
		t.Error("expected package install chatter to be rejected as noise")
	}
	if d.Reason != "noise: PACKAGE_INSTALL" {
		t.Errorf("expected PACKAGE_INSTALL noise reason, got %q", d.Reason)
	}
}

func TestAdmitLinterWarningNoise(t *testing.T) {
	d := Admit("Bash", "3 warnings, 0 errors from eslint")
	if d.Admit {
		t.Error("expected linter warning chatter to be rejected as noise")
	}
	if d.Reason != "noise: LINTER_WARNING" {
		t.Errorf("expected LINTER_WARNING noise reason, got %q", d.Reason)
	}
}

func TestAdmitLongContentRequiresSignalIndicator(t *testing.T) {
	long := strings.Repeat("irrelevant filler text ", 300)
	d := Admit("Bash", long)
	if d.Admit {
		t.Error("expected long content with no decision/problem/solution indicator to be rejected")
	}

	longWithIndicator := long + " this failed because the config was wrong"
	d2 := Admit("Bash", longWithIndicator)
	if !d2.Admit {
		t.Errorf("expected long content with a signal indicator to be admitted, got reason %q", d2.Reason)
	}
}

func TestAdmitOrdinaryShortContentAdmitted(t *testing.T) {
	d := Admit("Bash", "found the root cause of the crash")
	if !d.Admit {
		t.Errorf("expected short signal content to be admitted, got reason %q", d.Reason)
	}
}
