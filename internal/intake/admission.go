package intake

import "regexp"

const (
	highSignalContentCeiling = 5000
)

var highSignalTools = map[string]bool{
	"Write": true,
	"Edit":  true,
}

// noiseCategory is one named noise-detection rule, evaluated in order.
type noiseCategory struct {
	name    string
	matches func(content string) bool
}

var emptyOutputPattern = regexp.MustCompile(`(?i)^\s*(ok|success|done)\.?\s*$`)
var buildOutputPattern = regexp.MustCompile(`(?i)(npm (warn|notice)|webpack compiled|building\.\.\.|\d+ (modules|files) transformed)`)
var packageInstallPattern = regexp.MustCompile(`(?i)(added \d+ packages|npm install|pip install|go: downloading|added \d+, removed \d+, changed \d+ packages)`)
var linterWarningPattern = regexp.MustCompile(`(?i)(eslint|\d+ warnings?, \d+ errors?|golangci-lint)`)

// noiseCategories is evaluated in order; EMPTY_OUTPUT is checked first since
// it's the cheapest and most common rejection.
var noiseCategories = []noiseCategory{
	{"EMPTY_OUTPUT", emptyOutputPattern.MatchString},
	{"BUILD_OUTPUT", buildOutputPattern.MatchString},
	{"PACKAGE_INSTALL", packageInstallPattern.MatchString},
	{"LINTER_WARNING", linterWarningPattern.MatchString},
}

var signalIndicatorPattern = regexp.MustCompile(`(?i)(error|failed|exception|bug|decided|chose|because|instead of)`)

// Decision is the single admission verdict for one event (admission always
// produces at most one decision per event).
type Decision struct {
	Admit  bool
	Reason string
}

// Admit decides whether a redacted observation should be persisted, applying
// the tool-origin rule, noise-category rejection, and the long-content
// decision/problem/solution indicator requirement.
func Admit(toolName, content string) Decision {
	if highSignalTools[toolName] {
		if content == "" {
			return Decision{Admit: false, Reason: "empty high-signal content"}
		}
		return Decision{Admit: true, Reason: "high-signal tool"}
	}

	if content == "" {
		return Decision{Admit: false, Reason: "empty content"}
	}

	for _, cat := range noiseCategories {
		if cat.matches(content) {
			return Decision{Admit: false, Reason: "noise: " + cat.name}
		}
	}

	if len(content) > highSignalContentCeiling && !signalIndicatorPattern.MatchString(content) {
		return Decision{Admit: false, Reason: "long content without decision/problem/solution indicator"}
	}

	return Decision{Admit: true, Reason: "admitted"}
}
