package context

import (
	"fmt"
	"strings"

	"github.com/NoobyNull/laminark/internal/store"
)

const (
	summaryBudgetChars = 2000
	perSectionCap      = 8
)

// sectionOrder and sectionTitles define the deterministic, no-LLM session
// summary's layout: one section per observation kind, in a fixed order.
var sectionOrder = []store.ObservationKind{
	store.KindChange, store.KindDecision, store.KindVerification, store.KindReference, store.KindFinding,
}

var sectionTitles = map[store.ObservationKind]string{
	store.KindChange:       "Changes",
	store.KindDecision:     "Decisions",
	store.KindVerification: "Verifications",
	store.KindReference:    "References",
	store.KindFinding:      "Findings",
}

// Summarize compresses a session's observations into a deterministic summary
// grouped by kind, with per-section caps, progressively trimmed to stay
// within ~2000 chars. Always includes a Duration and Observations count.
// Zero observations is the caller's responsibility to treat as a no-op.
func Summarize(sess *store.Session, obs []*store.Observation) string {
	grouped := map[store.ObservationKind][]*store.Observation{}
	for _, o := range obs {
		grouped[o.Kind] = append(grouped[o.Kind], o)
	}

	caps := map[store.ObservationKind]int{}
	for _, k := range sectionOrder {
		caps[k] = perSectionCap
	}

	for {
		var sb strings.Builder
		sb.WriteString(header(sess, len(obs)))

		for _, k := range sectionOrder {
			items := grouped[k]
			if len(items) == 0 {
				continue
			}
			cap := caps[k]
			if cap > len(items) {
				cap = len(items)
			}
			if cap <= 0 {
				continue
			}
			sb.WriteString("\n## " + sectionTitles[k] + "\n")
			for _, o := range items[:cap] {
				sb.WriteString("- " + oneLine(o.Content) + "\n")
			}
		}

		body := sb.String()
		if len(body) <= summaryBudgetChars {
			return body
		}

		if !shrink(caps) {
			return truncateToChars(body, summaryBudgetChars)
		}
	}
}

func header(sess *store.Session, count int) string {
	duration := "unknown"
	if sess.EndedAt != nil {
		duration = sess.EndedAt.Sub(sess.StartedAt).Round(1e9).String()
	}
	return fmt.Sprintf("Duration: %s\nObservations: %d\n", duration, count)
}

// shrink reduces the largest remaining section cap by one, returning false
// once every section is already at its floor (1), signaling the caller to
// fall back to a hard character truncation.
func shrink(caps map[store.ObservationKind]int) bool {
	changed := false
	for k, c := range caps {
		if c > 1 {
			caps[k] = c - 1
			changed = true
		}
	}
	return changed
}

func oneLine(content string) string {
	line := strings.Join(strings.Fields(content), " ")
	if len(line) > 160 {
		line = line[:160]
	}
	return line
}

func truncateToChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
