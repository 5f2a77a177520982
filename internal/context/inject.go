// Package context implements C9: token-bounded context assembly on session
// open and the deterministic, no-LLM session-close summarizer. (Named
// "context" for the concept it implements, not Go's stdlib context package,
// which it does not shadow at the call sites that use both.)
package context

import (
	"fmt"
	"strings"
	"time"

	"github.com/NoobyNull/laminark/internal/store"
)

const (
	budgetChars       = 6000
	recentMemoryCount = 5
	recentContentCap  = 120
)

// WelcomeLine is emitted whenever neither section has content, or on any
// assembly failure — the injected context string must never look like an
// error.
const WelcomeLine = "Laminark is watching this project. No prior memories yet — they'll accumulate as you work."

const preamble = "Laminark persistent memory\n"

// preferredSources are ranked above recency alone when selecting "high
// value" recent memories.
var preferredSources = map[string]int{
	"mcp:save_memory": 2,
	"slash:remember":  1,
}

// BuildSessionContext assembles the ≤6000-char context string injected at
// SessionStart: a preamble, an optional last-session summary section, and a
// recent-memories section, trimmed progressively (recent observations first)
// to stay within budget.
func BuildSessionContext(db *store.Store, projectTag string) (string, error) {
	var sb strings.Builder
	sb.WriteString(preamble)

	hasContent := false

	lastSession, err := db.LastCompletedWithSummary(projectTag)
	if err != nil {
		return WelcomeLine, nil
	}
	if lastSession != nil {
		hasContent = true
		rangeStr := formatRange(lastSession.StartedAt, lastSession.EndedAt)
		sb.WriteString(fmt.Sprintf("\n## Last Session (%s)\n%s\n", rangeStr, lastSession.Summary))
	}

	recent, err := highValueObservations(db, projectTag, recentMemoryCount)
	if err != nil {
		return WelcomeLine, nil
	}

	if len(recent) > 0 {
		hasContent = true
	}

	if !hasContent {
		return WelcomeLine, nil
	}

	lines := make([]string, 0, len(recent))
	for _, o := range recent {
		lines = append(lines, formatMemoryLine(o))
	}

	for {
		body := sb.String()
		if len(lines) > 0 {
			body += "\n## Recent Memories\n" + strings.Join(lines, "\n") + "\n"
		}
		if len(body) <= budgetChars || len(lines) == 0 {
			return body, nil
		}
		lines = lines[:len(lines)-1]
	}
}

func formatMemoryLine(o *store.Observation) string {
	shortID := o.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	content := strings.Join(strings.Fields(o.Content), " ")
	if len(content) > recentContentCap {
		content = content[:recentContentCap]
	}
	return fmt.Sprintf("- [%s] %s (%s, %s)", shortID, content, o.Source, relativeTime(o.CreatedAt))
}

// highValueObservations selects up to limit observations with a non-null,
// non-noise classification, preferring mcp:save_memory and slash:remember
// sources, then most-recent.
func highValueObservations(db *store.Store, projectTag string, limit int) ([]*store.Observation, error) {
	obs, err := db.ListObservations(store.ObservationFilter{
		ProjectTag:     projectTag,
		OnlyClassified: true,
		ExcludeNoise:   true,
	}, 200)
	if err != nil {
		return nil, err
	}

	sortByHighValue(obs)
	if len(obs) > limit {
		obs = obs[:limit]
	}
	return obs, nil
}

func sortByHighValue(obs []*store.Observation) {
	less := func(i, j int) bool {
		pi, pj := preferredSources[obs[i].Source], preferredSources[obs[j].Source]
		if pi != pj {
			return pi > pj
		}
		return obs[i].CreatedAt.After(obs[j].CreatedAt)
	}
	for i := 1; i < len(obs); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			obs[j], obs[j-1] = obs[j-1], obs[j]
		}
	}
}

func formatRange(start time.Time, end *time.Time) string {
	if end == nil {
		return start.Format("2006-01-02")
	}
	if start.Format("2006-01-02") == end.Format("2006-01-02") {
		return fmt.Sprintf("%s %s-%s", start.Format("2006-01-02"), start.Format("15:04"), end.Format("15:04"))
	}
	return fmt.Sprintf("%s to %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
}

func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
