package context

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/NoobyNull/laminark/internal/store"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBuildSessionContextWelcomeWhenEmpty(t *testing.T) {
	s := setupStore(t)
	got, err := BuildSessionContext(s, "proj1")
	if err != nil {
		t.Fatalf("BuildSessionContext failed: %v", err)
	}
	if got != WelcomeLine {
		t.Errorf("expected welcome line for a project with no history, got %q", got)
	}
}

func TestBuildSessionContextIncludesLastSessionAndMemories(t *testing.T) {
	s := setupStore(t)

	sess, err := s.CreateSession("proj1")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := s.EndSession(sess.ID); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if err := s.SetSummary(sess.ID, "Fixed the race condition in the watcher."); err != nil {
		t.Fatalf("SetSummary failed: %v", err)
	}

	o := &store.Observation{ProjectTag: "proj1", Content: "discovered the root cause", Source: "hook:Edit", Kind: store.KindDecision}
	if err := s.CreateObservation(o); err != nil {
		t.Fatalf("CreateObservation failed: %v", err)
	}
	if err := s.SetClassification(o.ID, "discovery", time.Now()); err != nil {
		t.Fatalf("SetClassification failed: %v", err)
	}

	got, err := BuildSessionContext(s, "proj1")
	if err != nil {
		t.Fatalf("BuildSessionContext failed: %v", err)
	}
	if !strings.Contains(got, "## Last Session") {
		t.Error("expected a Last Session section")
	}
	if !strings.Contains(got, "## Recent Memories") {
		t.Error("expected a Recent Memories section")
	}
	if len(got) > budgetChars {
		t.Errorf("expected context within budget, got %d chars", len(got))
	}
}

func TestBuildSessionContextStaysWithinBudget(t *testing.T) {
	s := setupStore(t)

	for i := 0; i < 50; i++ {
		o := &store.Observation{
			ProjectTag: "proj1",
			Content:    strings.Repeat("x", 500),
			Source:     "hook:Edit",
			Kind:       store.KindDecision,
		}
		if err := s.CreateObservation(o); err != nil {
			t.Fatalf("CreateObservation failed: %v", err)
		}
		if err := s.SetClassification(o.ID, "discovery", time.Now()); err != nil {
			t.Fatalf("SetClassification failed: %v", err)
		}
	}

	got, err := BuildSessionContext(s, "proj1")
	if err != nil {
		t.Fatalf("BuildSessionContext failed: %v", err)
	}
	if len(got) > budgetChars {
		t.Errorf("expected context truncated to budget, got %d chars", len(got))
	}
}

func TestSummarizeIncludesHeaderAndSections(t *testing.T) {
	sess := &store.Session{StartedAt: time.Now().Add(-time.Hour), EndedAt: timePtr(time.Now())}
	obs := []*store.Observation{
		{Kind: store.KindChange, Content: "edited main.go"},
		{Kind: store.KindDecision, Content: "chose sqlite"},
	}

	out := Summarize(sess, obs)
	if !strings.Contains(out, "Observations: 2") {
		t.Error("expected observation count in header")
	}
	if !strings.Contains(out, "## Changes") || !strings.Contains(out, "## Decisions") {
		t.Error("expected section headers for each represented kind")
	}
}

func TestSummarizeShrinksToStayWithinBudget(t *testing.T) {
	sess := &store.Session{StartedAt: time.Now().Add(-time.Hour), EndedAt: timePtr(time.Now())}
	var obs []*store.Observation
	for i := 0; i < 40; i++ {
		obs = append(obs, &store.Observation{Kind: store.KindChange, Content: strings.Repeat("change detail ", 20)})
	}

	out := Summarize(sess, obs)
	if len(out) > summaryBudgetChars {
		t.Errorf("expected summary within budget, got %d chars", len(out))
	}
}

func TestSummarizeHandlesUnfinishedSession(t *testing.T) {
	sess := &store.Session{StartedAt: time.Now()}
	out := Summarize(sess, nil)
	if !strings.Contains(out, "Duration: unknown") {
		t.Errorf("expected unknown duration for a session with no EndedAt, got %q", out)
	}
}

func timePtr(t time.Time) *time.Time { return &t }
