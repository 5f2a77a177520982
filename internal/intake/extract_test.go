package intake

import (
	"strings"
	"testing"
)

func TestExtractWriteIncludesPathAndTruncatedContent(t *testing.T) {
	ev := &Event{ToolName: "Write", ToolInput: map[string]any{
		"file_path": "main.go",
		"content":   strings.Repeat("x", 300),
	}}
	summary, ok := Extract(ev)
	if !ok {
		t.Fatal("expected Write to extract")
	}
	if !strings.Contains(summary, "main.go") {
		t.Error("expected file path in summary")
	}
	if strings.Count(summary, "x") != 200 {
		t.Errorf("expected content truncated to 200 runes, got %d", strings.Count(summary, "x"))
	}
}

func TestExtractWriteWithoutPathDrops(t *testing.T) {
	ev := &Event{ToolName: "Write", ToolInput: map[string]any{"content": "hi"}}
	if _, ok := Extract(ev); ok {
		t.Fatal("expected Write without file_path to drop")
	}
}

func TestExtractEditSummarizesOldAndNew(t *testing.T) {
	ev := &Event{ToolName: "Edit", ToolInput: map[string]any{
		"file_path":  "a.go",
		"old_string": "foo",
		"new_string": "bar",
	}}
	summary, ok := Extract(ev)
	if !ok {
		t.Fatal("expected Edit to extract")
	}
	if !strings.Contains(summary, "a.go") || !strings.Contains(summary, "foo") || !strings.Contains(summary, "bar") {
		t.Errorf("unexpected summary: %q", summary)
	}
}

func TestExtractBashIncludesCommandAndResponse(t *testing.T) {
	ev := &Event{ToolName: "Bash", ToolInput: map[string]any{"command": "go test ./..."}, ToolResponse: "ok"}
	summary, ok := Extract(ev)
	if !ok {
		t.Fatal("expected Bash to extract")
	}
	if !strings.Contains(summary, "go test ./...") {
		t.Error("expected command in summary")
	}
}

func TestExtractBashWithoutCommandDrops(t *testing.T) {
	ev := &Event{ToolName: "Bash", ToolInput: map[string]any{}}
	if _, ok := Extract(ev); ok {
		t.Fatal("expected Bash without command to drop")
	}
}

func TestExtractReadRequiresPath(t *testing.T) {
	ev := &Event{ToolName: "Read", ToolInput: map[string]any{"file_path": "x.go"}}
	summary, ok := Extract(ev)
	if !ok || !strings.Contains(summary, "x.go") {
		t.Errorf("unexpected Read extraction: %q ok=%v", summary, ok)
	}

	empty := &Event{ToolName: "Read", ToolInput: map[string]any{}}
	if _, ok := Extract(empty); ok {
		t.Fatal("expected Read without file_path to drop")
	}
}

func TestExtractGlobFallsBackToCwd(t *testing.T) {
	ev := &Event{ToolName: "Glob", Cwd: "/repo", ToolInput: map[string]any{"pattern": "*.go"}}
	summary, ok := Extract(ev)
	if !ok || !strings.Contains(summary, "/repo") {
		t.Errorf("unexpected Glob extraction: %q ok=%v", summary, ok)
	}
}

func TestExtractUnknownToolFallsThroughToGenericPayload(t *testing.T) {
	ev := &Event{ToolName: "WebFetch", ToolInput: map[string]any{"url": "https://example.com"}}
	summary, ok := Extract(ev)
	if !ok || !strings.Contains(summary, "WebFetch") {
		t.Errorf("unexpected generic extraction: %q ok=%v", summary, ok)
	}
}

func TestExtractEmptyToolNameDrops(t *testing.T) {
	ev := &Event{ToolInput: map[string]any{}}
	if _, ok := Extract(ev); ok {
		t.Fatal("expected empty tool name to drop")
	}
}

func TestExtractUnknownToolWithEmptyInputDrops(t *testing.T) {
	ev := &Event{ToolName: "SomeTool", ToolInput: map[string]any{}}
	if _, ok := Extract(ev); ok {
		t.Fatal("expected an empty-input unknown tool to drop")
	}
}
