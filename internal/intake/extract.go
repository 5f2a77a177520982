package intake

import (
	"encoding/json"
	"fmt"
)

// Extract maps a tool-use event to its one-line semantic summary, or returns
// ("", false) when extraction yields an empty/uninformative summary (the
// event should then be dropped).
func Extract(ev *Event) (string, bool) {
	input := ev.ToolInput
	response := stringify(ev.ToolResponse)

	switch ev.ToolName {
	case "Write":
		path := str(input, "file_path")
		content := truncateRunes(str(input, "content"), 200)
		if path == "" {
			return "", false
		}
		return fmt.Sprintf("[Write] Created %s\n%s", path, content), true

	case "Edit":
		path := str(input, "file_path")
		oldStr := truncateRunes(str(input, "old_string"), 80)
		newStr := truncateRunes(str(input, "new_string"), 80)
		if path == "" {
			return "", false
		}
		return fmt.Sprintf("[Edit] Modified %s: replaced %q with %q", path, oldStr, newStr), true

	case "Bash":
		cmd := truncateRunes(str(input, "command"), 100)
		resp := truncateRunes(response, 200)
		if cmd == "" {
			return "", false
		}
		return fmt.Sprintf("[Bash] $ %s\n%s", cmd, resp), true

	case "Read":
		path := str(input, "file_path")
		if path == "" {
			return "", false
		}
		return fmt.Sprintf("[Read] %s", path), true

	case "Glob", "Grep":
		pattern := str(input, "pattern")
		location := str(input, "path")
		if location == "" {
			location = ev.Cwd
		}
		if pattern == "" {
			return "", false
		}
		return fmt.Sprintf("[%s] pattern=%s in %s", ev.ToolName, pattern, location), true

	default:
		if ev.ToolName == "" {
			return "", false
		}
		payload, err := json.Marshal(input)
		if err != nil || string(payload) == "null" || string(payload) == "{}" {
			return "", false
		}
		return fmt.Sprintf("[%s] %s", ev.ToolName, truncateRunes(string(payload), 200)), true
	}
}

func str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
