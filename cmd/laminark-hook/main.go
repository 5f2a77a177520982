// Command laminark-hook is the short-lived process the host assistant's hook
// runtime invokes once per event: it reads one JSON event from stdin,
// dispatches it through C2/C3, and always exits success — a failed capture
// must be invisible to the host.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"

	"github.com/NoobyNull/laminark/internal/config"
	lmctx "github.com/NoobyNull/laminark/internal/context"
	"github.com/NoobyNull/laminark/internal/intake"
	"github.com/NoobyNull/laminark/internal/projecttag"
	"github.com/NoobyNull/laminark/internal/session"
	"github.com/NoobyNull/laminark/internal/store"
)

func main() {
	// Exit code is always success: any internal failure is logged to stderr
	// and swallowed rather than surfaced to the host as a hook error.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[HOOK] recovered from panic: %v", r)
		}
		os.Exit(0)
	}()

	run()
}

func run() {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		log.Printf("[HOOK] failed to read stdin: %v", err)
		return
	}

	var ev intake.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("[HOOK] failed to parse event: %v", err)
		return
	}

	dataDir, err := config.UserDataDir()
	if err != nil {
		log.Printf("[HOOK] failed to resolve data dir: %v", err)
		emitWelcomeIfSessionStart(ev)
		return
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Printf("[HOOK] failed to create data dir: %v", err)
		emitWelcomeIfSessionStart(ev)
		return
	}

	db, err := store.Open(config.UserDBPath(dataDir))
	if err != nil {
		log.Printf("[HOOK] failed to open store: %v", err)
		emitWelcomeIfSessionStart(ev)
		return
	}
	defer db.Close()

	projectTag := projecttag.Derive(ev.Cwd)

	userCfg, err := config.LoadUserConfig(config.UserConfigPath(dataDir))
	if err != nil {
		log.Printf("[HOOK] failed to load user config, using defaults: %v", err)
		userCfg = config.DefaultUserConfig()
	}

	switch ev.HookEventName {
	case "SessionStart":
		// The only handler permitted to write to stdout; its output is
		// injected as context into the assistant.
		fmt.Print(session.HandleSessionStart(db, projectTag))

	case "SessionEnd":
		if err := session.HandleSessionEnd(db, ev.SessionID); err != nil {
			log.Printf("[HOOK] session end failed: %v", err)
		}

	case "Stop":
		if err := session.HandleStop(db, ev.SessionID); err != nil {
			log.Printf("[HOOK] stop summary failed: %v", err)
		}

	case "PostToolUse", "PostToolUseFailure":
		redactor := intake.NewRedactor(toPatternRules(userCfg.Privacy.AdditionalPatterns), userCfg.Privacy.ExcludedFiles)
		pipeline := intake.NewPipeline(db, redactor)
		outcome, err := pipeline.Run(projectTag, ev.SessionID, &ev)
		if err != nil {
			log.Printf("[HOOK] intake pipeline failed: %v", err)
			return
		}
		if !outcome.Persisted {
			log.Printf("[HOOK] dropped: %s", outcome.Reason)
		}

	default:
		log.Printf("[HOOK] unrecognized hook event: %s", ev.HookEventName)
	}
}

// emitWelcomeIfSessionStart preserves the "never an error message" guarantee
// for SessionStart's injected context even when the event can't be parsed
// far enough to know for certain — best-effort only, since a raw parse
// failure means we can't know the event name either.
func emitWelcomeIfSessionStart(ev intake.Event) {
	if ev.HookEventName == "SessionStart" {
		fmt.Print(lmctx.WelcomeLine)
	}
}

func toPatternRules(in []config.PatternRule) []intake.PatternRule {
	out := make([]intake.PatternRule, 0, len(in))
	for _, p := range in {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			log.Printf("[HOOK] skipping invalid user pattern %q: %v", p.Regex, err)
			continue
		}
		out = append(out, intake.PatternRule{Pattern: re, Replacement: p.Replacement})
	}
	return out
}
