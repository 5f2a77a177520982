// Package session implements C3: the SessionStart/SessionEnd/Stop hook
// handlers. Only SessionStart produces output, consumed as injected context.
package session

import (
	"log"

	lmctx "github.com/NoobyNull/laminark/internal/context"
	"github.com/NoobyNull/laminark/internal/store"
)

const summaryObservationCap = 1000

// HandleSessionStart opens a new session if none is currently open for this
// project and returns the token-bounded context string to inject. This
// handler must never return an error to its caller — any internal failure
// degrades to the fixed welcome line, since its stdout is interpreted as
// context by the host.
func HandleSessionStart(db *store.Store, projectTag string) string {
	open, err := db.OpenSession(projectTag)
	if err != nil {
		log.Printf("[SESSION] failed to check open session for %s: %v", projectTag, err)
		return lmctx.WelcomeLine
	}
	if open == nil {
		if _, err := db.CreateSession(projectTag); err != nil {
			log.Printf("[SESSION] failed to create session for %s: %v", projectTag, err)
			return lmctx.WelcomeLine
		}
	}

	text, err := lmctx.BuildSessionContext(db, projectTag)
	if err != nil {
		log.Printf("[SESSION] failed to build context for %s: %v", projectTag, err)
		return lmctx.WelcomeLine
	}
	return text
}

// HandleSessionEnd closes an open session. Any stdout from this handler
// would be misread as a response by the host, so it never writes one.
func HandleSessionEnd(db *store.Store, sessionID string) error {
	return db.EndSession(sessionID)
}

// HandleStop synthesizes and stores the deterministic session summary. Fires
// after SessionEnd. Zero observations is a no-op; this handler also never
// writes to stdout.
func HandleStop(db *store.Store, sessionID string) error {
	sess, err := db.GetSession(sessionID)
	if err != nil {
		return err
	}

	obs, err := db.ListObservations(store.ObservationFilter{ProjectTag: sess.ProjectTag, SessionID: sessionID}, summaryObservationCap)
	if err != nil {
		return err
	}
	if len(obs) == 0 {
		return nil
	}

	summary := lmctx.Summarize(sess, obs)
	return db.SetSummary(sessionID, summary)
}
