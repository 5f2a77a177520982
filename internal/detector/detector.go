// Package detector implements C6: per-session adaptive topic-shift
// detection over an embedding sequence, using an EWMA of cosine distance's
// mean and variance, seeded from project history, with stash-on-shift and
// append-only decision logging.
package detector

import (
	"fmt"
	"math"
	"sync"

	"github.com/NoobyNull/laminark/internal/store"
)

const (
	defaultEWMADistance = 0.3
	defaultEWMAVariance = 0.01
	defaultAlpha        = 0.3
	defaultSensitivity  = 1.5

	thresholdFloor   = 0.15
	thresholdCeiling = 0.6

	seedHistoryLimit = 10
	stashObservationWindow = 5
)

// sessionState is the per-session in-memory detector state.
type sessionState struct {
	lastEmbedding    []float32
	ewmaDistance     float64
	ewmaVariance     float64
	observationCount int
	alpha            float64
	sensitivity      float64
}

// Detector tracks one sessionState per open session and persists every
// decision and the final per-session threshold history row.
type Detector struct {
	db *store.Store

	mu       sync.Mutex
	sessions map[string]*sessionState

	defaultAlpha       float64
	defaultSensitivity float64
}

// New builds a detector with the given default alpha/sensitivity (overridden
// per the user config's detector.alpha / detector.sensitivity).
func New(db *store.Store, alpha, sensitivity float64) *Detector {
	if alpha <= 0 {
		alpha = defaultAlpha
	}
	if sensitivity <= 0 {
		sensitivity = defaultSensitivity
	}
	return &Detector{
		db:                 db,
		sessions:           make(map[string]*sessionState),
		defaultAlpha:       alpha,
		defaultSensitivity: sensitivity,
	}
}

// StartSession seeds a new session's detector state from the average of up
// to the last 10 closed sessions' final EWMA state in this project, falling
// back to the documented defaults when no history exists. Safe to call more
// than once for the same session (e.g. a racing first Observe) — the later
// call simply overwrites the in-memory state before any embedding has been
// recorded against it.
func (d *Detector) StartSession(projectTag, sessionID string) error {
	state, err := d.seededState(projectTag)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.sessions[sessionID] = state
	d.mu.Unlock()
	return nil
}

// seededState builds a fresh per-session state, averaging up to the last 10
// closed sessions' final EWMA state in this project when history exists.
func (d *Detector) seededState(projectTag string) (*sessionState, error) {
	state := &sessionState{
		ewmaDistance: defaultEWMADistance,
		ewmaVariance: defaultEWMAVariance,
		alpha:        d.defaultAlpha,
		sensitivity:  d.defaultSensitivity,
	}

	history, err := d.db.RecentThresholdHistory(projectTag, seedHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load threshold history: %w", err)
	}
	if len(history) > 0 {
		var sumDist, sumVar float64
		for _, h := range history {
			sumDist += h.FinalEWMADistance
			sumVar += h.FinalEWMAVariance
		}
		state.ewmaDistance = sumDist / float64(len(history))
		state.ewmaVariance = sumVar / float64(len(history))
	}
	return state, nil
}

// Decision is the outcome of observing one new embedding.
type Decision struct {
	Shifted    bool
	Distance   float64
	Threshold  float64
	Confidence float64
	StashID    string
}

// Observe computes the cosine distance between this embedding and the
// session's last one, derives the adaptive threshold, decides shift/no-shift,
// updates the EWMA state, optionally creates a context stash, and always
// appends one row to the shift-decision log.
func (d *Detector) Observe(projectTag, sessionID, observationID string, embedding []float32) (*Decision, error) {
	d.mu.Lock()
	state, ok := d.sessions[sessionID]
	if !ok {
		d.mu.Unlock()
		seeded, err := d.seededState(projectTag)
		if err != nil {
			// History lookup failed; proceed with plain defaults rather than
			// fail the observation over a seeding concern.
			seeded = &sessionState{
				ewmaDistance: defaultEWMADistance,
				ewmaVariance: defaultEWMAVariance,
				alpha:        d.defaultAlpha,
				sensitivity:  d.defaultSensitivity,
			}
		}
		d.mu.Lock()
		if existing, raced := d.sessions[sessionID]; raced {
			state = existing
		} else {
			state = seeded
			d.sessions[sessionID] = state
		}
	}
	d.mu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if state.lastEmbedding == nil {
		state.lastEmbedding = embedding
		row := &store.ShiftDecisionRow{
			ProjectTag:            projectTag,
			SessionID:             sessionID,
			ObservationID:         observationID,
			Distance:              0,
			Threshold:             clamp(state.ewmaDistance+state.sensitivity*math.Sqrt(state.ewmaVariance), thresholdFloor, thresholdCeiling),
			EWMADistance:          state.ewmaDistance,
			EWMAVariance:          state.ewmaVariance,
			SensitivityMultiplier: state.sensitivity,
			Shifted:               false,
			Confidence:            0,
		}
		if err := d.db.InsertShiftDecision(row); err != nil {
			return nil, fmt.Errorf("failed to log shift decision: %w", err)
		}
		return &Decision{Shifted: false, Distance: 0, Threshold: row.Threshold, Confidence: 0}, nil
	}

	dist := store.CosineDistance(embedding, state.lastEmbedding)
	threshold := clamp(state.ewmaDistance+state.sensitivity*math.Sqrt(state.ewmaVariance), thresholdFloor, thresholdCeiling)
	shifted := dist > threshold

	var confidence float64
	if shifted {
		confidence = clamp((dist-threshold)/threshold, 0, 1)
	}

	newEWMA := state.alpha*dist + (1-state.alpha)*state.ewmaDistance
	newVar := state.alpha*(dist-newEWMA)*(dist-newEWMA) + (1-state.alpha)*state.ewmaVariance

	var stashID string
	if shifted {
		summary, err := d.buildStashSummary(projectTag, sessionID)
		if err != nil {
			return nil, err
		}
		stash := &store.Stash{SessionID: sessionID, Summary: summary}
		if err := d.db.CreateStash(stash); err != nil {
			return nil, fmt.Errorf("failed to create stash: %w", err)
		}
		stashID = stash.ID
	}

	row := &store.ShiftDecisionRow{
		ProjectTag:            projectTag,
		SessionID:             sessionID,
		ObservationID:         observationID,
		Distance:              dist,
		Threshold:             threshold,
		EWMADistance:          newEWMA,
		EWMAVariance:          newVar,
		SensitivityMultiplier: state.sensitivity,
		Shifted:               shifted,
		Confidence:            confidence,
		StashID:               stashID,
	}
	if err := d.db.InsertShiftDecision(row); err != nil {
		return nil, fmt.Errorf("failed to log shift decision: %w", err)
	}

	state.ewmaDistance = newEWMA
	state.ewmaVariance = newVar
	state.observationCount++
	state.lastEmbedding = embedding

	return &Decision{Shifted: shifted, Distance: dist, Threshold: threshold, Confidence: confidence, StashID: stashID}, nil
}

// buildStashSummary snapshots the most recent observations in the session
// into a short context string.
func (d *Detector) buildStashSummary(projectTag, sessionID string) (string, error) {
	obs, err := d.db.ListObservations(store.ObservationFilter{ProjectTag: projectTag, SessionID: sessionID}, 0)
	if err != nil {
		return "", fmt.Errorf("failed to load session observations for stash: %w", err)
	}
	start := 0
	if len(obs) > stashObservationWindow {
		start = len(obs) - stashObservationWindow
	}
	summary := ""
	for _, o := range obs[start:] {
		line := o.Content
		if len(line) > 120 {
			line = line[:120]
		}
		summary += "- " + line + "\n"
	}
	if summary == "" {
		summary = "(no prior observations in session)"
	}
	return summary, nil
}

// EndSession appends the session's final EWMA state to threshold history and
// drops the in-memory state.
func (d *Detector) EndSession(projectTag, sessionID string) error {
	d.mu.Lock()
	state, ok := d.sessions[sessionID]
	if ok {
		delete(d.sessions, sessionID)
	}
	d.mu.Unlock()

	if !ok {
		return nil
	}

	return d.db.InsertThresholdHistory(&store.ThresholdHistoryRow{
		ProjectTag:        projectTag,
		SessionID:         sessionID,
		FinalEWMADistance: state.ewmaDistance,
		FinalEWMAVariance: state.ewmaVariance,
		ObservationCount:  state.observationCount,
	})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
