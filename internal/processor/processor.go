// Package processor implements C4, the Haiku Processor: a background worker
// that drains unclassified observations project by project, orchestrating
// the classifier, entity-extraction, and relationship-inference agents
// behind a write-quality gate, and forwarding debug signals to C7.
package processor

import (
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/NoobyNull/laminark/internal/bus"
	"github.com/NoobyNull/laminark/internal/detector"
	"github.com/NoobyNull/laminark/internal/graph"
	"github.com/NoobyNull/laminark/internal/intelligence"
	"github.com/NoobyNull/laminark/internal/pathtracker"
	"github.com/NoobyNull/laminark/internal/store"
)

// Processor drains unclassified observations on a ticker, at most one
// worker per project at a time (enforced with a singleflight.Group keyed by
// project tag, so concurrent ticks never double-process the same project).
type Processor struct {
	db       *store.Store
	graph    *graph.Graph
	intel    *intelligence.Client
	paths    *pathtracker.Manager
	embedder intelligence.EmbeddingProvider
	shift    *detector.Detector
	events   *bus.Client

	interval  time.Duration
	batchSize int

	sf     singleflight.Group
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a processor. embedder may be nil, in which case observations
// are classified but never embedded (topic-shift detection then never fires
// for that deployment). shift may also be nil in embedder-less deployments.
func New(db *store.Store, g *graph.Graph, intel *intelligence.Client, paths *pathtracker.Manager, embedder intelligence.EmbeddingProvider, shift *detector.Detector, interval time.Duration, batchSize int) *Processor {
	return &Processor{
		db:        db,
		graph:     g,
		intel:     intel,
		paths:     paths,
		embedder:  embedder,
		shift:     shift,
		interval:  interval,
		batchSize: batchSize,
		stopCh:    make(chan struct{}),
	}
}

// SetEventBus attaches the observability bus client; events are best-effort
// and never block classification when publishing fails.
func (p *Processor) SetEventBus(c *bus.Client) {
	p.events = c
}

// Start begins the ticker loop in the background.
func (p *Processor) Start() {
	p.wg.Add(1)
	go p.loop()
}

// Stop signals the loop to exit and waits for it to finish its current tick.
func (p *Processor) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Processor) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

// tick finds every project with unclassified observations and processes one
// batch per project, collapsing concurrent calls for the same project tag.
func (p *Processor) tick() {
	p.finalizeEndedSessions()

	projects, err := p.db.DistinctProjectsWithUnclassified()
	if err != nil {
		log.Printf("[PROCESSOR] failed to list active projects: %v", err)
		return
	}

	for _, projectTag := range projects {
		select {
		case <-p.stopCh:
			return
		default:
		}
		tag := projectTag
		p.sf.DoChan(tag, func() (any, error) {
			p.processBatch(tag)
			return nil, nil
		})
	}
}

// finalizeEndedSessions closes out C6's per-session detector state for
// sessions that ended in a short-lived hook process the daemon never
// observed directly, appending each one's final threshold-history row.
func (p *Processor) finalizeEndedSessions() {
	if p.shift == nil {
		return
	}
	sessions, err := p.db.EndedSessionsAwaitingThresholdFinalize(50)
	if err != nil {
		log.Printf("[PROCESSOR] failed to list sessions awaiting finalize: %v", err)
		return
	}
	for _, sess := range sessions {
		if err := p.shift.EndSession(sess.ProjectTag, sess.ID); err != nil {
			log.Printf("[PROCESSOR] failed to finalize detector state for session %s: %v", sess.ID, err)
		}
	}
}

// processBatch drains up to batchSize unclassified observations for one
// project, strictly in observation-id (creation) order. A poison observation
// is logged and left unclassified; it never halts the batch.
func (p *Processor) processBatch(projectTag string) {
	obs, err := p.db.ListUnclassified(projectTag, p.batchSize)
	if err != nil {
		log.Printf("[PROCESSOR] %s: failed to list unclassified: %v", projectTag, err)
		return
	}

	for _, o := range obs {
		select {
		case <-p.stopCh:
			return
		default:
		}
		if err := p.processOne(projectTag, o); err != nil {
			log.Printf("[PROCESSOR] %s: observation %s left unclassified: %v", projectTag, o.ID, err)
		}
	}
}

// processOne runs the classify -> extract -> infer-relationships sequence
// for one observation. Classification always completes before extraction;
// extraction before relationships.
func (p *Processor) processOne(projectTag string, o *store.Observation) error {
	result, err := p.intel.Classify(o.Content, o.Source)
	if err != nil {
		return err
	}

	if p.embedder != nil {
		if emb, embErr := p.embedder.Embed(o.Content); embErr == nil {
			if setErr := p.db.SetEmbedding(o.ID, emb, p.embedder.ModelTag()); setErr != nil {
				log.Printf("[PROCESSOR] %s: failed to store embedding for %s: %v", projectTag, o.ID, setErr)
			} else if p.shift != nil && o.SessionID != "" {
				decision, shiftErr := p.shift.Observe(projectTag, o.SessionID, o.ID, emb)
				if shiftErr != nil {
					log.Printf("[PROCESSOR] %s: topic-shift update failed for %s: %v", projectTag, o.ID, shiftErr)
				} else if p.events != nil {
					if pubErr := p.events.PublishJSON(bus.SubjectShiftDecision, decision); pubErr != nil {
						log.Printf("[PROCESSOR] %s: failed to publish shift decision: %v", projectTag, pubErr)
					}
				}
			}
		} else {
			log.Printf("[PROCESSOR] %s: embedding failed for %s: %v", projectTag, o.ID, embErr)
		}
	}

	if result.Signal == "noise" {
		now := time.Now()
		if err := p.db.SetClassification(o.ID, "noise", now); err != nil {
			return err
		}
		if err := p.db.SoftDelete(o.ID); err != nil {
			return err
		}
		p.forwardDebugSignal(projectTag, o, result)
		return nil
	}

	classification := ""
	if result.Classification != nil {
		classification = *result.Classification
	}
	if err := p.db.SetClassification(o.ID, classification, time.Now()); err != nil {
		return err
	}
	if p.events != nil {
		if pubErr := p.events.PublishJSON(bus.SubjectObservationClassified, map[string]string{
			"observation_id": o.ID, "project_tag": projectTag, "classification": classification,
		}); pubErr != nil {
			log.Printf("[PROCESSOR] %s: failed to publish classification event: %v", projectTag, pubErr)
		}
	}

	entities, err := p.intel.ExtractEntities(o.Content)
	if err != nil {
		p.forwardDebugSignal(projectTag, o, result)
		return err
	}

	survivors := p.applyWriteQualityGate(entities, o)

	nodes := make(map[string]*store.Node, len(survivors))
	for _, e := range survivors {
		n, err := p.graph.UpsertNode(projectTag, store.NodeType(e.Type), e.Name,
			map[string]any{"confidence": e.Confidence}, []string{o.ID})
		if err != nil {
			log.Printf("[PROCESSOR] %s: failed to upsert node %q: %v", projectTag, e.Name, err)
			continue
		}
		nodes[graph.NormalizeName(e.Name)] = n
	}

	if len(nodes) >= 2 {
		rels, err := p.intel.InferRelationships(o.Content, survivors)
		if err != nil {
			log.Printf("[PROCESSOR] %s: relationship inference failed for %s: %v", projectTag, o.ID, err)
		} else {
			for _, r := range rels {
				src, srcOK := nodes[graph.NormalizeName(r.Source)]
				dst, dstOK := nodes[graph.NormalizeName(r.Target)]
				if !srcOK || !dstOK {
					continue
				}
				if _, err := p.graph.InsertEdge(src.ID, dst.ID, store.EdgeType(r.Type), r.Confidence, nil); err != nil {
					log.Printf("[PROCESSOR] %s: failed to insert edge %s->%s: %v", projectTag, r.Source, r.Target, err)
				}
			}
		}
	}

	p.forwardDebugSignal(projectTag, o, result)
	return nil
}

var vaguePrefixes = []string{"the ", "this ", "some ", "tmp "}

var confidenceFloors = map[string]float64{
	"File":      0.95,
	"Reference": 0.85,
	"Project":   0.8,
	"Decision":  0.65,
	"Problem":   0.6,
	"Solution":  0.6,
}

const incidentalFilePenalty = 0.74
const maxFileEntitiesPerObservation = 5

// applyWriteQualityGate filters raw extracted entities per §4.4 step 4b:
// name-length bounds, vague-prefix rejection, per-type confidence floors
// (with the incidental-file-mention penalty for non-change observations),
// and a cap of 5 File entities per observation keeping the highest
// confidence.
func (p *Processor) applyWriteQualityGate(entities []intelligence.ExtractedEntity, o *store.Observation) []intelligence.ExtractedEntity {
	isChangeObservation := o.Source == "hook:Write" || o.Source == "hook:Edit"

	var survivors []intelligence.ExtractedEntity
	for _, e := range entities {
		name := strings.TrimSpace(e.Name)
		if len(name) < 3 || len(name) > 200 {
			continue
		}
		lower := strings.ToLower(name)
		vague := false
		for _, prefix := range vaguePrefixes {
			if strings.HasPrefix(lower, prefix) {
				vague = true
				break
			}
		}
		if vague {
			continue
		}

		confidence := e.Confidence
		if e.Type == "File" && !isChangeObservation {
			confidence *= incidentalFilePenalty
		}

		floor, ok := confidenceFloors[e.Type]
		if !ok || confidence < floor {
			continue
		}

		e.Name = name
		e.Confidence = confidence
		survivors = append(survivors, e)
	}

	return capFileEntities(survivors)
}

func capFileEntities(entities []intelligence.ExtractedEntity) []intelligence.ExtractedEntity {
	var files []intelligence.ExtractedEntity
	var rest []intelligence.ExtractedEntity
	for _, e := range entities {
		if e.Type == "File" {
			files = append(files, e)
		} else {
			rest = append(rest, e)
		}
	}
	if len(files) <= maxFileEntitiesPerObservation {
		return append(rest, files...)
	}

	for i := 1; i < len(files); i++ {
		for j := i; j > 0 && files[j].Confidence > files[j-1].Confidence; j-- {
			files[j], files[j-1] = files[j-1], files[j]
		}
	}
	return append(rest, files[:maxFileEntitiesPerObservation]...)
}

// forwardDebugSignal passes a classifier's debug_signal to C7 regardless of
// signal/noise verdict — build failures are noise for memory but debug
// relevant, so the two classifications are allowed to diverge.
func (p *Processor) forwardDebugSignal(projectTag string, o *store.Observation, result *intelligence.ClassifierResult) {
	if result.DebugSignal == nil || p.paths == nil {
		return
	}
	sig := &pathtracker.Signal{
		IsError:      result.DebugSignal.IsError,
		IsResolution: result.DebugSignal.IsResolution,
		WaypointHint: result.DebugSignal.WaypointHint,
		Confidence:   result.DebugSignal.Confidence,
		Content:      o.Content,
	}
	if err := p.paths.Process(projectTag, o.ID, sig); err != nil {
		log.Printf("[PROCESSOR] %s: path tracker update failed for %s: %v", projectTag, o.ID, err)
	} else if p.events != nil {
		current, curErr := p.paths.Current(projectTag)
		if curErr == nil && current != nil {
			if pubErr := p.events.PublishJSON(bus.SubjectPathTransition, current); pubErr != nil {
				log.Printf("[PROCESSOR] %s: failed to publish path transition: %v", projectTag, pubErr)
			}
		}
	}
}
