// Command laminarkd is the long-running daemon process: it owns the shared
// store handle and hosts the timers for C4 (classification), C6's session
// finalize sweep, C7's path-tracker singleton, and C8 (curation), plus an
// embedded event bus and a minimal health surface. Hook processes never talk
// to this process directly — they share only the database file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/NoobyNull/laminark/internal/bus"
	"github.com/NoobyNull/laminark/internal/config"
	"github.com/NoobyNull/laminark/internal/curation"
	"github.com/NoobyNull/laminark/internal/detector"
	"github.com/NoobyNull/laminark/internal/graph"
	"github.com/NoobyNull/laminark/internal/intelligence"
	"github.com/NoobyNull/laminark/internal/pathtracker"
	"github.com/NoobyNull/laminark/internal/processor"
	"github.com/NoobyNull/laminark/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/laminarkd.yaml", "path to daemon config")
	httpPort := flag.Int("http-port", 0, "override health/status HTTP port")
	flag.Parse()

	log.Println("===============================================")
	log.Println("  laminarkd - persistent memory subsystem")
	log.Println("===============================================")

	cfg, err := config.LoadDaemonConfig(*configPath)
	if err != nil {
		log.Printf("[MAIN] failed to load daemon config, using defaults: %v", err)
		cfg = config.DefaultDaemonConfig()
	}
	if *httpPort > 0 {
		cfg.Server.HTTPPort = *httpPort
	}

	userDataDir, err := config.UserDataDir()
	if err != nil {
		log.Fatalf("[MAIN] failed to resolve user data dir: %v", err)
	}
	if err := os.MkdirAll(userDataDir, 0o755); err != nil {
		log.Fatalf("[MAIN] failed to create user data dir: %v", err)
	}
	userCfg, err := config.LoadUserConfig(config.UserConfigPath(userDataDir))
	if err != nil {
		log.Printf("[MAIN] failed to load user config, using defaults: %v", err)
		userCfg = config.DefaultUserConfig()
	}

	if err := os.MkdirAll(cfg.Store.DataDir, 0o755); err != nil {
		log.Fatalf("[MAIN] failed to create store data dir: %v", err)
	}
	db, err := store.Open(filepath.Join(cfg.Store.DataDir, "db.sqlite"))
	if err != nil {
		// Corruption of the WAL is fail-fast on open, per the storage
		// layer's failure contract.
		log.Fatalf("[MAIN] failed to open store: %v", err)
	}
	defer db.Close()
	log.Printf("[MAIN] store opened at %s", cfg.Store.DataDir)

	g := graph.New(db)
	paths := pathtracker.New(db)
	shift := detector.New(db, userCfg.Detector.Alpha, userCfg.Detector.Sensitivity)

	llmURL := envOr("LAMINARK_LLM_URL", "http://localhost:1234/v1")
	llmModel := envOr("LAMINARK_LLM_MODEL", "qwen2.5-coder-7b-instruct")
	intel := intelligence.NewClient(func() (intelligence.LLMSession, error) {
		return intelligence.NewHTTPChatSession(llmURL, llmModel), nil
	}, 10*time.Second)
	defer intel.Close()

	var embedder intelligence.EmbeddingProvider
	if envOr("LAMINARK_EMBEDDING_DISABLE", "") == "" {
		embURL := envOr("LAMINARK_EMBEDDING_URL", "http://localhost:1234/v1")
		embModel := envOr("LAMINARK_EMBEDDING_MODEL", "qwen2.5-coder-7b-instruct")
		embedder = intelligence.NewHTTPEmbeddingProvider(embURL, embModel)
	}

	proc := processor.New(db, g, intel, paths,
		embedder, shift,
		time.Duration(userCfg.Processor.IntervalMs)*time.Millisecond,
		userCfg.Processor.BatchSize,
	)

	var eventBus *bus.Server
	var busClient *bus.Client
	if cfg.Server.NATSPort > 0 {
		eventBus, err = bus.StartEmbedded(cfg.Server.NATSPort, 5*time.Second)
		if err != nil {
			log.Printf("[MAIN] embedded event bus failed to start: %v", err)
		} else {
			log.Printf("[MAIN] embedded event bus listening on port %d", cfg.Server.NATSPort)
			busClient, err = bus.Dial(eventBus.URL())
			if err != nil {
				log.Printf("[MAIN] failed to dial embedded event bus: %v", err)
			} else {
				// Must happen before proc.Start(): the processor's ticker
				// goroutine reads this field with no synchronization of its own.
				proc.SetEventBus(busClient)
			}
		}
	}

	proc.Start()
	log.Printf("[MAIN] processor started: interval=%dms batch=%d", userCfg.Processor.IntervalMs, userCfg.Processor.BatchSize)

	curationAgent := curation.New(db, g, func(r curation.Report) {
		log.Printf("[CURATION] pass complete: merged=%d dedup=%d flagged=%d pruned=%d decayed=%d deleted=%d",
			r.ObservationsMerged, r.EntitiesDeduplicated, r.StalenessFlagsAdded, r.LowValuePruned, r.EdgesDecayed, r.EdgesDeleted)
		if busClient != nil {
			if err := busClient.PublishJSON(bus.SubjectCurationCompleted, r); err != nil {
				log.Printf("[CURATION] failed to publish completion event: %v", err)
			}
		}
	})
	curationStop := startCurationLoop(curationAgent, time.Duration(userCfg.Curation.IntervalMs)*time.Millisecond)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("/api/graph-health", func(w http.ResponseWriter, r *http.Request) {
		projectTag := r.URL.Query().Get("project")
		if projectTag == "" {
			http.Error(w, "project query parameter required", http.StatusBadRequest)
			return
		}
		health, err := g.GetGraphHealth(projectTag)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"totalNodes":%d,"totalEdges":%d,"averageDegree":%.2f,"duplicateCandidates":%d}`,
			health.TotalNodes, health.TotalEdges, health.AverageDegree, health.DuplicateCandidates)
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: mux,
	}
	go func() {
		log.Printf("[MAIN] health server starting on port %d", cfg.Server.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[MAIN] health server error: %v", err)
		}
	}()

	log.Println("===============================================")
	log.Println("  laminarkd ready")
	log.Println("===============================================")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[MAIN] shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	proc.Stop()
	close(curationStop)
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("[MAIN] health server shutdown error: %v", err)
	}
	if busClient != nil {
		busClient.Close()
	}
	if eventBus != nil {
		eventBus.Shutdown()
	}

	log.Println("[MAIN] laminarkd shutdown complete")
}

// startCurationLoop runs the C8 periodic pass on its own ticker, independent
// of the processor's. Returns a channel the caller closes to stop the loop.
func startCurationLoop(agent *curation.Agent, interval time.Duration) chan struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				agent.RunOnce()
			}
		}
	}()
	return stop
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
