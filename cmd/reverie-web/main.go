package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/scrypster/reverie/internal/backup"
	"github.com/scrypster/reverie/internal/config"
	"github.com/scrypster/reverie/internal/consolidation"
	"github.com/scrypster/reverie/internal/ingest"
	"github.com/scrypster/reverie/internal/llm"
	"github.com/scrypster/reverie/internal/memory"
	"github.com/scrypster/reverie/internal/reflection"
	"github.com/scrypster/reverie/internal/server"
	"github.com/scrypster/reverie/internal/storage"
	"github.com/scrypster/reverie/internal/storage/jsonl"
	"github.com/scrypster/reverie/internal/storage/postgres"
	"github.com/scrypster/reverie/internal/storage/sqlite"
	"github.com/scrypster/reverie/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file overlaying the environment")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *configPath != "" {
		if err := cfg.ApplyFile(*configPath); err != nil {
			log.Fatalf("Failed to apply config file: %v", err)
		}
		log.Printf("Using config file: %s", *configPath)
	}

	// Initialize storage
	memLog, expLog, closer, err := openStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	store := memory.NewStore(memLog, expLog)
	if err := store.Load(); err != nil {
		log.Fatalf("Failed to load persisted state: %v", err)
	}
	stats := store.Stats()
	log.Printf("Loaded %d memories and %d experiences (%s)", stats.TotalMemories, stats.TotalExperiences, cfg.Storage.StorageEngine)

	// Initialize the generative backend
	client := llm.NewOllamaClient(llm.OllamaConfig{
		BaseURL:       cfg.LLM.OllamaURL,
		Model:         cfg.LLM.OllamaModel,
		Temperature:   cfg.LLM.Temperature,
		TopP:          cfg.LLM.TopP,
		RepeatPenalty: cfg.LLM.RepeatPenalty,
		Timeout:       cfg.LLM.Timeout,
	})
	reflector := reflection.NewEngine(client, client)
	consolidator := consolidation.NewEngineWithLLM(client)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tail the perception log when configured
	if cfg.Ingest.WatchPath != "" {
		watcher := ingest.NewWatcher(cfg.Ingest.WatchPath, func(m types.Memory) {
			store.AddMemory(&m)
		})
		if err := watcher.Start(); err != nil {
			log.Fatalf("Failed to watch %s: %v", cfg.Ingest.WatchPath, err)
		}
		defer watcher.Stop()
		log.Printf("Watching %s for new memories", cfg.Ingest.WatchPath)
	}

	// Periodic store snapshots
	if cfg.Snapshot.Enabled {
		snapshotter := backup.NewSnapshotter(store, cfg.Snapshot.Interval)
		go func() {
			if err := snapshotter.Start(ctx); err != nil && err != context.Canceled {
				log.Printf("Snapshotter error: %v", err)
			}
		}()
	}

	// Start server
	addr, _ := server.Start(ctx, cfg, store, reflector, consolidator)
	log.Printf("Reverie API running at http://%s", addr)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// openStorage builds the persistence layer selected by the config.
// The returned closer is nil for the jsonl engine.
func openStorage(cfg *config.Config) (storage.MemoryLog, storage.ExperienceLog, io.Closer, error) {
	switch cfg.Storage.StorageEngine {
	case "jsonl":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0755); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		memLog, err := jsonl.NewMemoryLog(filepath.Join(cfg.Storage.DataPath, "memory.jsonl"))
		if err != nil {
			return nil, nil, nil, err
		}
		expLog, err := jsonl.NewExperienceLog(filepath.Join(cfg.Storage.DataPath, "experiences.jsonl"))
		if err != nil {
			return nil, nil, nil, err
		}
		return memLog, expLog, nil, nil

	case "sqlite":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0755); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		db, err := sqlite.Open(filepath.Join(cfg.Storage.DataPath, "reverie.db"))
		if err != nil {
			return nil, nil, nil, err
		}
		return db.MemoryLog(), db.ExperienceLog(), db, nil

	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return nil, nil, nil, fmt.Errorf("postgres engine requires REVERIE_POSTGRES_DSN")
		}
		db, err := postgres.Open(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return db.MemoryLog(), db.ExperienceLog(), db, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.StorageEngine)
	}
}
