package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/reposeek/reposeek/internal/config"
	"github.com/reposeek/reposeek/internal/embed"
	"github.com/reposeek/reposeek/internal/forge"
	"github.com/reposeek/reposeek/internal/git"
	"github.com/reposeek/reposeek/internal/graphstore"
	"github.com/reposeek/reposeek/internal/indexer"
	"github.com/reposeek/reposeek/internal/metadata"
	"github.com/reposeek/reposeek/internal/vectorstore"
)

// Exit codes shared by every command.
const (
	exitOK        = 0
	exitPreflight = 1
	exitPartial   = 2
	exitFatal     = 3
)

// app bundles the wired service components for command handlers.
type app struct {
	cfg          *config.Config
	dataDir      string
	meta         *metadata.Store
	orchestrator *indexer.Orchestrator
	updates      *indexer.UpdatePipeline
	detector     *indexer.Detector
	provider     embed.Provider
	logger       *slog.Logger
}

// newApp loads configuration and wires the full component stack.
func newApp() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	meta := metadata.NewStore(filepath.Join(dataDir, "repositories.json"))

	vectors, err := vectorstore.New(filepath.Join(dataDir, "vectors"))
	if err != nil {
		return nil, err
	}

	var provider embed.Provider
	switch cfg.Embedding.Provider {
	case "mock":
		provider = embed.NewMockProvider()
	default:
		provider = embed.NewHTTPProvider(cfg.Embedding.Endpoint, cfg.Embedding.Dimensions)
	}

	var graph indexer.GraphService
	if cfg.Graph.Enabled {
		graph = graphstore.New(logger)
	}

	gitOps := git.NewOperations()
	filter, err := indexer.NewFileFilter()
	if err != nil {
		return nil, err
	}

	cloneRoot := filepath.Join(dataDir, "repos")
	if err := os.MkdirAll(cloneRoot, 0o755); err != nil {
		return nil, err
	}

	ingestion := indexer.NewIngestionPipeline(meta, vectors, provider, gitOps, graph, filter, cfg, cloneRoot, logger)
	updates := indexer.NewUpdatePipeline(vectors, provider, graph, filter, cfg, logger)

	forgeClient := forge.NewHTTPClient(cfg.Forge.APIBaseURL, cfg.Forge.Token, time.Duration(cfg.Forge.TimeoutSec)*time.Second, logger)
	coordinator := indexer.NewCoordinator(meta, forgeClient, updates, gitOps, cfg, logger)
	orchestrator := indexer.NewOrchestrator(ingestion, coordinator, meta, vectors, logger)

	return &app{
		cfg:          cfg,
		dataDir:      dataDir,
		meta:         meta,
		orchestrator: orchestrator,
		updates:      updates,
		detector:     indexer.NewDetector(meta),
		provider:     provider,
		logger:       logger,
	}, nil
}
