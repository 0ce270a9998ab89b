// Package server provides the public entry point for initializing the
// decision engine server.
//
// This package exists in pkg/ (not internal/) so embedding deployments can
// import it and compose the full server with their own middleware:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ngx-sales/decision-engine/internal/accuracy"
	"github.com/ngx-sales/decision-engine/internal/api"
	"github.com/ngx-sales/decision-engine/internal/api/handlers"
	"github.com/ngx-sales/decision-engine/internal/config"
	"github.com/ngx-sales/decision-engine/internal/decision"
	"github.com/ngx-sales/decision-engine/internal/knowledge"
	"github.com/ngx-sales/decision-engine/internal/objective"
	"github.com/ngx-sales/decision-engine/internal/pathreview"
	"github.com/ngx-sales/decision-engine/internal/predict"
	"github.com/ngx-sales/decision-engine/internal/retention"
	"github.com/ngx-sales/decision-engine/internal/signals"
	"github.com/ngx-sales/decision-engine/internal/store"
	"github.com/ngx-sales/decision-engine/internal/telemetry"
	"github.com/ngx-sales/decision-engine/internal/training"
	"github.com/ngx-sales/decision-engine/pkg/models"
)

// Server holds the initialized decision engine.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the data store (in-memory or PostgreSQL per config).
	Store store.Store

	// Scheduler owns the background training jobs; Close on shutdown.
	Scheduler *training.Scheduler

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error

	// stopJanitor cancels the retention janitor; nil when disabled.
	stopJanitor context.CancelFunc
}

// Close stops the background components in dependency order.
func (s *Server) Close() {
	if s.stopJanitor != nil {
		s.stopJanitor()
	}
	s.Scheduler.Close()
	s.Store.Close()
}

// New initializes all components from environment configuration and returns
// a ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the decision engine with an explicit
// configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	dataStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	seedDefaultModels(ctx, dataStore)

	kb := knowledge.Default()
	extractor := signals.NewExtractor(signals.NewLexiconProvider(), signals.DefaultRecentWindow)
	objection := predict.NewObjectionPredictor(kb, predict.DefaultInclusionThreshold)
	needs := predict.NewNeedsPredictor(kb, predict.DefaultInclusionThreshold)
	conversion := predict.NewConversionPredictor()

	objectives := objective.NewManager(objective.Config{
		K1:             cfg.Engine.K1,
		K2:             cfg.Engine.K2,
		K3:             cfg.Engine.K3,
		Floor:          cfg.Engine.WeightFloor,
		AdaptationStep: cfg.Engine.AdaptationStep,
	})
	adaptation := objective.NewController(objectives)

	builder, err := decision.NewBuilder(kb, cfg.Engine.ExplorationEpsilon)
	if err != nil {
		dataStore.Close()
		return nil, fmt.Errorf("build decision templates: %w", err)
	}
	paths := pathreview.NewEvaluator(extractor, objection, needs, conversion)

	scheduler := training.NewScheduler(dataStore, training.Config{
		RetrainAfter:      cfg.Engine.RetrainAfter,
		FeedbackThreshold: cfg.Engine.FeedbackThreshold,
	})

	tracker, err := accuracy.NewTracker(ctx, dataStore)
	if err != nil {
		dataStore.Close()
		return nil, fmt.Errorf("init accuracy tracker: %w", err)
	}

	h := handlers.New(handlers.Config{
		Store:          dataStore,
		Extractor:      extractor,
		Objection:      objection,
		Needs:          needs,
		Conversion:     conversion,
		Objectives:     objectives,
		Adaptation:     adaptation,
		Decisions:      builder,
		Paths:          paths,
		Scheduler:      scheduler,
		Tracker:        tracker,
		PredictTimeout: cfg.Engine.PredictTimeout,
	})
	router := api.NewRouter(cfg, h)

	srv := &Server{
		Handler:      router,
		Store:        dataStore,
		Scheduler:    scheduler,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}

	if cfg.Retention.Enabled {
		var archiver *retention.Archiver
		if cfg.Retention.ArchiveDir != "" {
			archiver = retention.NewArchiver(cfg.Retention.ArchiveDir, cfg.Retention.Compress)
			if err := archiver.HealthCheck(); err != nil {
				log.Warn().Err(err).Msg("Archive dir not writable, purging without archive")
				archiver = nil
			}
		}
		janitor := retention.NewJanitor(dataStore, retention.Config{
			Interval:      cfg.Retention.Interval,
			PredictionTTL: cfg.Retention.PredictionTTL,
			FeedbackTTL:   cfg.Retention.FeedbackTTL,
		}, archiver)
		janitorCtx, cancel := context.WithCancel(context.Background())
		srv.stopJanitor = cancel
		go janitor.Start(janitorCtx)
	}

	return srv, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		log.Info().Msg("✅ PostgreSQL store initialized")
		return pg, nil
	}
	mem := store.NewMemoryStore()
	log.Info().Msg("✅ In-memory store initialized")
	return mem, nil
}

// seedDefaultModels registers the three prediction models on first start so
// the training and analytics endpoints have records to work against.
func seedDefaultModels(ctx context.Context, s store.Store) {
	seeds := []models.ModelRecord{
		{Name: handlers.ModelObjection, Type: models.PredictionObjection},
		{Name: handlers.ModelNeeds, Type: models.PredictionNeed},
		{Name: handlers.ModelConversion, Type: models.PredictionConversion},
	}
	for _, seed := range seeds {
		if _, err := s.GetModel(ctx, seed.Name); err == nil {
			continue
		}
		seed.Version = 1
		seed.Status = models.ModelActive
		seed.UpdatedAt = time.Now().UTC()
		if err := s.PutModel(ctx, &seed); err != nil {
			log.Warn().Err(err).Str("model", seed.Name).Msg("Failed to seed model record")
			continue
		}
		log.Info().Str("model", seed.Name).Msg("✅ Model record seeded")
	}
}
