package main

import (
	"github.com/fhirstore/zunder/internal/bundle"
	"github.com/fhirstore/zunder/internal/conformance"
	"github.com/fhirstore/zunder/internal/config"
	"github.com/fhirstore/zunder/internal/hooks"
	"github.com/fhirstore/zunder/internal/index"
	"github.com/fhirstore/zunder/internal/runtimeconfig"
	"github.com/fhirstore/zunder/internal/search"
	"github.com/fhirstore/zunder/internal/search/lookup"
	"github.com/fhirstore/zunder/internal/store"
	"github.com/fhirstore/zunder/pkg/logger"
)

// deps is every long-lived dependency a command needs, wired once the
// same way regardless of which subcommand assembles it (serve runs the
// HTTP surface and the worker together; worker and reindex only need
// the store/index half). Grounded on the teacher's cmd/api/main.go
// linear "repo -> service -> handler" construction, generalized into
// one function so serve/worker/reindex don't each re-derive it.
type deps struct {
	cfg         *config.Config
	db          *store.DB
	resources   *store.ResourceStore
	lookupCache *lookup.Cache
	engine      *search.Engine
	indexer     *index.Indexer
	dispatcher  *hooks.Dispatcher
	rtConfig    *runtimeconfig.Cache
	rtService   *runtimeconfig.Service
	processor   *bundle.Processor
	conform     conformance.FhirContext
}

func buildDeps() (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Database, cfg.Limits.DBMaxOpenConns, cfg.Limits.DBMaxIdleConns)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(); err != nil {
		return nil, err
	}

	resources := store.NewResourceStore(db)

	defStore := lookup.NewDBDefinitionStore(db.Conn)
	lookupCache := lookup.NewCache(defStore)

	engine := search.NewEngine(db.Conn, lookupCache)

	resolver := index.NewIndexingResolver(db.Conn, 1024)
	indexer := index.NewIndexer(lookupCache, resolver)

	dispatcher := hooks.RegisterDefault(lookupCache, db.Conn)

	rtConfig := runtimeconfig.NewCache(cfg)
	rtService := runtimeconfig.NewService(db.Conn, rtConfig)
	if err := rtService.LoadFromDB(); err != nil {
		logger.WithFields(logger.Fields{"error": err}).Warn("failed to load runtime config overrides, using static defaults")
	}

	processor := bundle.NewProcessor(resources, engine, dispatcher, rtConfig)

	provider := conformance.NewDBProvider(db.Conn)
	conform := conformance.NewFlexibleContext(provider)

	return &deps{
		cfg:         cfg,
		db:          db,
		resources:   resources,
		lookupCache: lookupCache,
		engine:      engine,
		indexer:     indexer,
		dispatcher:  dispatcher,
		rtConfig:    rtConfig,
		rtService:   rtService,
		processor:   processor,
		conform:     conform,
	}, nil
}
