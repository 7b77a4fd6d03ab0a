package commands

import (
	"database/sql"
	"fmt"
	"time"

	"inkwell-pipeline/internal/db"
	"inkwell-pipeline/internal/geocode"
	"inkwell-pipeline/internal/load"
	loaddb "inkwell-pipeline/internal/load/db"
	"inkwell-pipeline/internal/pipeline"
	"inkwell-pipeline/internal/source"
	"inkwell-pipeline/internal/source/booksite"
	"inkwell-pipeline/internal/source/quotesite"
	"inkwell-pipeline/internal/source/storefile"
	"inkwell-pipeline/internal/staging"
	"inkwell-pipeline/internal/transform"
	"inkwell-pipeline/lib/configutil"
	"inkwell-pipeline/lib/sqliteutil"
)

// runtime bundles everything a command needs once the config is read
// and both databases are open.
type runtime struct {
	cfg          pipeline.Config
	pipelineDB   *sql.DB
	warehouseDB  *sql.DB
	staging      staging.Store
	state        pipeline.StateStore
	orchestrator *pipeline.Orchestrator
}

func (r *runtime) Close() {
	r.pipelineDB.Close()
	r.warehouseDB.Close()
}

func setup() (*runtime, error) {
	cfg, err := configutil.ReadRequired[pipeline.Config](*configPath)
	if err != nil {
		return nil, err
	}

	pipelineDB, err := sqliteutil.OpenAndMigrateDB(db.Schema, cfg.PipelineDB)
	if err != nil {
		return nil, fmt.Errorf("open pipeline db: %w", err)
	}
	warehouseDB, err := sqliteutil.OpenAndMigrateDB(loaddb.Schema, cfg.WarehouseDB)
	if err != nil {
		pipelineDB.Close()
		return nil, fmt.Errorf("open warehouse db: %w", err)
	}

	var adapters []source.Adapter
	if cfg.Quotes.BaseURL != "" {
		adapters = append(adapters, quotesite.New(quotesite.Options{
			BaseURL:    cfg.Quotes.BaseURL,
			Politeness: time.Duration(cfg.Quotes.PolitenessMs) * time.Millisecond,
			MaxRetries: cfg.Quotes.MaxRetries,
			MaxPages:   cfg.Quotes.MaxPages,
		}))
	}
	if cfg.Books.BaseURL != "" {
		adapters = append(adapters, booksite.New(booksite.Options{
			BaseURL:    cfg.Books.BaseURL,
			Politeness: time.Duration(cfg.Books.PolitenessMs) * time.Millisecond,
			MaxRetries: cfg.Books.MaxRetries,
			MaxPages:   cfg.Books.MaxPages,
			StartPath:  cfg.Books.StartPath,
		}))
	}
	if cfg.BookstoreFile != "" {
		adapters = append(adapters, storefile.New(cfg.BookstoreFile))
	}

	var geocoder geocode.Geocoder
	if cfg.Geocoder.BaseURL != "" {
		geocoder = geocode.NewClient(geocode.Options{
			BaseURL:           cfg.Geocoder.BaseURL,
			RequestsPerSecond: cfg.Geocoder.RequestsPerSecond,
			MaxRetries:        cfg.Geocoder.MaxRetries,
		})
	}

	engine, err := transform.NewEngine(cfg.Transform, geocoder)
	if err != nil {
		pipelineDB.Close()
		warehouseDB.Close()
		return nil, err
	}

	store := staging.NewStore(pipelineDB)
	state := pipeline.NewStateStore(pipelineDB)
	orchestrator := pipeline.New(pipeline.Options{
		Adapters:     adapters,
		Staging:      store,
		Rejects:      staging.NewRejectSink(pipelineDB),
		State:        state,
		Engine:       engine,
		Loader:       load.NewLoader(warehouseDB),
		StageRetries: cfg.StageRetries,
	})

	return &runtime{
		cfg:          cfg,
		pipelineDB:   pipelineDB,
		warehouseDB:  warehouseDB,
		staging:      store,
		state:        state,
		orchestrator: orchestrator,
	}, nil
}

// exitCode maps a run outcome onto the documented process exit codes.
func exitCode(outcome pipeline.Outcome) int {
	switch outcome {
	case pipeline.OutcomeOK:
		return 0
	case pipeline.OutcomeNothingToDo:
		return 3
	case pipeline.OutcomePartialFailure:
		return 2
	default:
		return 1
	}
}
