package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zjrosen/playbook/internal/config"
	"github.com/zjrosen/playbook/internal/engine"
	"github.com/zjrosen/playbook/internal/infrastructure/records"
	"github.com/zjrosen/playbook/internal/infrastructure/sqlite"
	"github.com/zjrosen/playbook/internal/log"
	"github.com/zjrosen/playbook/internal/metrics"
	"github.com/zjrosen/playbook/internal/onboarding"
	"github.com/zjrosen/playbook/internal/playbook"
	"github.com/zjrosen/playbook/internal/pubsub"
	"github.com/zjrosen/playbook/internal/templates"
	"github.com/zjrosen/playbook/internal/tracing"
	"github.com/zjrosen/playbook/internal/verification"
)

// runtime holds the wired engine and everything it owns.
type runtime struct {
	db         *sqlite.DB
	catalog    *templates.Catalog
	cached     *templates.Cached
	records    *templates.RecordSource
	registry   *verification.Registry
	strict     bool
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer
	tracing    *tracing.Provider
	broker     *pubsub.Broker[engine.ProgressEvent]
	engine     *engine.Engine
	onboarding *onboarding.Service
}

// newRuntime opens the database, loads templates and builds the engine.
// A nil reg gets a fresh registry.
func newRuntime(ctx context.Context, c config.Config, reg *prometheus.Registry) (_ *runtime, err error) {
	if err := config.Validate(c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	rt := &runtime{gatherer: reg}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
		}
	}()

	rt.db, err = sqlite.NewDB(c.Database.Path)
	if err != nil {
		return nil, err
	}
	store := rt.db.RecordStore()

	rt.metrics, err = metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	userDir := c.Templates.UserDir
	if userDir == "" {
		userDir = templates.UserTemplatesDir()
	}
	rt.catalog, err = templates.NewCatalog(templates.CatalogFS(), userDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	var source playbook.TemplateStore = rt.catalog
	if c.Templates.Source == config.SourceRecords {
		rt.records = templates.NewRecordSource(store)
		seeded, err := rt.records.Seed(ctx, rt.catalog)
		if err != nil {
			return nil, fmt.Errorf("failed to seed template records: %w", err)
		}
		log.Info(log.CatTemplates, "Seeded template records", "count", seeded)

		rt.cached = templates.NewCached(rt.records, c.Templates.CacheTTL)
		if err := rt.metrics.RegisterCacheStats("templates", func() (uint64, uint64) {
			s := rt.cached.Stats()
			return s.Hits, s.Misses
		}); err != nil {
			return nil, fmt.Errorf("failed to register cache metrics: %w", err)
		}
		source = rt.cached
	}

	rt.registry = verification.NewDefaultRegistry(store)
	rt.strict = c.Verification.Strict
	manual := make([]playbook.StepType, 0, len(c.Verification.ManualOnly))
	for _, t := range c.Verification.ManualOnly {
		manual = append(manual, playbook.StepType(t))
	}
	rt.registry.MarkManualOnly(manual...)

	all, err := source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	if err := rt.registry.ValidateTemplates(all, c.Verification.Strict); err != nil {
		return nil, err
	}

	rt.tracing, err = tracing.NewProvider(c.Tracing, tracing.DefaultServiceName)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}

	rt.broker = pubsub.NewBroker[engine.ProgressEvent]()
	if err := rt.metrics.RegisterDroppedEvents(rt.broker.Dropped); err != nil {
		return nil, fmt.Errorf("failed to register event metrics: %w", err)
	}

	rt.engine, err = engine.New(engine.Config{
		Templates:   source,
		Progress:    records.NewProgressRepository(store),
		Responses:   records.NewStepResponseRepository(store),
		Verifier:    rt.registry,
		Broker:      rt.broker,
		Metrics:     rt.metrics,
		Tracer:      rt.tracing.Tracer(),
		Parallelism: c.Verification.Parallelism,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	rt.onboarding, err = onboarding.New(onboarding.Config{
		Engine:     rt.engine,
		TemplateID: c.Onboarding.TemplateID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create onboarding service: %w", err)
	}
	return rt, nil
}

// ReloadTemplates re-reads the user template directory and checks every step
// type against the verification registry. A rejected reload keeps the
// previous templates. With the records source, new and edited templates are
// written through and the cache is dropped.
func (rt *runtime) ReloadTemplates(ctx context.Context) error {
	err := rt.catalog.ReloadValidated(func(all []*playbook.Template) error {
		return rt.registry.ValidateTemplates(all, rt.strict)
	})
	if err != nil {
		return err
	}
	if rt.records == nil {
		return nil
	}
	if _, err := rt.records.Sync(ctx, rt.catalog); err != nil {
		return fmt.Errorf("failed to sync template records: %w", err)
	}
	return rt.cached.Invalidate(ctx)
}

// Close ends event streams, flushes traces and closes the database.
func (rt *runtime) Close(ctx context.Context) error {
	if rt.broker != nil {
		rt.broker.Close()
	}
	var errs []error
	if rt.tracing != nil {
		if err := rt.tracing.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down tracing: %w", err))
		}
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// withRuntime builds a runtime from the loaded config, runs fn and closes it.
func withRuntime(ctx context.Context, fn func(context.Context, *runtime) error) (err error) {
	rt, err := newRuntime(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(context.Background()); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(ctx, rt)
}
