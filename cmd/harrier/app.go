package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/harrier/internal/batch"
	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/catalog"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/vendor"
)

// app is the wired engine shared by serve and batch.
type app struct {
	cfg         *domain.Config
	repo        domain.Repository
	cache       domain.Cache
	bus         domain.EventBus
	catalog     *catalog.Catalog
	registry    *rules.Registry
	expressions *rules.ExpressionEngine
	processor   *batch.Processor

	closers []func() error
}

func newApp(cfg *domain.Config) (*app, error) {
	a := &app{cfg: cfg}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}
	a.repo = repo
	a.closers = append(a.closers, repo.Close)
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	a.cache = cacheImpl
	a.closers = append(a.closers, cacheImpl.Close)
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize event bus: %w", err)
	}
	a.bus = busImpl
	a.closers = append(a.closers, busImpl.Close)
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	client, err := vendor.New(cfg.Vendor, vendor.NewStaticToken(cfg.Vendor.Token))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize vendor client: %w", err)
	}

	a.expressions, err = rules.NewExpressionEngine()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize expression engine: %w", err)
	}
	a.registry = rules.DefaultRegistry(a.expressions)
	a.catalog = catalog.New(repo, cacheImpl, cfg.Engine.CatalogTTL)

	a.processor = batch.New(batch.Deps{
		Vendor:    client,
		Repo:      repo,
		Catalog:   a.catalog,
		Evaluator: rules.NewEvaluator(a.registry),
		Bus:       busImpl,
		Cache:     cacheImpl,
	}, cfg.Engine, cfg.Batch)

	slog.Info("decision engine initialized",
		"live", cfg.Batch.Live,
		"rule_keys", len(a.registry.Keys()),
		"lookback_days", cfg.Batch.LookbackDays,
	)
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
