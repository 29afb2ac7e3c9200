// Package catalog serves rule definitions and bonus policies to the engine
// through a short-lived cache, so operator edits take effect within one TTL.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
)

const (
	namespace   = "catalog"
	keyRules    = "rules"
	keyPolicies = "policies"
)

// Source is the persistent store behind the catalog.
type Source interface {
	ListRuleDefinitions(ctx context.Context, enabledOnly bool) ([]*domain.RuleDefinition, error)
	ListBonusPolicies(ctx context.Context, activeOnly bool) ([]*domain.BonusPolicy, error)
}

// Catalog loads enabled rules and active policies. Cache failures degrade to
// direct reads; they never fail an evaluation.
type Catalog struct {
	src   Source
	cache domain.Cache
	ttl   time.Duration
	group singleflight.Group
}

// New creates a catalog. A nil cache disables caching; a non-positive ttl
// falls back to domain.DefaultCatalogTTL.
func New(src Source, c domain.Cache, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = domain.DefaultCatalogTTL
	}
	return &Catalog{src: src, cache: c, ttl: ttl}
}

// Rules returns the enabled rule definitions.
func (c *Catalog) Rules(ctx context.Context) ([]*domain.RuleDefinition, error) {
	return load(ctx, c, keyRules, func(ctx context.Context) ([]*domain.RuleDefinition, error) {
		return c.src.ListRuleDefinitions(ctx, true)
	})
}

// Policies returns the active bonus policies.
func (c *Catalog) Policies(ctx context.Context) ([]*domain.BonusPolicy, error) {
	return load(ctx, c, keyPolicies, func(ctx context.Context) ([]*domain.BonusPolicy, error) {
		return c.src.ListBonusPolicies(ctx, true)
	})
}

// Invalidate drops both cached lists. Called after every CRUD change.
func (c *Catalog) Invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	for _, key := range []string{keyRules, keyPolicies} {
		if err := c.cache.Delete(ctx, namespace, key); err != nil {
			slog.Warn("catalog invalidation failed",
				"key", key,
				"error", err,
			)
		}
	}
}

func load[T any](ctx context.Context, c *Catalog, key string, read func(context.Context) ([]T, error)) ([]T, error) {
	if c.cache != nil {
		items, ok, err := cache.GetJSON[[]T](ctx, c.cache, namespace, key)
		if err != nil {
			slog.Warn("catalog cache read failed",
				"key", key,
				"error", err,
			)
		}
		if ok {
			return items, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		items, err := read(ctx)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			if err := cache.SetJSON(ctx, c.cache, namespace, key, items, c.ttl); err != nil {
				slog.Warn("catalog cache write failed",
					"key", key,
					"error", err,
				)
			}
		}
		return items, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return v.([]T), nil
}
