package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orgchart/modules/org/domain/chart"
)

const activeChartCacheName = "active_chart"

// ActiveChartCache holds the active chart per department. Misses and
// backend failures fall through to storage.
type ActiveChartCache interface {
	Get(ctx context.Context, department string) (*chart.Chart, bool, error)
	Set(ctx context.Context, c *chart.Chart) error
	Invalidate(ctx context.Context, departments ...string) error
}

func cachedActive(ctx context.Context, cache ActiveChartCache, department string) *chart.Chart {
	if cache == nil {
		return nil
	}
	c, ok, err := cache.Get(ctx, department)
	if err != nil {
		logWithFields(ctx, logrus.WarnLevel, "org cache read failed", logrus.Fields{"department": department, "error": err.Error()})
		return nil
	}
	recordCacheRequest(activeChartCacheName, ok)
	if !ok {
		return nil
	}
	return c
}

func storeActive(ctx context.Context, cache ActiveChartCache, c *chart.Chart) {
	if cache == nil || c == nil {
		return
	}
	if err := cache.Set(ctx, c); err != nil {
		logWithFields(ctx, logrus.WarnLevel, "org cache write failed", logrus.Fields{"department": c.Department, "error": err.Error()})
	}
}

func invalidateActive(ctx context.Context, cache ActiveChartCache, reason string, departments ...string) {
	if cache == nil || len(departments) == 0 {
		return
	}
	recordCacheInvalidate(reason)
	if err := cache.Invalidate(ctx, departments...); err != nil {
		logWithFields(ctx, logrus.WarnLevel, "org cache invalidation failed", logrus.Fields{"departments": departments, "error": err.Error()})
	}
}

// fillActive caches c unless an invalidation ran after gen was read. Only
// charts that are still active when read are cached.
func (s *ChartService) fillActive(ctx context.Context, gen uint64, c *chart.Chart) {
	if s.Cache == nil || c == nil || c.Status != chart.StatusActive {
		return
	}
	if s.cacheGen.Load() != gen {
		return
	}
	storeActive(ctx, s.Cache, c)
	// an invalidation that landed between the check and the write bumped
	// the generation first, so this catches it
	if s.cacheGen.Load() != gen {
		if err := s.Cache.Invalidate(ctx, c.Department); err != nil {
			logWithFields(ctx, logrus.WarnLevel, "org cache invalidation failed", logrus.Fields{"departments": []string{c.Department}, "error": err.Error()})
		}
	}
}

// invalidateActive must run after the write committed.
func (s *ChartService) invalidateActive(ctx context.Context, reason string, departments ...string) {
	if s.Cache == nil || len(departments) == 0 {
		return
	}
	s.cacheGen.Add(1)
	invalidateActive(ctx, s.Cache, reason, departments...)
}
