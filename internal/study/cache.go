package study

import (
	"context"
	"fmt"
	"time"

	"github.com/p-n-ai/study-pilot/internal/platform/cache"
	"github.com/p-n-ai/study-pilot/internal/roadmap"
)

// RoadmapCache keeps each learner's latest roadmap per course in Redis.
// Keys carry the catalog fingerprint so a catalog change invalidates them.
type RoadmapCache struct {
	cache   *cache.Cache
	ttl     time.Duration
	version string
}

// NewRoadmapCache creates a cache. A zero ttl keeps entries until evicted.
func NewRoadmapCache(c *cache.Cache, ttl time.Duration, catalogVersion string) *RoadmapCache {
	return &RoadmapCache{cache: c, ttl: ttl, version: catalogVersion}
}

func (c *RoadmapCache) key(learnerID, courseID string) string {
	return cache.Key("roadmap", c.version, learnerID, courseID)
}

// Get returns the cached roadmap. The boolean is false on a miss.
func (c *RoadmapCache) Get(ctx context.Context, learnerID, courseID string) (roadmap.Roadmap, bool, error) {
	var plan roadmap.Roadmap
	ok, err := c.cache.GetJSON(ctx, c.key(learnerID, courseID), &plan)
	if err != nil {
		return roadmap.Roadmap{}, false, fmt.Errorf("cached roadmap: %w", err)
	}
	return plan, ok, nil
}

// Set stores plan under its learner and course.
func (c *RoadmapCache) Set(ctx context.Context, plan roadmap.Roadmap) error {
	if err := c.cache.SetJSON(ctx, c.key(plan.LearnerID, plan.CourseID), plan, c.ttl); err != nil {
		return fmt.Errorf("cache roadmap: %w", err)
	}
	return nil
}
