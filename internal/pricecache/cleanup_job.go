package pricecache

import (
	"github.com/rs/zerolog"
)

// CleanupJob sweeps expired entries out of the cache. Get already treats
// expired entries as misses; this job bounds memory over long uptimes.
type CleanupJob struct {
	cache *Cache
	log   zerolog.Logger
}

// NewCleanupJob creates a cleanup job for the given cache.
func NewCleanupJob(cache *Cache, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		cache: cache,
		log:   log.With().Str("job", "price_cache_cleanup").Logger(),
	}
}

// Run removes all expired entries.
func (j *CleanupJob) Run() error {
	removed := j.cache.SweepExpired()
	if removed > 0 {
		j.log.Info().
			Int("removed", removed).
			Int("remaining", j.cache.Len()).
			Msg("Swept expired price cache entries")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "price_cache_cleanup"
}
