// Package syncer drives the seasonal catalog synchronization run. It composes
// the page cache, rate limiter, retry executor and storage writer into an
// explicit per-page state machine.
package syncer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kazewatari/anisync/internal/domain"
	"github.com/kazewatari/anisync/pkg/pagecache"
	"github.com/kazewatari/anisync/pkg/ratelimit"
	"github.com/kazewatari/anisync/pkg/retry"
)

// State enumerates the per-page positions of the sync loop. Keeping them
// explicit keeps the completion and failure paths auditable.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateThrottled
	StateFetched
	StateMerging
	StateCompleted
	StateFailed
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateThrottled:
		return "throttled"
	case StateFetched:
		return "fetched"
	case StateMerging:
		return "merging"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Fetcher is the upstream catalog contract the orchestrator depends on.
type Fetcher interface {
	// FetchPage retrieves one raw page. Errors carrying an HTTP status
	// implement retry.StatusCoder for classification.
	FetchPage(ctx context.Context, season domain.Season, year, page, pageSize int) ([]byte, error)

	// DecodePage parses a raw page payload.
	DecodePage(raw []byte) (*domain.Page, error)
}

// Writer is the storage contract. Record failures are counted inside the
// result, not returned as errors.
type Writer interface {
	UpsertBatch(ctx context.Context, records []domain.Anime) domain.BatchResult
}

// Params select the catalog slice for one run.
type Params struct {
	Season       domain.Season
	Year         int
	ForceRefresh bool
}

// FetchStats counts page-level cache behavior for one run.
type FetchStats struct {
	TotalPages  int `json:"total_pages"`
	CacheHits   int `json:"cache_hits"`
	CacheMisses int `json:"cache_misses"`
}

// DBStats counts storage outcomes for one run.
type DBStats struct {
	AnimeUpserted     int `json:"anime_upserted"`
	AnimeFailed       int `json:"anime_failed"`
	GenresCreated     int `json:"genres_created"`
	GenreLinksCreated int `json:"genre_links_created"`
}

// Run is the aggregated result of one orchestrator invocation. It is mutated
// only by the orchestrator during the run and finalized exactly once. Partial
// stats on a failed run are valid, not an error condition.
type Run struct {
	Season       domain.Season `json:"season"`
	Year         int           `json:"year"`
	ForceRefresh bool          `json:"force_refresh"`
	StartedAt    time.Time     `json:"started_at"`
	FetchStats   FetchStats    `json:"fetch_stats"`
	DBStats      DBStats       `json:"db_stats"`
	Duration     time.Duration `json:"-"`
	DurationMS   int64         `json:"duration_ms"`
	Err          error         `json:"-"`
}

// Succeeded reports whether the run completed without a fatal error.
func (r *Run) Succeeded() bool {
	return r.Err == nil
}

// Config holds the orchestrator configuration.
type Config struct {
	// PageSize requested from the upstream per page.
	PageSize int

	// CacheTTL applied to pages written to the cache.
	CacheTTL time.Duration

	// MinDelay between consecutive upstream dispatches.
	MinDelay time.Duration

	// MaxQueueSize bounds the limiter queue. 0 = unbounded.
	MaxQueueSize int

	// Retry tunes the per-page retry executor. Zero values use the
	// retry package defaults.
	Retry retry.Options

	// Limiter optionally shares one limiter across orchestrators that
	// draw on the same upstream budget. When nil the orchestrator owns
	// a private limiter, which is the safe default.
	Limiter *ratelimit.Limiter
}

// DefaultConfig returns safe defaults for the public catalog API.
func DefaultConfig() Config {
	return Config{
		PageSize: 20,
		CacheTTL: 30 * time.Minute,
		MinDelay: 1 * time.Second,
	}
}

// Orchestrator runs seasonal sync runs. Each instance owns its limiter and
// retry options; the page cache may be shared across instances.
type Orchestrator struct {
	fetcher Fetcher
	writer  Writer
	cache   pagecache.Cache
	limiter *ratelimit.Limiter
	cfg     Config
	logger  zerolog.Logger
}

// New creates an orchestrator.
func New(fetcher Fetcher, writer Writer, cache pagecache.Cache, cfg Config) *Orchestrator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Minute
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = 1 * time.Second
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Config{
			MinDelay:     cfg.MinDelay,
			MaxQueueSize: cfg.MaxQueueSize,
			Name:         "catalog",
		})
	}

	return &Orchestrator{
		fetcher: fetcher,
		writer:  writer,
		cache:   cache,
		limiter: limiter,
		cfg:     cfg,
		logger:  log.With().Str("component", "syncer").Logger(),
	}
}

// LimiterStats exposes the limiter snapshot for observability endpoints.
func (o *Orchestrator) LimiterStats() ratelimit.Stats {
	return o.limiter.Stats()
}

// CleanupCache purges expired cache entries, independent of any run.
func (o *Orchestrator) CleanupCache(ctx context.Context) int {
	return o.cache.Cleanup(ctx)
}

// Run executes one sync for the given season and year. It always returns a
// finalized Run; on failure the error is attached and the statistics
// accumulated so far are preserved.
func (o *Orchestrator) Run(ctx context.Context, params Params) *Run {
	run := &Run{
		Season:       params.Season,
		Year:         params.Year,
		ForceRefresh: params.ForceRefresh,
		StartedAt:    time.Now(),
	}

	logger := o.logger.With().
		Str("season", string(params.Season)).
		Int("year", params.Year).
		Bool("force_refresh", params.ForceRefresh).
		Logger()
	logger.Info().Msg("Sync run started")

	page := 1
	state := StateFetching
	var raw []byte

	for {
		logger.Debug().Int("page", page).Stringer("state", state).Msg("State transition")

		switch state {
		case StateFetching:
			raw = nil
			if !params.ForceRefresh {
				if cached, ok := o.cache.Get(ctx, o.pageKey(params, page)); ok {
					// A corrupt cached payload falls through to a refetch.
					if _, err := o.fetcher.DecodePage(cached); err == nil {
						run.FetchStats.CacheHits++
						raw = cached
						state = StateMerging
						continue
					}
					logger.Warn().Int("page", page).Msg("Discarding undecodable cached page")
				}
			}
			state = StateThrottled

		case StateThrottled:
			if err := o.limiter.WaitForSlot(ctx); err != nil {
				run.Err = err
				state = StateFailed
				continue
			}
			state = StateFetched

		case StateFetched:
			fetched, err := o.fetchPage(ctx, params, page, logger)
			if err != nil {
				run.Err = err
				state = StateFailed
				continue
			}
			run.FetchStats.CacheMisses++
			o.cache.Put(ctx, o.pageKey(params, page), fetched, o.cfg.CacheTTL)
			raw = fetched
			state = StateMerging

		case StateMerging:
			decoded, err := o.fetcher.DecodePage(raw)
			if err != nil {
				run.Err = err
				state = StateFailed
				continue
			}

			// Records carry the season they were queried for; the
			// upstream payload only has it as a filter.
			for i := range decoded.Records {
				decoded.Records[i].Season = params.Season
				decoded.Records[i].Year = params.Year
			}

			result := o.writer.UpsertBatch(ctx, decoded.Records)
			run.DBStats.AnimeUpserted += result.Upserted
			run.DBStats.AnimeFailed += result.Failed
			run.DBStats.GenresCreated += result.GenresCreated
			run.DBStats.GenreLinksCreated += result.GenreLinksCreated
			run.FetchStats.TotalPages++
			pagesTotal.Inc()

			if decoded.HasNext {
				page++
				state = StateFetching
				continue
			}
			state = StateCompleted

		case StateCompleted:
			o.finalize(run, logger)
			return run

		case StateFailed:
			o.finalize(run, logger)
			return run
		}
	}
}

// fetchPage performs one upstream fetch wrapped in the retry executor.
func (o *Orchestrator) fetchPage(ctx context.Context, params Params, page int, logger zerolog.Logger) ([]byte, error) {
	var raw []byte

	opts := o.cfg.Retry
	userHook := opts.OnRetry
	opts.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn().
			Int("page", page).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Err(err).
			Msg("Page fetch retrying")
		if userHook != nil {
			userHook(attempt, delay, err)
		}
	}

	err := retry.Do(ctx, func(ctx context.Context) error {
		var fetchErr error
		raw, fetchErr = o.fetcher.FetchPage(ctx, params.Season, params.Year, page, o.cfg.PageSize)
		return fetchErr
	}, opts)
	if err != nil {
		return nil, err
	}

	return raw, nil
}

func (o *Orchestrator) pageKey(params Params, page int) pagecache.Key {
	return pagecache.Key{
		Season:   string(params.Season),
		Year:     params.Year,
		Page:     page,
		PageSize: o.cfg.PageSize,
	}
}

// finalize stamps the duration and records run metrics. Called exactly once
// per run.
func (o *Orchestrator) finalize(run *Run, logger zerolog.Logger) {
	run.Duration = time.Since(run.StartedAt)
	run.DurationMS = run.Duration.Milliseconds()
	runDuration.Observe(run.Duration.Seconds())

	if run.Succeeded() {
		runsTotal.WithLabelValues("success").Inc()
		logger.Info().
			Int("total_pages", run.FetchStats.TotalPages).
			Int("cache_hits", run.FetchStats.CacheHits).
			Int("cache_misses", run.FetchStats.CacheMisses).
			Int("anime_upserted", run.DBStats.AnimeUpserted).
			Int("anime_failed", run.DBStats.AnimeFailed).
			Dur("duration", run.Duration).
			Msg("Sync run completed")
		return
	}

	runsTotal.WithLabelValues("failure").Inc()
	logger.Error().
		Err(run.Err).
		Int("total_pages", run.FetchStats.TotalPages).
		Int("cache_hits", run.FetchStats.CacheHits).
		Int("cache_misses", run.FetchStats.CacheMisses).
		Dur("duration", run.Duration).
		Msg("Sync run failed - partial statistics preserved")
}
