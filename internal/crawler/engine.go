// Package crawler implements the per-domain crawl engine: seeding heuristic
// entry paths, draining the persisted queue up to a per-run cap, and
// requeueing discovered in-domain links at decayed priority.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/maturion/ingest/internal/extract"
	"github.com/maturion/ingest/internal/fetcher/headless"
	"github.com/maturion/ingest/internal/ingest"
	"github.com/maturion/ingest/internal/metrics"
	"github.com/maturion/ingest/internal/processor/formats"
)

// Config bounds a single crawl run.
type Config struct {
	SeedPaths       []string
	SeedPriority    int
	MaxPagesPerRun  int
	MaxLinksPerPage int
	PriorityDecay   int
}

// Deps are the collaborators injected into the engine.
type Deps struct {
	Store    ingest.CrawlStore
	Fetcher  ingest.Fetcher
	Headless ingest.Fetcher          // rendering fetcher, a headless.Noop stands in when unavailable
	Detector ingest.HeadlessDetector // optional, nil disables promotion
	Decoders *formats.Registry
	Hasher   ingest.Hasher
	Limiter  ingest.Limiter
	Robots   ingest.RobotsPolicy
	Blobs    ingest.BlobStore // optional raw-page archive
	Clock    ingest.Clock
	Logger   *zap.Logger
}

// Engine runs breadth-first, priority-ordered crawls over one domain at a
// time. It is sequential within a run; concurrency comes from running
// multiple engines whose queue claims are atomic in the store.
type Engine struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

// New builds an Engine.
func New(cfg Config, deps Deps) *Engine {
	if cfg.MaxPagesPerRun <= 0 {
		cfg.MaxPagesPerRun = 50
	}
	if len(cfg.SeedPaths) == 0 {
		cfg.SeedPaths = []string{"/"}
	}
	if deps.Headless == nil {
		deps.Headless = headless.NewNoop()
	}
	return &Engine{cfg: cfg, deps: deps, log: deps.Logger.Named("crawler")}
}

// Run seeds the queue for the domain and drains it up to the page cap. The
// returned stats are valid even when err is non-nil.
func (e *Engine) Run(ctx context.Context, organizationID, domain string, priorityBase int) (ingest.CrawlStats, error) {
	var stats ingest.CrawlStats

	if priorityBase <= 0 {
		priorityBase = e.cfg.SeedPriority
	}
	if err := e.seed(ctx, organizationID, domain, priorityBase, &stats); err != nil {
		return stats, err
	}

	for i := 0; i < e.cfg.MaxPagesPerRun; i++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		entry, err := e.deps.Store.ClaimNext(ctx, organizationID)
		if errors.Is(err, ingest.ErrQueueEmpty) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("claim next: %w", err)
		}

		if err := e.processEntry(ctx, entry, domain, &stats); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

func (e *Engine) seed(ctx context.Context, organizationID, domain string, priority int, stats *ingest.CrawlStats) error {
	now := e.deps.Clock.Now()
	for _, seedPath := range e.cfg.SeedPaths {
		seedURL, err := SeedURL(domain, seedPath)
		if err != nil {
			return fmt.Errorf("seed %q: %w", seedPath, err)
		}
		inserted, err := e.deps.Store.Enqueue(ctx, ingest.CrawlQueueEntry{
			OrganizationID: organizationID,
			URL:            seedURL,
			Domain:         domain,
			Priority:       priority,
			Status:         ingest.QueueStatusQueued,
			EnqueuedAt:     now,
			UpdatedAt:      now,
		})
		if err != nil {
			return fmt.Errorf("enqueue seed %q: %w", seedURL, err)
		}
		if inserted {
			stats.Seeded++
		}
	}
	return nil
}

// processEntry fetches one claimed entry and records the outcome. Fetch and
// extraction failures mark the entry failed and do not abort the run; only
// context cancellation and store errors propagate.
func (e *Engine) processEntry(ctx context.Context, entry ingest.CrawlQueueEntry, domain string, stats *ingest.CrawlStats) error {
	if !e.deps.Robots.Allowed(ctx, entry.URL) {
		e.fail(ctx, entry, "disallowed by robots.txt", stats)
		return nil
	}

	if err := e.deps.Limiter.Wait(ctx, entry.URL); err != nil {
		e.fail(ctx, entry, err.Error(), stats)
		return fmt.Errorf("rate limit: %w", err)
	}

	var etag string
	if prior, err := e.deps.Store.GetPage(ctx, entry.OrganizationID, entry.URL); err == nil {
		etag = prior.ETag
	}

	result, err := e.deps.Fetcher.Fetch(ctx, ingest.FetchRequest{
		OrganizationID: entry.OrganizationID,
		URL:            entry.URL,
		ETag:           etag,
	})
	if err != nil {
		e.fail(ctx, entry, err.Error(), stats)
		return nil
	}

	now := e.deps.Clock.Now()
	if result.NotModified {
		tag := result.ETag
		if tag == "" {
			tag = etag
		}
		if err := e.deps.Store.TouchPage(ctx, entry.OrganizationID, entry.URL, tag, now); err != nil {
			return fmt.Errorf("touch page: %w", err)
		}
		e.done(ctx, entry)
		stats.PagesUnchanged++
		metrics.ObservePage(entry.URL, "unchanged", 0)
		return nil
	}

	result = e.maybePromote(ctx, entry, result)

	page, links, err := e.buildPage(entry, result, now)
	if err != nil {
		e.fail(ctx, entry, err.Error(), stats)
		return nil
	}

	changed, err := e.deps.Store.UpsertPage(ctx, page)
	if err != nil {
		return fmt.Errorf("upsert page: %w", err)
	}
	if changed {
		stats.PagesFetched++
		metrics.ObservePage(entry.URL, "fetched", len(result.Body))
		e.archive(ctx, page, result.Body)
	} else {
		stats.PagesUnchanged++
		metrics.ObservePage(entry.URL, "unchanged", len(result.Body))
	}

	e.discover(ctx, entry, domain, links, stats)
	e.done(ctx, entry)
	return nil
}

// maybePromote reruns the fetch through the headless renderer when the probe
// result looks script-built. The probe result is kept if the render fails.
func (e *Engine) maybePromote(ctx context.Context, entry ingest.CrawlQueueEntry, probe ingest.FetchResult) ingest.FetchResult {
	if e.deps.Detector == nil || !e.deps.Detector.ShouldPromote(probe) {
		return probe
	}
	rendered, err := e.deps.Headless.Fetch(ctx, ingest.FetchRequest{
		OrganizationID: entry.OrganizationID,
		URL:            entry.URL,
		UseHeadless:    true,
	})
	if err != nil {
		e.log.Warn("headless promotion failed, keeping probe result",
			zap.String("url", entry.URL), zap.Error(err))
		return probe
	}
	return rendered
}

func (e *Engine) buildPage(entry ingest.CrawlQueueEntry, result ingest.FetchResult, now time.Time) (ingest.Page, []string, error) {
	page := ingest.Page{
		OrganizationID: entry.OrganizationID,
		URL:            entry.URL,
		Domain:         entry.Domain,
		ETag:           result.ETag,
		ContentType:    result.ContentType,
		FetchedAt:      now,
	}

	var links []string
	if result.ContentType == "text/html" {
		content, err := extract.HTML(result.Body, entry.URL, e.cfg.MaxLinksPerPage)
		if err != nil {
			return ingest.Page{}, nil, fmt.Errorf("extract html: %w", err)
		}
		page.Title = content.Title
		page.Text = content.Text
		links = content.Links
	} else {
		text, err := e.deps.Decoders.Decode(result.ContentType, result.Body)
		if err != nil {
			return ingest.Page{}, nil, err
		}
		page.Text = text
	}

	hash, err := e.deps.Hasher.Hash(result.Body)
	if err != nil {
		return ingest.Page{}, nil, fmt.Errorf("hash body: %w", err)
	}
	page.HTMLHash = hash
	return page, links, nil
}

// discover enqueues in-domain links at decayed priority.
func (e *Engine) discover(ctx context.Context, entry ingest.CrawlQueueEntry, domain string, links []string, stats *ingest.CrawlStats) {
	priority := entry.Priority - e.cfg.PriorityDecay
	if priority < 0 {
		priority = 0
	}
	now := e.deps.Clock.Now()
	for _, link := range links {
		if !sameDomain(link, domain) {
			continue
		}
		normalized, err := NormalizeURL(link)
		if err != nil {
			continue
		}
		inserted, err := e.deps.Store.Enqueue(ctx, ingest.CrawlQueueEntry{
			OrganizationID: entry.OrganizationID,
			URL:            normalized,
			Domain:         domain,
			Priority:       priority,
			Status:         ingest.QueueStatusQueued,
			EnqueuedAt:     now,
			UpdatedAt:      now,
		})
		if err != nil {
			e.log.Warn("enqueue discovered link failed",
				zap.String("url", normalized), zap.Error(err))
			continue
		}
		if inserted {
			stats.LinksDiscovered++
		}
	}
}

// archive writes the raw body to the blob store when one is configured.
// Archive failures are logged, never fatal to the crawl.
func (e *Engine) archive(ctx context.Context, page ingest.Page, body []byte) {
	if e.deps.Blobs == nil {
		return
	}
	path := fmt.Sprintf("raw/%s/%s", page.OrganizationID, page.HTMLHash)
	if _, err := e.deps.Blobs.PutObject(ctx, path, page.ContentType, body); err != nil {
		e.log.Warn("archive page failed", zap.String("url", page.URL), zap.Error(err))
	}
}

func (e *Engine) done(ctx context.Context, entry ingest.CrawlQueueEntry) {
	if err := e.deps.Store.MarkDone(ctx, entry.ID); err != nil {
		e.log.Warn("mark done failed", zap.Int64("entry_id", entry.ID), zap.Error(err))
	}
}

func (e *Engine) fail(ctx context.Context, entry ingest.CrawlQueueEntry, reason string, stats *ingest.CrawlStats) {
	if err := e.deps.Store.MarkFailed(ctx, entry.ID, reason); err != nil {
		e.log.Warn("mark failed failed", zap.Int64("entry_id", entry.ID), zap.Error(err))
	}
	stats.PagesFailed++
	metrics.ObservePage(entry.URL, "failed", 0)
}
