// Package server builds the application's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/maturion/ingest/internal/api"
	"github.com/maturion/ingest/internal/clock/system"
	"github.com/maturion/ingest/internal/config"
	"github.com/maturion/ingest/internal/crawler"
	"github.com/maturion/ingest/internal/dispatcher"
	collyfetcher "github.com/maturion/ingest/internal/fetcher/colly"
	headlessfetcher "github.com/maturion/ingest/internal/fetcher/headless"
	"github.com/maturion/ingest/internal/hash/rolling"
	"github.com/maturion/ingest/internal/hash/sha256"
	"github.com/maturion/ingest/internal/headless/detector"
	"github.com/maturion/ingest/internal/heuristics"
	"github.com/maturion/ingest/internal/id/uuid"
	"github.com/maturion/ingest/internal/ingest"
	"github.com/maturion/ingest/internal/logging"
	"github.com/maturion/ingest/internal/metrics"
	"github.com/maturion/ingest/internal/policy/ratelimit"
	"github.com/maturion/ingest/internal/processor"
	"github.com/maturion/ingest/internal/processor/formats"
	memorypublisher "github.com/maturion/ingest/internal/publisher/memory"
	gcppublisher "github.com/maturion/ingest/internal/publisher/pubsub"
	webhookpublisher "github.com/maturion/ingest/internal/publisher/webhook"
	queuememory "github.com/maturion/ingest/internal/queue/memory"
	gcsstorage "github.com/maturion/ingest/internal/storage/gcs"
	localstorage "github.com/maturion/ingest/internal/storage/local"
	memorystorage "github.com/maturion/ingest/internal/storage/memory"
	pgstorage "github.com/maturion/ingest/internal/storage/postgres"
	"github.com/maturion/ingest/internal/worker"
)

// stores groups the persistence interfaces behind one backend choice.
type stores struct {
	crawl     ingest.CrawlStore
	jobs      ingest.JobStore
	documents ingest.DocumentStore
	feedback  ingest.FeedbackStore
	audit     ingest.AuditLog
}

// App contains the application's long-lived dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	apiServer    *api.Server
	dispatch     *dispatcher.Dispatcher
	queue        *queuememory.Queue
	headless     *headlessfetcher.Fetcher
	pgPool       *pgxpool.Pool
	gcsClient    *gstorage.Client
	pubsubClient *pubsub.Client
	pubsubTopic  *pubsub.Topic
}

// Build creates the application's dependency graph.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies")

	st, err := app.setupStores(ctx)
	if err != nil {
		return nil, err
	}
	blobs, err := app.setupBlobStore(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}

	pageHasher := sha256.New()
	clock := system.New()
	decoders := formats.Default()

	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	// A Noop fetcher stands in whenever the chromedp renderer is unavailable
	// so promoted fetches fail soft and keep the probe result.
	var headless ingest.Fetcher = headlessfetcher.NewNoop()
	var detect ingest.HeadlessDetector
	if cfg.Headless.Enabled {
		detect = detector.NewHeuristic(cfg.Headless.PromotionThresh)
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless fetcher init failed, renders will fall back to probe results", zap.Error(err))
		} else {
			headless = hf
			app.headless = hf
		}
	}

	engine := crawler.New(crawler.Config{
		SeedPaths:       cfg.Crawler.SeedPaths,
		SeedPriority:    cfg.Crawler.SeedPriority,
		MaxPagesPerRun:  cfg.Crawler.MaxPagesPerRun,
		MaxLinksPerPage: cfg.Crawler.MaxLinksPerPage,
		PriorityDecay:   cfg.Crawler.PriorityDecay,
	}, crawler.Deps{
		Store:    st.crawl,
		Fetcher:  probe,
		Headless: headless,
		Detector: detect,
		Decoders: decoders,
		Hasher:   pageHasher,
		Limiter: ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.RateLimit.DefaultRPS,
			DefaultBurst: cfg.RateLimit.DefaultBurst,
		}),
		Robots: crawler.NewRobotsEnforcer(cfg.Crawler.RespectRobots, cfg.Crawler.UserAgent, logger),
		Blobs:  blobs,
		Clock:  clock,
		Logger: logger,
	})

	pipeline := newPipeline(cfg, st.documents, blobs, decoders, clock, logger)

	app.queue = queuememory.NewQueue(cfg.Crawler.QueueDepth)
	workerCfg := worker.Config{Topic: cfg.Events.Topic}
	var workers []*worker.Worker
	for i := 0; i < cfg.Crawler.Concurrency; i++ {
		workers = append(workers, worker.New(
			app.queue, st.jobs, engine, pipeline, publisher, clock, workerCfg,
			logger.With(zap.Int("worker", i)),
		))
	}
	app.dispatch = dispatcher.New(app.queue, workers)

	app.apiServer = api.NewServer(cfg, api.Deps{
		Jobs:       st.jobs,
		Crawl:      st.crawl,
		Documents:  st.documents,
		Feedback:   st.feedback,
		Audit:      st.audit,
		Context:    heuristics.NewContextBuilder(st.documents, st.crawl, logger),
		Dispatcher: app.dispatch,
		IDGen:      uuid.New(),
		Clock:      clock,
		Logger:     logger,
	})

	return app, nil
}

// newPipeline assembles the document pipeline. Chunk dedup uses the rolling
// hasher; the cryptographic sha256 hasher is reserved for page change
// detection in the crawler.
func newPipeline(cfg config.Config, docs ingest.DocumentStore, blobs ingest.BlobStore, decoders *formats.Registry, clock ingest.Clock, logger *zap.Logger) *processor.Pipeline {
	return processor.New(processor.Deps{
		Docs:     docs,
		Blobs:    blobs,
		Decoders: decoders,
		Chunker:  processor.NewChunker(cfg.Processor.ChunkSize, cfg.Processor.ChunkOverlap),
		Hasher:   rolling.New(),
		Clock:    clock,
		Logger:   logger,
	}, cfg.Processor.MaxDocumentBytes)
}

func (a *App) setupStores(ctx context.Context) (stores, error) {
	if a.cfg.Database.DSN == "" {
		a.logger.Info("using in-memory stores")
		return stores{
			crawl:     memorystorage.NewCrawlStore(a.cfg.Crawler.MaxAttempts),
			jobs:      memorystorage.NewJobStore(),
			documents: memorystorage.NewDocumentStore(),
			feedback:  memorystorage.NewFeedbackStore(),
			audit:     memorystorage.NewAuditLog(),
		}, nil
	}

	a.logger.Info("connecting to Postgres")
	pool, err := pgstorage.NewPool(ctx, pgstorage.Config{
		DSN:             a.cfg.Database.DSN,
		MaxConns:        a.cfg.Database.MaxConns,
		MinConns:        a.cfg.Database.MinConns,
		MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return stores{}, fmt.Errorf("postgres pool init failed: %w", err)
	}
	a.pgPool = pool

	crawlStore, err := pgstorage.NewCrawlStore(pool, a.cfg.Crawler.MaxAttempts)
	if err != nil {
		return stores{}, fmt.Errorf("crawl store init failed: %w", err)
	}
	jobStore, err := pgstorage.NewJobStore(pool)
	if err != nil {
		return stores{}, fmt.Errorf("job store init failed: %w", err)
	}
	documentStore, err := pgstorage.NewDocumentStore(pool)
	if err != nil {
		return stores{}, fmt.Errorf("document store init failed: %w", err)
	}
	feedbackStore, err := pgstorage.NewFeedbackStore(pool)
	if err != nil {
		return stores{}, fmt.Errorf("feedback store init failed: %w", err)
	}
	auditLog, err := pgstorage.NewAuditLog(pool)
	if err != nil {
		return stores{}, fmt.Errorf("audit log init failed: %w", err)
	}
	return stores{
		crawl:     crawlStore,
		jobs:      jobStore,
		documents: documentStore,
		feedback:  feedbackStore,
		audit:     auditLog,
	}, nil
}

func (a *App) setupBlobStore(ctx context.Context) (ingest.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "gcs":
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.Bucket))
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobs, nil
	case "local":
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.Local.BaseDir))
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobs, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (ingest.Publisher, error) {
	switch a.cfg.Events.Backend {
	case "webhook":
		a.logger.Info("using webhook event publisher", zap.String("url", a.cfg.Events.WebhookURL))
		return webhookpublisher.New(a.cfg.Events.WebhookURL, nil, a.logger)
	case "pubsub":
		a.logger.Info("using Pub/Sub event publisher",
			zap.String("project", a.cfg.Events.PubSub.ProjectID),
			zap.String("topic", a.cfg.Events.PubSub.TopicName))
		client, err := pubsub.NewClient(ctx, a.cfg.Events.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.pubsubTopic = client.Topic(a.cfg.Events.PubSub.TopicName)
		return gcppublisher.New(a.pubsubTopic), nil
	default:
		a.logger.Info("using in-memory event publisher")
		return memorypublisher.New(), nil
	}
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return a.Close()
}

// Close gracefully shuts down all long-lived services.
func (a *App) Close() error {
	a.queue.Close()
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsubTopic != nil {
		a.pubsubTopic.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	a.logger.Info("shutdown complete")
	// Sync on stderr fails in some environments; nothing else to do.
	_ = a.logger.Sync()
	return nil
}
