// Package worker implements the run execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/maturion/ingest/internal/ingest"
	"github.com/maturion/ingest/internal/metrics"
)

// CrawlRunner executes one crawl run for an organization domain.
type CrawlRunner interface {
	Run(ctx context.Context, organizationID, domain string, priorityBase int) (ingest.CrawlStats, error)
}

// DocumentProcessor executes the document pipeline.
type DocumentProcessor interface {
	Process(ctx context.Context, documentID string) error
}

// Config controls Worker behavior.
type Config struct {
	Topic string
}

// Worker consumes run requests and executes them.
type Worker struct {
	queue     ingest.Queue
	jobs      ingest.JobStore
	crawler   CrawlRunner
	processor DocumentProcessor
	publisher ingest.Publisher
	clock     ingest.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue ingest.Queue,
	jobs ingest.JobStore,
	crawler CrawlRunner,
	processor DocumentProcessor,
	publisher ingest.Publisher,
	clock ingest.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		jobs:      jobs,
		crawler:   crawler,
		processor: processor,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.Named("worker"),
	}
}

// Run blocks, consuming run requests until the context finishes or the
// queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		run, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ingest.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued run",
			zap.String("job_id", run.JobID),
			zap.String("kind", string(run.Kind)))

		metrics.IncActiveWorkers()
		w.processRun(ctx, run)
		metrics.DecActiveWorkers()
	}
}

func (w *Worker) processRun(ctx context.Context, run ingest.RunRequest) {
	started := w.clock.Now()
	var err error
	switch run.Kind {
	case ingest.RunKindCrawl:
		err = w.runCrawl(ctx, run)
	case ingest.RunKindDocument:
		err = w.runDocument(ctx, run)
	default:
		w.logger.Error("unknown run kind",
			zap.String("job_id", run.JobID),
			zap.String("kind", string(run.Kind)))
		return
	}

	status := "succeeded"
	if err != nil {
		status = "failed"
		w.logger.Error("run failed",
			zap.String("job_id", run.JobID),
			zap.String("kind", string(run.Kind)),
			zap.Duration("elapsed", w.clock.Now().Sub(started)),
			zap.Error(err))
	}
	metrics.ObserveRun(string(run.Kind), status)
}

func (w *Worker) runCrawl(ctx context.Context, run ingest.RunRequest) error {
	if w.crawler == nil {
		return w.failJob(ctx, run.JobID, "no crawl runner configured")
	}
	if err := w.jobs.UpdateJobStatus(ctx, run.JobID, ingest.JobStatusRunning, "", ingest.CrawlStats{}); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}

	stats, err := w.crawler.Run(ctx, run.OrganizationID, run.Domain, run.Priority)

	status := ingest.JobStatusSucceeded
	errText := ""
	switch {
	case ctx.Err() != nil:
		status = ingest.JobStatusCanceled
		if err != nil {
			errText = err.Error()
		}
	case err != nil:
		status = ingest.JobStatusFailed
		errText = err.Error()
	}

	if uerr := w.jobs.UpdateJobStatus(ctx, run.JobID, status, errText, stats); uerr != nil {
		w.logger.Error("final job status update failed",
			zap.String("job_id", run.JobID), zap.Error(uerr))
	}

	w.publishEvent(ctx, map[string]any{
		"event":           "crawl_finished",
		"job_id":          run.JobID,
		"organization_id": run.OrganizationID,
		"domain":          run.Domain,
		"status":          string(status),
		"stats":           stats,
		"timestamp":       w.clock.Now().Format(time.RFC3339),
	})
	return err
}

func (w *Worker) runDocument(ctx context.Context, run ingest.RunRequest) error {
	if w.processor == nil {
		w.logger.Error("no document processor configured", zap.String("document_id", run.DocumentID))
		return fmt.Errorf("no document processor configured")
	}

	err := w.processor.Process(ctx, run.DocumentID)

	status := "completed"
	if err != nil {
		status = "failed"
	}
	w.publishEvent(ctx, map[string]any{
		"event":           "document_processed",
		"document_id":     run.DocumentID,
		"organization_id": run.OrganizationID,
		"status":          status,
		"timestamp":       w.clock.Now().Format(time.RFC3339),
	})
	return err
}

func (w *Worker) failJob(ctx context.Context, jobID, reason string) error {
	if err := w.jobs.UpdateJobStatus(ctx, jobID, ingest.JobStatusFailed, reason, ingest.CrawlStats{}); err != nil {
		w.logger.Error("fail job status update", zap.String("job_id", jobID), zap.Error(err))
	}
	return fmt.Errorf("%s", reason)
}

func (w *Worker) publishEvent(ctx context.Context, payload map[string]any) {
	if w.publisher == nil || w.cfg.Topic == "" {
		return
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		w.logger.Warn("event publish failed", zap.Error(err))
	}
}
