package processor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/maturion/ingest/internal/ingest"
	"github.com/maturion/ingest/internal/metrics"
	"github.com/maturion/ingest/internal/processor/formats"
)

// Pipeline processes one uploaded document at a time through the five
// sequential stages. Each stage transition is appended to the stage log; a
// stage failure halts the run and leaves the document pending so a caller can
// retry from the top.
type Pipeline struct {
	docs     ingest.DocumentStore
	blobs    ingest.BlobStore
	decoders *formats.Registry
	chunker  *Chunker
	hasher   ingest.Hasher
	clock    ingest.Clock
	log      *zap.Logger
	maxBytes int64
}

// Deps are the collaborators injected into the pipeline.
type Deps struct {
	Docs     ingest.DocumentStore
	Blobs    ingest.BlobStore
	Decoders *formats.Registry
	Chunker  *Chunker
	Hasher   ingest.Hasher
	Clock    ingest.Clock
	Logger   *zap.Logger
}

// New builds a Pipeline. maxBytes bounds the accepted blob size; zero
// disables the bound.
func New(deps Deps, maxBytes int64) *Pipeline {
	return &Pipeline{
		docs:     deps.Docs,
		blobs:    deps.Blobs,
		decoders: deps.Decoders,
		chunker:  deps.Chunker,
		hasher:   deps.Hasher,
		clock:    deps.Clock,
		log:      deps.Logger.Named("processor"),
		maxBytes: maxBytes,
	}
}

// Process runs the full pipeline for the document. The returned error is the
// first stage failure, already recorded in the stage log and on the document
// row.
func (p *Pipeline) Process(ctx context.Context, documentID string) error {
	doc, err := p.docs.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}

	if err := p.docs.SetDocumentStatus(ctx, documentID, ingest.DocumentStatusProcessing, ""); err != nil {
		return fmt.Errorf("set processing: %w", err)
	}

	var data []byte
	err = p.runStage(ctx, documentID, ingest.StageValidation, func() error {
		data, err = p.blobs.GetObject(ctx, doc.FilePath)
		if err != nil {
			return fmt.Errorf("file %q not found in storage: %w", doc.FilePath, err)
		}
		if len(data) == 0 {
			return fmt.Errorf("file %q is empty", doc.FilePath)
		}
		if p.maxBytes > 0 && int64(len(data)) > p.maxBytes {
			return fmt.Errorf("file %q exceeds %d bytes", doc.FilePath, p.maxBytes)
		}
		return nil
	})
	if err != nil {
		return p.abort(ctx, documentID, err)
	}

	var text string
	err = p.runStage(ctx, documentID, ingest.StageExtraction, func() error {
		text, err = p.decoders.Decode(doc.ContentType, data)
		if err != nil {
			return err
		}
		if text == "" {
			return fmt.Errorf("no text extracted from %q", doc.FilePath)
		}
		return nil
	})
	if err != nil {
		return p.abort(ctx, documentID, err)
	}

	var chunks []ingest.DocumentChunk
	err = p.runStage(ctx, documentID, ingest.StageChunking, func() error {
		parts := p.chunker.Split(text)
		if len(parts) == 0 {
			return fmt.Errorf("chunking produced no chunks")
		}
		chunks = make([]ingest.DocumentChunk, 0, len(parts))
		for i, content := range parts {
			sum, herr := p.hasher.Hash([]byte(content))
			if herr != nil {
				return fmt.Errorf("hash chunk %d: %w", i, herr)
			}
			chunks = append(chunks, ingest.DocumentChunk{
				DocumentID:  documentID,
				Index:       i,
				Content:     content,
				ContentHash: sum,
			})
		}
		return nil
	})
	if err != nil {
		return p.abort(ctx, documentID, err)
	}

	err = p.runStage(ctx, documentID, ingest.StagePersistence, func() error {
		if perr := p.docs.ReplaceChunks(ctx, documentID, chunks); perr != nil {
			return fmt.Errorf("persist %d chunks: %w", len(chunks), perr)
		}
		metrics.AddChunks(len(chunks))
		return nil
	})
	if err != nil {
		return p.abort(ctx, documentID, err)
	}

	err = p.runStage(ctx, documentID, ingest.StageFinalization, func() error {
		return p.docs.FinalizeDocument(ctx, documentID, len(chunks), p.clock.Now())
	})
	if err != nil {
		return p.abort(ctx, documentID, err)
	}

	p.log.Info("document processed",
		zap.String("document_id", documentID),
		zap.Int("total_chunks", len(chunks)))
	return nil
}

// runStage logs the started/completed/failed transitions around fn.
func (p *Pipeline) runStage(ctx context.Context, documentID string, stage ingest.PipelineStage, fn func() error) error {
	p.logStage(ctx, documentID, stage, ingest.StageStatusStarted, "")

	start := time.Now()
	if err := fn(); err != nil {
		metrics.ObserveStage(string(stage), "failed", time.Since(start))
		p.logStage(ctx, documentID, stage, ingest.StageStatusFailed, err.Error())
		return fmt.Errorf("%s: %w", stage, err)
	}
	metrics.ObserveStage(string(stage), "completed", time.Since(start))
	p.logStage(ctx, documentID, stage, ingest.StageStatusCompleted, "")
	return nil
}

func (p *Pipeline) logStage(ctx context.Context, documentID string, stage ingest.PipelineStage, status ingest.StageStatus, detail string) {
	err := p.docs.LogStage(ctx, ingest.StageEvent{
		DocumentID: documentID,
		Stage:      stage,
		Status:     status,
		Detail:     detail,
		At:         p.clock.Now(),
	})
	if err != nil {
		p.log.Warn("stage log append failed",
			zap.String("document_id", documentID),
			zap.String("stage", string(stage)),
			zap.Error(err))
	}
}

// abort records the failure on the document row and returns stageErr. The
// document goes back to pending rather than a terminal state, so a retry
// starts from the top.
func (p *Pipeline) abort(ctx context.Context, documentID string, stageErr error) error {
	if err := p.docs.SetDocumentStatus(ctx, documentID, ingest.DocumentStatusPending, stageErr.Error()); err != nil {
		p.log.Warn("reset document status failed",
			zap.String("document_id", documentID), zap.Error(err))
	}
	return stageErr
}
