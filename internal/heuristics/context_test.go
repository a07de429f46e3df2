package heuristics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/maturion/ingest/internal/ingest"
)

type stubDocs struct {
	chunks  []ingest.DocumentChunk
	profile string
}

func (s *stubDocs) GetDocument(context.Context, string) (ingest.Document, error) {
	return ingest.Document{}, ingest.ErrNotFound
}
func (s *stubDocs) SetDocumentStatus(context.Context, string, ingest.DocumentStatus, string) error {
	return nil
}
func (s *stubDocs) ReplaceChunks(context.Context, string, []ingest.DocumentChunk) error { return nil }
func (s *stubDocs) FinalizeDocument(context.Context, string, int, time.Time) error {
	return nil
}
func (s *stubDocs) LogStage(context.Context, ingest.StageEvent) error                   { return nil }
func (s *stubDocs) ListStages(context.Context, string) ([]ingest.StageEvent, error) {
	return nil, nil
}

func (s *stubDocs) SearchChunks(_ context.Context, _ string, _ []string, limit int) ([]ingest.DocumentChunk, error) {
	if limit < len(s.chunks) {
		return s.chunks[:limit], nil
	}
	return s.chunks, nil
}

func (s *stubDocs) OrganizationProfile(context.Context, string) (string, error) {
	if s.profile == "" {
		return "", ingest.ErrNotFound
	}
	return s.profile, nil
}

type stubCrawl struct {
	pages []ingest.Page
}

func (s *stubCrawl) Enqueue(context.Context, ingest.CrawlQueueEntry) (bool, error) {
	return false, nil
}
func (s *stubCrawl) ClaimNext(context.Context, string) (ingest.CrawlQueueEntry, error) {
	return ingest.CrawlQueueEntry{}, ingest.ErrQueueEmpty
}
func (s *stubCrawl) MarkDone(context.Context, int64) error           { return nil }
func (s *stubCrawl) MarkFailed(context.Context, int64, string) error { return nil }
func (s *stubCrawl) UpsertPage(context.Context, ingest.Page) (bool, error) {
	return false, nil
}
func (s *stubCrawl) GetPage(context.Context, string, string) (ingest.Page, error) {
	return ingest.Page{}, ingest.ErrNotFound
}
func (s *stubCrawl) TouchPage(context.Context, string, string, string, time.Time) error { return nil }
func (s *stubCrawl) QueueStats(context.Context, string) (map[ingest.QueueStatus]int, error) {
	return nil, nil
}

func (s *stubCrawl) SearchPages(context.Context, string, []string, int) ([]ingest.Page, error) {
	return s.pages, nil
}

func TestContextBuilder_ChunksSufficeAlone(t *testing.T) {
	t.Parallel()

	docs := &stubDocs{chunks: []ingest.DocumentChunk{
		{Content: strings.Repeat("access control policy detail. ", 20)},
	}}
	b := NewContextBuilder(docs, &stubCrawl{}, zap.NewNop())

	got, err := b.Build(context.Background(), "org-1", "access control policy", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"document_chunks"}, got.Sources)
	require.Contains(t, got.Text, "access control policy detail")
}

func TestContextBuilder_CascadesThroughProfileAndPages(t *testing.T) {
	t.Parallel()

	docs := &stubDocs{
		chunks:  []ingest.DocumentChunk{{Content: "thin chunk"}},
		profile: "A mid-size manufacturer with an internal audit function.",
	}
	crawl := &stubCrawl{pages: []ingest.Page{
		{URL: "https://example.com/about", Text: strings.Repeat("about the company. ", 40)},
	}}
	b := NewContextBuilder(docs, crawl, zap.NewNop())

	got, err := b.Build(context.Background(), "org-1", "incident response readiness", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"document_chunks", "organization_profile", "website_pages"}, got.Sources)
	require.Contains(t, got.Text, "thin chunk")
	require.Contains(t, got.Text, "internal audit")
	require.Contains(t, got.Text, "about the company")
}

func TestContextBuilder_FallsBackToGlobalStandards(t *testing.T) {
	t.Parallel()

	b := NewContextBuilder(&stubDocs{}, &stubCrawl{}, zap.NewNop())

	got, err := b.Build(context.Background(), "org-empty", "business continuity", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"global_standards"}, got.Sources)
	require.NotEmpty(t, got.Text)
}

func TestContextBuilder_TruncatesLongPages(t *testing.T) {
	t.Parallel()

	crawl := &stubCrawl{pages: []ingest.Page{
		{Text: strings.Repeat("x", 10000)},
	}}
	b := NewContextBuilder(&stubDocs{}, crawl, zap.NewNop())

	got, err := b.Build(context.Background(), "org-1", "anything relevant", 0)
	require.NoError(t, err)
	require.LessOrEqual(t, len(got.Text), pageTextLimit+len(globalStandards)+10)
	require.Contains(t, got.Sources, "website_pages")
}

func TestKeywords(t *testing.T) {
	t.Parallel()

	got := Keywords("Does the org have an Incident Response plan, and is it tested?")
	require.Contains(t, got, "incident")
	require.Contains(t, got, "response")
	require.Contains(t, got, "tested")
	require.NotContains(t, got, "the", "short words are dropped")
	require.NotContains(t, got, "org")
}
