package heuristics

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/maturion/ingest/internal/ingest"
)

// minContextChars is the point at which the cascade stops pulling in weaker
// sources.
const minContextChars = 400

// pageTextLimit truncates each crawled page contribution.
const pageTextLimit = 1500

// defaultSearchLimit bounds chunk/page search results when the caller does
// not set one.
const defaultSearchLimit = 5

// globalStandards is the fallback context used when an organization has no
// ingested material at all.
const globalStandards = `Recognized frameworks converge on a small set of practices: ` +
	`document the scope and objectives of each control area; assign a named owner ` +
	`accountable for it; assess risk before selecting controls and revisit the ` +
	`assessment on a fixed cadence; prefer preventive controls backed by detective ` +
	`monitoring; record exceptions with expiry dates and compensating measures; and ` +
	`measure each practice with evidence that an independent reviewer could verify. ` +
	`Maturity grows from ad-hoc execution through documented procedure to measured ` +
	`and continuously improved operation, and an assessment should state which of ` +
	`those levels the evidence actually supports rather than the level aspired to.`

// BuiltContext is the result of the cascade: the concatenated prompt context
// and the names of the sources that contributed.
type BuiltContext struct {
	Sources []string `json:"sources"`
	Text    string   `json:"context"`
}

// ContextBuilder assembles best-practice prompt context for a criterion by
// cascading through progressively weaker sources: ingested document chunks,
// the organization profile, crawled website pages, and a hardcoded global
// standards blob.
type ContextBuilder struct {
	docs  ingest.DocumentStore
	crawl ingest.CrawlStore
	log   *zap.Logger
}

// NewContextBuilder builds a ContextBuilder.
func NewContextBuilder(docs ingest.DocumentStore, crawl ingest.CrawlStore, logger *zap.Logger) *ContextBuilder {
	return &ContextBuilder{docs: docs, crawl: crawl, log: logger.Named("heuristics")}
}

// Build runs the cascade. Lookup failures in a source are logged and the
// cascade continues; the result is never empty because the global standards
// blob closes the chain.
func (b *ContextBuilder) Build(ctx context.Context, organizationID, criterion string, limit int) (BuiltContext, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	keywords := Keywords(criterion)

	var out BuiltContext
	var parts []string

	chunks, err := b.docs.SearchChunks(ctx, organizationID, keywords, limit)
	if err != nil {
		b.log.Warn("chunk search failed", zap.Error(err))
	}
	for _, chunk := range chunks {
		parts = append(parts, chunk.Content)
	}
	if len(chunks) > 0 {
		out.Sources = append(out.Sources, "document_chunks")
	}

	if !sufficient(parts) {
		profile, perr := b.docs.OrganizationProfile(ctx, organizationID)
		if perr == nil && profile != "" {
			parts = append(parts, profile)
			out.Sources = append(out.Sources, "organization_profile")
		}
	}

	if !sufficient(parts) {
		pages, perr := b.crawl.SearchPages(ctx, organizationID, keywords, limit)
		if perr != nil {
			b.log.Warn("page search failed", zap.Error(perr))
		}
		for _, page := range pages {
			text := page.Text
			if len(text) > pageTextLimit {
				text = text[:pageTextLimit]
			}
			parts = append(parts, text)
		}
		if len(pages) > 0 {
			out.Sources = append(out.Sources, "website_pages")
		}
	}

	if !sufficient(parts) {
		parts = append(parts, globalStandards)
		out.Sources = append(out.Sources, "global_standards")
	}

	out.Text = strings.Join(parts, "\n\n")
	return out, nil
}

func sufficient(parts []string) bool {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	return total >= minContextChars
}

// Keywords reduces a free-text criterion to its significant search terms.
func Keywords(criterion string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, word := range tokenize(criterion) {
		if len(word) < 4 {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		out = append(out, word)
	}
	return out
}
