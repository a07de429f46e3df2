// Package collyfetcher implements ingest.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/maturion/ingest/internal/ingest"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements ingest.Fetcher using the Colly collector. Robots
// enforcement lives in the crawl engine, so the collector's own robots
// handling stays off.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
	base      *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true

	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:       cfg,
		transport: transport,
		base:      c,
	}
}

// Fetch executes a single conditional HTTP GET. A 304 answer is reported as
// NotModified with no body; any non-2xx/304 response or transport error is
// returned as an error. The caller owns persistence.
func (f *Fetcher) Fetch(ctx context.Context, request ingest.FetchRequest) (ingest.FetchResult, error) {
	var (
		result   ingest.FetchResult
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(request, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL, &result, &fetchErr); err != nil {
		return ingest.FetchResult{}, err
	}
	if result.NotModified {
		return result, nil
	}
	if err := classifyContentType(&result); err != nil {
		return ingest.FetchResult{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	request ingest.FetchRequest,
	start time.Time,
	result *ingest.FetchResult,
	fetchErr *error,
) *colly.Collector {
	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(f.transport)

	collector.OnRequest(func(r *colly.Request) {
		if request.ETag != "" {
			r.Headers.Set("If-None-Match", request.ETag)
		}
		for key, values := range request.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		*result = ingest.FetchResult{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			Headers:     r.Headers.Clone(),
			Body:        append([]byte(nil), r.Body...),
			ETag:        r.Headers.Get("ETag"),
			ContentType: r.Headers.Get("Content-Type"),
			Duration:    time.Since(start),
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		// Colly routes every non-2xx here; 304 on a conditional request is
		// the cache-hit path, not a failure.
		if r != nil && r.StatusCode == http.StatusNotModified {
			*result = ingest.FetchResult{
				URL:         request.URL,
				StatusCode:  http.StatusNotModified,
				ETag:        request.ETag,
				NotModified: true,
				Duration:    time.Since(start),
			}
			return
		}
		if r != nil && r.StatusCode > 0 {
			*fetchErr = fmt.Errorf("unexpected status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})

	return collector
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	url string,
	result *ingest.FetchResult,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("fetch %s: %w", url, *fetchErr)
		}
		// Visit reports the 304 as an error even though OnError already
		// recorded it as a cache hit.
		if err != nil && !result.NotModified {
			return fmt.Errorf("fetch %s: %w", url, err)
		}
		return nil
	}
}

// classifyContentType normalizes the Content-Type header and rejects
// anything the pipeline cannot extract text from.
func classifyContentType(result *ingest.FetchResult) error {
	mediaType := result.ContentType
	if mediaType != "" {
		if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
			mediaType = parsed
		}
	}
	switch {
	case mediaType == "" && looksLikeHTML(result.Body):
		mediaType = "text/html"
	case mediaType == "text/html", mediaType == "application/xhtml+xml":
		mediaType = "text/html"
	case mediaType == "application/pdf":
	default:
		return fmt.Errorf("content type %q: %w", result.ContentType, ingest.ErrUnsupportedContent)
	}
	result.ContentType = mediaType
	return nil
}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(body[:min(len(body), 512)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
