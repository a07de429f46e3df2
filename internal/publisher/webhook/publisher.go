// Package webhook posts completion events to a configured HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const maxAttempts = 2

// Publisher delivers event payloads as JSON POSTs. Delivery is best effort:
// a 429 or 5xx answer gets one retry after a short backoff, anything else is
// final.
type Publisher struct {
	url     string
	client  *http.Client
	backoff time.Duration
	logger  *zap.Logger
}

// New constructs a Publisher for the endpoint URL.
func New(url string, client *http.Client, logger *zap.Logger) (*Publisher, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		url:     url,
		client:  client,
		backoff: 500 * time.Millisecond,
		logger:  logger.Named("webhook"),
	}, nil
}

// Publish POSTs the payload. The topic travels in the X-Ingest-Topic header
// so one endpoint can receive every event kind.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	backoff := p.backoff
	var lastStatus int
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, err := p.post(ctx, topic, body)
		if err != nil {
			return "", err
		}
		lastStatus = status
		if status < http.StatusMultipleChoices {
			return fmt.Sprintf("webhook-%d", status), nil
		}
		if status != http.StatusTooManyRequests && status < http.StatusInternalServerError {
			break
		}
		if attempt < maxAttempts {
			p.logger.Warn("webhook delivery retrying",
				zap.String("topic", topic),
				zap.Int("status", status),
				zap.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			backoff *= 2
		}
	}
	return "", fmt.Errorf("webhook delivery failed with status %d", lastStatus)
}

func (p *Publisher) post(ctx context.Context, topic string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ingest-Topic", topic)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
