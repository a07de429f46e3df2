package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
crawler:
  user_agent: maturion-test-agent
  seed_paths: ["/", "/about"]
  seed_priority: 90
  max_pages_per_run: 25
  max_links_per_page: 5
  priority_decay: 20
  max_attempts: 2
  respect_robots: false
  concurrency: 3
  queue_depth: 16
http:
  timeout_seconds: 45
headless:
  enabled: true
  max_parallel: 2
  nav_timeout_seconds: 30
  promotion_threshold: 70
rate_limit:
  default_rps: 1.5
  default_burst: 2
processor:
  chunk_size: 1000
  chunk_overlap: 100
storage:
  backend: local
  local:
    base_dir: /tmp/blobs
events:
  topic: compliance-events
  webhook_url: https://hooks.example.com/ingest
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Crawler.UserAgent != "maturion-test-agent" || cfg.Crawler.MaxPagesPerRun != 25 {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if len(cfg.Crawler.SeedPaths) != 2 || cfg.Crawler.SeedPaths[1] != "/about" {
		t.Fatalf("expected seed paths override, got %v", cfg.Crawler.SeedPaths)
	}
	if cfg.Processor.ChunkSize != 1000 || cfg.Processor.ChunkOverlap != 100 {
		t.Fatalf("expected processor overrides, got %+v", cfg.Processor)
	}
	if cfg.Storage.Backend != "local" || cfg.Storage.Local.BaseDir != "/tmp/blobs" {
		t.Fatalf("expected local storage config, got %+v", cfg.Storage)
	}
	if cfg.Events.WebhookURL != "https://hooks.example.com/ingest" {
		t.Fatalf("expected webhook URL, got %q", cfg.Events.WebhookURL)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.MaxPagesPerRun != 50 {
		t.Fatalf("expected default page cap 50, got %d", cfg.Crawler.MaxPagesPerRun)
	}
	if len(cfg.Crawler.SeedPaths) != 5 || cfg.Crawler.SeedPaths[0] != "/" {
		t.Fatalf("unexpected default seed paths: %v", cfg.Crawler.SeedPaths)
	}
	if cfg.Processor.ChunkSize != 2000 || cfg.Processor.ChunkOverlap != 200 {
		t.Fatalf("unexpected default chunking: %+v", cfg.Processor)
	}
	if cfg.RateLimit.DefaultRPS != 0.5 {
		t.Fatalf("expected default 0.5 rps, got %v", cfg.RateLimit.DefaultRPS)
	}
	if !cfg.Crawler.RespectRobots {
		t.Fatal("expected robots respected by default")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "zero port",
			mutate: func(c *Config) { c.Server.Port = 0 },
			want:   "server.port",
		},
		{
			name:   "overlap exceeds window",
			mutate: func(c *Config) { c.Processor.ChunkOverlap = c.Processor.ChunkSize },
			want:   "chunk_overlap",
		},
		{
			name:   "auth without key",
			mutate: func(c *Config) { c.Auth.Enabled = true; c.Auth.APIKey = "" },
			want:   "auth.api_key",
		},
		{
			name:   "unknown storage backend",
			mutate: func(c *Config) { c.Storage.Backend = "s3" },
			want:   "storage backend",
		},
		{
			name:   "gcs without bucket",
			mutate: func(c *Config) { c.Storage.Backend = "gcs"; c.Storage.Bucket = "" },
			want:   "storage.bucket",
		},
		{
			name:   "unknown events backend",
			mutate: func(c *Config) { c.Events.Backend = "kafka" },
			want:   "events backend",
		},
		{
			name:   "webhook without url",
			mutate: func(c *Config) { c.Events.Backend = "webhook"; c.Events.WebhookURL = "" },
			want:   "events.webhook_url",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tc.mutate(&cfg)
			err = cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}
