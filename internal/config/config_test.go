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
fetch:
  automation_enabled: true
  global_concurrency: 6
  automation_concurrency: 3
  per_host_delay_seconds: 2
  per_host_rps: 1.5
  timeout_seconds: 20
  automation_timeout_seconds: 60
  max_retries: 4
  backoff_initial_ms: 100
  backoff_max_ms: 500
  user_agent: harvest-agent
portal:
  max_per_batch: 5
  max_links_per_portal: 10
classifier:
  portal_confidence: independent
cache:
  freshness_window_seconds: 3600
  index: memory
  blob_store: local
  local_dir: /tmp/blobs
extractor:
  service_url: http://extractor:8080/v1/extract
  timeout_seconds: 20
dispatcher:
  batch_deadline_seconds: 120
  cancel_inflight_on_deadline: true
logging:
  development: false
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
	if !cfg.Fetch.AutomationEnabled || cfg.Fetch.GlobalConcurrency != 6 {
		t.Fatalf("expected fetch overrides to apply: %+v", cfg.Fetch)
	}
	if cfg.Portal.MaxPerBatch != 5 || cfg.Portal.MaxLinksPerPortal != 10 {
		t.Fatalf("expected portal overrides to apply: %+v", cfg.Portal)
	}
	if cfg.Classifier.PortalConfidence != "independent" {
		t.Fatalf("expected portal_confidence independent, got %q", cfg.Classifier.PortalConfidence)
	}
	if cfg.Cache.BlobStore != "local" || cfg.Cache.LocalDir != "/tmp/blobs" {
		t.Fatalf("expected cache overrides to apply: %+v", cfg.Cache)
	}
	if cfg.Extractor.ServiceURL != "http://extractor:8080/v1/extract" {
		t.Fatalf("expected extractor service url, got %q", cfg.Extractor.ServiceURL)
	}
	if !cfg.Dispatcher.CancelInflightOnDeadline {
		t.Fatalf("expected cancel_inflight_on_deadline to be true")
	}
	if cfg.Logging.Development {
		t.Fatalf("expected development logging off")
	}
	if got := cfg.FetchTimeout(); got != 20*time.Second {
		t.Fatalf("expected fetch timeout 20s, got %v", got)
	}
	if got := cfg.AutomationTimeout(); got != 60*time.Second {
		t.Fatalf("expected automation timeout 60s, got %v", got)
	}
	if got := cfg.FreshnessWindow(); got != time.Hour {
		t.Fatalf("expected freshness window 1h, got %v", got)
	}
	if got := cfg.BatchDeadline(); got != 2*time.Minute {
		t.Fatalf("expected batch deadline 2m, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Fetch.AutomationEnabled {
		t.Fatalf("expected automation disabled by default")
	}
	if cfg.Fetch.GlobalConcurrency != 8 || cfg.Fetch.AutomationConcurrency != 2 {
		t.Fatalf("unexpected default concurrency: %+v", cfg.Fetch)
	}
	if cfg.Classifier.PortalConfidence != "inherit_min" {
		t.Fatalf("expected default portal_confidence inherit_min, got %q", cfg.Classifier.PortalConfidence)
	}
	if cfg.Cache.Index != "memory" || cfg.Cache.BlobStore != "memory" {
		t.Fatalf("unexpected default cache backends: %+v", cfg.Cache)
	}
	if cfg.Dispatcher.CancelInflightOnDeadline {
		t.Fatalf("expected started fetches to run to completion by default")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	base := func() Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		return cfg
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"zero global concurrency", func(c *Config) { c.Fetch.GlobalConcurrency = 0 }, "global_concurrency"},
		{"zero automation concurrency", func(c *Config) { c.Fetch.AutomationConcurrency = 0 }, "automation_concurrency"},
		{"automation exceeds global", func(c *Config) { c.Fetch.AutomationConcurrency = 99 }, "must not exceed"},
		{"automation timeout too small", func(c *Config) { c.Fetch.AutomationTimeoutSeconds = 1 }, "automation_timeout_seconds"},
		{"negative retries", func(c *Config) { c.Fetch.MaxRetries = -1 }, "max_retries"},
		{"bad portal confidence", func(c *Config) { c.Classifier.PortalConfidence = "always" }, "portal_confidence"},
		{"postgres index without dsn", func(c *Config) { c.Cache.Index = "postgres" }, "db.dsn"},
		{"unknown blob store", func(c *Config) { c.Cache.BlobStore = "s3" }, "blob_store"},
		{"gcs without bucket", func(c *Config) { c.Cache.BlobStore = "gcs" }, "gcs_bucket"},
		{"topic without project", func(c *Config) { c.PubSub.TopicName = "batches" }, "project_id"},
		{"auth without key", func(c *Config) { c.Auth.Enabled = true }, "api_key"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err.Error(), tc.wantSub)
			}
		})
	}
}
