package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HF_TOKEN", "")
	t.Setenv("CORS_ORIGINS", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:8000" {
		t.Fatalf("addr = %q", cfg.Addr())
	}
	if cfg.Workers.Count != 2 || cfg.Workers.QueueSize != 100 {
		t.Fatalf("workers = %+v", cfg.Workers)
	}
	if cfg.LockWait() != 10*time.Second || cfg.PollInterval() != 2*time.Second {
		t.Fatalf("lock wait = %v, poll = %v", cfg.LockWait(), cfg.PollInterval())
	}
	if cfg.Diarization.MinSegmentSeconds != 0.1 {
		t.Fatalf("min segment = %v", cfg.Diarization.MinSegmentSeconds)
	}
	if cfg.Whisper.Enabled {
		t.Fatal("whisper enabled by default")
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: 9000
  cors_origins: "http://a.test, http://b.test"
workers:
  count: 4
diarization:
  command: diarize
  args: ["--fast"]
  hf_token: from-file
whisper:
  enabled: true
  model: small
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HF_TOKEN", "from-env")
	t.Setenv("CORS_ORIGINS", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Server.CORSOrigins != "http://a.test,http://b.test" {
		t.Fatalf("cors = %q", cfg.Server.CORSOrigins)
	}
	if cfg.Workers.Count != 4 || cfg.Workers.QueueSize != 100 {
		t.Fatalf("workers = %+v", cfg.Workers)
	}
	if cfg.Diarization.Command != "diarize" || len(cfg.Diarization.Args) != 1 || cfg.Diarization.Args[0] != "--fast" {
		t.Fatalf("diarization = %+v", cfg.Diarization)
	}
	if cfg.Diarization.HFToken != "from-env" {
		t.Fatalf("hf token = %q, want env override", cfg.Diarization.HFToken)
	}
	if !cfg.Whisper.Enabled || cfg.Whisper.Model != "small" {
		t.Fatalf("whisper = %+v", cfg.Whisper)
	}

	t.Setenv("CORS_ORIGINS", "http://c.test")
	cfg, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.CORSOrigins != "http://c.test" {
		t.Fatalf("cors = %q, want env override", cfg.Server.CORSOrigins)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
