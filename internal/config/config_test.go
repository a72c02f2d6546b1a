package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Session.ChunkPeriod != 30*time.Second {
		t.Fatalf("expected 30s chunk period, got %v", cfg.Session.ChunkPeriod)
	}
	if cfg.Session.MinFragmentBytes != 1024 {
		t.Fatalf("expected 1024 min fragment bytes, got %d", cfg.Session.MinFragmentBytes)
	}
	if cfg.Session.MaxSessionBytes != 2*1024*1024*1024 {
		t.Fatalf("expected 2GiB max session bytes, got %d", cfg.Session.MaxSessionBytes)
	}
	if cfg.Stitch.MinStitchBytes != 10*1024 {
		t.Fatalf("expected 10KiB min stitch bytes, got %d", cfg.Stitch.MinStitchBytes)
	}
	if cfg.Transcription.Attempts != 3 {
		t.Fatalf("expected 3 transcribe attempts, got %d", cfg.Transcription.Attempts)
	}
	if cfg.Transcription.RetryBase != 2*time.Second {
		t.Fatalf("expected 2s retry base, got %v", cfg.Transcription.RetryBase)
	}
	if cfg.Transcription.ContextChunks != 5 || cfg.Transcription.ContextChars != 500 {
		t.Fatalf("expected 5/500 context window, got %d/%d", cfg.Transcription.ContextChunks, cfg.Transcription.ContextChars)
	}
	if cfg.Store.Retention != 7*24*time.Hour {
		t.Fatalf("expected 7d retention, got %v", cfg.Store.Retention)
	}
}

func TestLoadRespectsOverrides(t *testing.T) {
	t.Setenv("SCRIBE_CHUNK_PERIOD", "10s")
	t.Setenv("SCRIBE_MAX_SESSION_BYTES", "1024")
	t.Setenv("SCRIBE_DEBUG_SAVE_STITCHED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Session.ChunkPeriod != 10*time.Second {
		t.Fatalf("expected overridden chunk period, got %v", cfg.Session.ChunkPeriod)
	}
	if cfg.Session.MaxSessionBytes != 1024 {
		t.Fatalf("expected overridden max session bytes, got %d", cfg.Session.MaxSessionBytes)
	}
	if !cfg.Stitch.DebugSaveStitched {
		t.Fatalf("expected debug save stitched enabled")
	}
}

func TestLoadIgnoresMalformedOverrides(t *testing.T) {
	t.Setenv("SCRIBE_TRANSCRIBE_ATTEMPTS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Transcription.Attempts != 3 {
		t.Fatalf("expected fallback to default on malformed override, got %d", cfg.Transcription.Attempts)
	}
}
