package config

import (
	"strconv"
	"strings"
	"time"

	"os"
)

// Config stores runtime configuration for the transcription core.
type Config struct {
	HTTP          HTTPConfig
	Session       SessionConfig
	Stitch        StitchConfig
	Transcription TranscriptionConfig
	Store         StoreConfig
	Database      DatabaseConfig
}

type HTTPConfig struct {
	Addr string
}

// SessionConfig bounds per-session buffering and chunk timing (§6).
type SessionConfig struct {
	ChunkPeriod     time.Duration
	MinFragmentBytes int64
	MaxSessionBytes  int64
}

// StitchConfig bounds the stitcher's gating thresholds and tool invocation
// limits (§4.5, §5).
type StitchConfig struct {
	MinStitchBytes    int64
	SilenceEnergy     float64
	SilenceMaxBytes   int64
	FFmpegCommand     string
	FFprobeCommand    string
	ToolTimeout       time.Duration
	ToolTimeoutFilter time.Duration
	ToolStdoutMax     int64
	DebugSaveStitched bool
}

// TranscriptionConfig bounds the transcription gateway's context window and
// retry policy (§4.6, §6).
type TranscriptionConfig struct {
	Model           string
	TranscriberURL  string
	ContextChunks   int
	ContextChars    int
	Attempts        int
	RetryBase       time.Duration
	SummarizerURL   string
	SummarizerModel string
}

// StoreConfig configures the durable fragment store's on-disk layout and
// retention sweep (§4.3).
type StoreConfig struct {
	Root      string
	Retention time.Duration
}

type DatabaseConfig struct {
	Path string
}

// Load resolves configuration from environment variables and the defaults
// enumerated in §6 of the component spec.
func Load() (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Addr: envOrDefault("SCRIBE_HTTP_ADDR", ":8080"),
		},
		Session: SessionConfig{
			ChunkPeriod:      envOrDefaultDuration("SCRIBE_CHUNK_PERIOD", 30*time.Second),
			MinFragmentBytes: envOrDefaultInt64("SCRIBE_MIN_FRAGMENT_BYTES", 1024),
			MaxSessionBytes:  envOrDefaultInt64("SCRIBE_MAX_SESSION_BYTES", 2*1024*1024*1024),
		},
		Stitch: StitchConfig{
			MinStitchBytes:    envOrDefaultInt64("SCRIBE_MIN_STITCH_BYTES", 10*1024),
			SilenceEnergy:     envOrDefaultFloat("SCRIBE_SILENCE_ENERGY", 0.02),
			SilenceMaxBytes:   envOrDefaultInt64("SCRIBE_SILENCE_MAX_BYTES", 40*1024),
			FFmpegCommand:     envOrDefault("SCRIBE_FFMPEG_COMMAND", "ffmpeg"),
			FFprobeCommand:    envOrDefault("SCRIBE_FFPROBE_COMMAND", "ffprobe"),
			ToolTimeout:       envOrDefaultDuration("SCRIBE_TOOL_TIMEOUT", 30*time.Second),
			ToolTimeoutFilter: envOrDefaultDuration("SCRIBE_TOOL_TIMEOUT_FILTER", 60*time.Second),
			ToolStdoutMax:     envOrDefaultInt64("SCRIBE_TOOL_STDOUT_MAX", 10*1024*1024),
			DebugSaveStitched: envOrDefaultBool("SCRIBE_DEBUG_SAVE_STITCHED", false),
		},
		Transcription: TranscriptionConfig{
			Model:           envOrDefault("SCRIBE_TRANSCRIBER_MODEL", "standard"),
			TranscriberURL:  strings.TrimSpace(os.Getenv("SCRIBE_TRANSCRIBER_URL")),
			ContextChunks:   envOrDefaultInt("SCRIBE_CONTEXT_CHUNKS", 5),
			ContextChars:    envOrDefaultInt("SCRIBE_CONTEXT_CHARS", 500),
			Attempts:        envOrDefaultInt("SCRIBE_TRANSCRIBE_ATTEMPTS", 3),
			RetryBase:       envOrDefaultDuration("SCRIBE_RETRY_BASE", 2*time.Second),
			SummarizerURL:   strings.TrimSpace(os.Getenv("SCRIBE_SUMMARIZER_URL")),
			SummarizerModel: envOrDefault("SCRIBE_SUMMARIZER_MODEL", "standard"),
		},
		Store: StoreConfig{
			Root:      envOrDefault("SCRIBE_STORE_ROOT", "sessions"),
			Retention: envOrDefaultDuration("SCRIBE_RETENTION", 7*24*time.Hour),
		},
		Database: DatabaseConfig{
			Path: envOrDefault("SCRIBE_DB_PATH", "scribecore.db"),
		},
	}

	if cfg.Session.ChunkPeriod <= 0 {
		cfg.Session.ChunkPeriod = 30 * time.Second
	}
	if cfg.Transcription.Attempts <= 0 {
		cfg.Transcription.Attempts = 3
	}
	if cfg.Transcription.ContextChunks <= 0 {
		cfg.Transcription.ContextChunks = 5
	}
	if cfg.Transcription.ContextChars <= 0 {
		cfg.Transcription.ContextChars = 500
	}

	return cfg, nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
