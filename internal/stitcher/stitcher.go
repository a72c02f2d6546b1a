// Package stitcher turns an ordered batch of audio fragments into a single
// decodable MP3 payload (§4.5). Fragmented container streams — notably
// WebM-Opus from browser recorders — cannot be naively byte-concatenated,
// because the EBML header only appears in the first fragment; the stitcher
// tries three strategies in order of preference and verifies whichever one
// succeeds.
package stitcher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"scribecore/internal/domain"
	"scribecore/internal/log"
	"scribecore/internal/metrics"
)

// Config bounds tool invocation (§5, §6).
type Config struct {
	FFmpegCommand     string
	FFprobeCommand    string
	ToolTimeout       time.Duration
	ToolTimeoutFilter time.Duration
	ToolStdoutMax     int64
	DebugSaveStitched bool
	Metrics           *metrics.Metrics
}

// Fragment is one in-memory fragment payload plus its container hint, in
// arrival order.
type Fragment struct {
	Payload   []byte
	Container domain.ContainerHint
}

// Result is the outcome of a successful stitch.
type Result struct {
	MP3  []byte
	Hash string // sha256 of the combined pre-stitch bytes
}

// Stitcher runs the strategy table over a batch of fragments.
type Stitcher struct {
	cfg Config
}

func New(cfg Config) *Stitcher {
	if cfg.FFmpegCommand == "" {
		cfg.FFmpegCommand = "ffmpeg"
	}
	if cfg.FFprobeCommand == "" {
		cfg.FFprobeCommand = "ffprobe"
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 30 * time.Second
	}
	if cfg.ToolTimeoutFilter <= 0 {
		cfg.ToolTimeoutFilter = 60 * time.Second
	}
	if cfg.ToolStdoutMax <= 0 {
		cfg.ToolStdoutMax = 10 * 1024 * 1024
	}
	return &Stitcher{cfg: cfg}
}

// CombinedHash computes sha256 over the concatenation of fragment payloads
// in order, used by callers for duplicate-batch suppression (§4.5).
func CombinedHash(fragments []Fragment) string {
	h := sha256.New()
	for _, f := range fragments {
		h.Write(f.Payload)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Stitch runs the strategy table: filter-graph concat, then transcode-then-
// concat, then streaming pipe, then raw-byte forward as a last resort. Each
// strategy's output is verified before being returned.
func (s *Stitcher) Stitch(ctx context.Context, sessionID string, fragments []Fragment, debugDir string) (Result, error) {
	logger := log.WithComponent("stitcher")

	if allWebM(fragments) && len(fragments) > 1 {
		if out, err := s.filterGraphConcat(ctx, fragments); err == nil {
			if verr := s.verify(ctx, out); verr == nil {
				s.recordAttempt("filter_graph", "success")
				return s.finish(out, fragments, debugDir)
			} else {
				s.recordAttempt("filter_graph", "verify_failed")
				logger.Warn().Err(verr).Str("session_id", sessionID).Msg("filter-graph output failed verification")
			}
		} else {
			s.recordAttempt("filter_graph", "failed")
			logger.Warn().Err(err).Str("session_id", sessionID).Msg("filter-graph concat failed, trying transcode-then-concat")
		}

		if out, err := s.transcodeThenConcat(ctx, fragments); err == nil {
			if verr := s.verify(ctx, out); verr == nil {
				s.recordAttempt("transcode_then_concat", "success")
				return s.finish(out, fragments, debugDir)
			} else {
				s.recordAttempt("transcode_then_concat", "verify_failed")
				logger.Warn().Err(verr).Str("session_id", sessionID).Msg("transcode-then-concat output failed verification")
			}
		} else {
			s.recordAttempt("transcode_then_concat", "failed")
			logger.Warn().Err(err).Str("session_id", sessionID).Msg("transcode-then-concat failed, trying streaming pipe")
		}
	}

	if out, err := s.streamingPipe(ctx, fragments); err == nil {
		if verr := s.verify(ctx, out); verr == nil {
			s.recordAttempt("streaming_pipe", "success")
			return s.finish(out, fragments, debugDir)
		} else {
			s.recordAttempt("streaming_pipe", "verify_failed")
			logger.Warn().Err(verr).Str("session_id", sessionID).Msg("streaming pipe output failed verification")
		}
	} else {
		s.recordAttempt("streaming_pipe", "failed")
		logger.Warn().Err(err).Str("session_id", sessionID).Msg("streaming pipe failed, forwarding raw bytes")
	}

	// Last resort: forward the original bytes verbatim. The transcriber may
	// reject this; that is reported, not retried (§4.5 failure policy).
	var combined bytes.Buffer
	for _, f := range fragments {
		combined.Write(f.Payload)
	}
	if combined.Len() == 0 {
		s.recordAttempt("raw_forward", "failed")
		return Result{}, domain.ErrStitchFailed
	}
	s.recordAttempt("raw_forward", "success")
	return s.finish(combined.Bytes(), fragments, debugDir)
}

func (s *Stitcher) recordAttempt(strategy, outcome string) {
	if s.cfg.Metrics == nil {
		return
	}
	s.cfg.Metrics.StitchAttempts.WithLabelValues(strategy, outcome).Inc()
}

func (s *Stitcher) finish(mp3 []byte, fragments []Fragment, debugDir string) (Result, error) {
	hash := CombinedHash(fragments)
	if s.cfg.DebugSaveStitched && debugDir != "" {
		if err := os.MkdirAll(debugDir, 0o755); err == nil {
			name := fmt.Sprintf("combined-%d.mp3", time.Now().UnixMilli())
			_ = os.WriteFile(filepath.Join(debugDir, name), mp3, 0o644)
		}
	}
	return Result{MP3: mp3, Hash: hash}, nil
}

func allWebM(fragments []Fragment) bool {
	for _, f := range fragments {
		if !f.Container.IsWebM() {
			return false
		}
	}
	return true
}

// filterGraphConcat invokes ffmpeg once, passing every fragment as a
// separate webm input, joined by a concat filter graph, encoded to MP3.
func (s *Stitcher) filterGraphConcat(ctx context.Context, fragments []Fragment) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "stitch-filtergraph-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	args := []string{"-nostdin", "-hide_banner", "-loglevel", "warning"}
	for i, f := range fragments {
		path := filepath.Join(tmpDir, fmt.Sprintf("frag-%03d.webm", i))
		if err := os.WriteFile(path, f.Payload, 0o644); err != nil {
			return nil, err
		}
		args = append(args, "-err_detect", "ignore_err", "-fflags", "+genpts", "-f", "webm", "-i", path)
	}

	n := len(fragments)
	filter := ""
	for i := 0; i < n; i++ {
		filter += fmt.Sprintf("[%d:a]", i)
	}
	filter += fmt.Sprintf("concat=n=%d:v=0:a=1[out]", n)

	outPath := filepath.Join(tmpDir, "out.mp3")
	args = append(args,
		"-filter_complex", filter,
		"-map", "[out]",
		"-ar", "16000", "-ac", "1", "-b:a", "64k",
		outPath,
	)

	if err := s.run(ctx, s.cfg.ToolTimeoutFilter, args); err != nil {
		return nil, err
	}
	return os.ReadFile(outPath)
}

// transcodeThenConcat transcodes each fragment to an intermediate MP3
// concurrently — a per-fragment failure is skipped, not fatal, as long as
// at least one fragment survives — then concatenates the survivors, in
// their original order, with the concat demuxer using stream copy.
func (s *Stitcher) transcodeThenConcat(ctx context.Context, fragments []Fragment) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "stitch-transcode-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	outPaths := make([]string, len(fragments))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range fragments {
		i, f := i, f
		g.Go(func() error {
			inPath := filepath.Join(tmpDir, fmt.Sprintf("frag-%03d.in", i))
			outPath := filepath.Join(tmpDir, fmt.Sprintf("frag-%03d.mp3", i))
			if err := os.WriteFile(inPath, f.Payload, 0o644); err != nil {
				return nil // per-fragment failure is not fatal
			}
			args := []string{
				"-nostdin", "-hide_banner", "-loglevel", "warning",
				"-err_detect", "ignore_err",
				"-i", inPath,
				"-ar", "16000", "-ac", "1", "-b:a", "64k",
				outPath,
			}
			if err := s.run(gctx, s.cfg.ToolTimeout, args); err != nil {
				return nil
			}
			mu.Lock()
			outPaths[i] = outPath
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // per-fragment errors are swallowed inside each goroutine

	var intermediates []string
	for _, p := range outPaths {
		if p != "" {
			intermediates = append(intermediates, p)
		}
	}
	if len(intermediates) == 0 {
		return nil, fmt.Errorf("transcode-then-concat: all fragments failed")
	}

	listPath := filepath.Join(tmpDir, "list.txt")
	var list bytes.Buffer
	for _, p := range intermediates {
		fmt.Fprintf(&list, "file '%s'\n", p)
	}
	if err := os.WriteFile(listPath, list.Bytes(), 0o644); err != nil {
		return nil, err
	}

	outPath := filepath.Join(tmpDir, "combined.mp3")
	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "warning",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-c", "copy", outPath,
	}
	if err := s.run(ctx, s.cfg.ToolTimeout, args); err != nil {
		return nil, err
	}
	return os.ReadFile(outPath)
}

// streamingPipe spawns ffmpeg once, feeding the combined raw bytes on
// stdin and reading MP3 from stdout. Used for a single fragment or a
// non-WebM container, and as the final fallback before raw forwarding.
func (s *Stitcher) streamingPipe(ctx context.Context, fragments []Fragment) ([]byte, error) {
	var combined bytes.Buffer
	for _, f := range fragments {
		combined.Write(f.Payload)
	}
	if combined.Len() == 0 {
		return nil, fmt.Errorf("streaming pipe: no input bytes")
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.ToolTimeout)
	defer cancel()

	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "warning",
		"-err_detect", "ignore_err",
		"-i", "pipe:0",
		"-ar", "16000", "-ac", "1", "-b:a", "64k",
		"-f", "mp3", "pipe:1",
	}
	cmd := exec.CommandContext(runCtx, s.cfg.FFmpegCommand, args...)
	cmd.Stdin = bytes.NewReader(combined.Bytes())

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// A broken pipe on early ffmpeg exit is tolerated if we still got
		// usable output bytes.
		if stdout.Len() > 0 {
			return stdout.Bytes(), nil
		}
		return nil, fmt.Errorf("streaming pipe: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}

func (s *Stitcher) run(ctx context.Context, timeout time.Duration, args []string) error {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.cfg.FFmpegCommand, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// verify checks the output is non-empty and, if ffprobe is available,
// probes its duration: a duration under 5s is logged as a warning and the
// bytes are still accepted. The probed duration never fails verification;
// it is not compared against the chunk period.
func (s *Stitcher) verify(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("stitched output is empty")
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.ToolTimeout)
	defer cancel()

	tmp, err := os.CreateTemp("", "verify-*.mp3")
	if err != nil {
		return nil // skip probing, bytes are non-empty, that's enough
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil
	}
	tmp.Close()

	cmd := exec.CommandContext(runCtx, s.cfg.FFprobeCommand,
		"-v", "error", "-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", tmp.Name())
	out, err := cmd.Output()
	if err != nil {
		return nil // probe tool unavailable; duration check is skipped, not failed
	}

	var duration float64
	if _, err := fmt.Sscanf(string(bytes.TrimSpace(out)), "%f", &duration); err != nil {
		return nil
	}
	if duration < 5 {
		log.WithComponent("stitcher").Warn().Float64("duration", duration).
			Msg("stitched output shorter than expected, forwarding anyway")
	}
	return nil
}
