// Package summarizer implements the narrow Summarizer collaborator (§6)
// plus the hallucination scrub applied to its output during finalization
// (§4.7): unsolicited phrases the model sometimes injects that never
// appeared in the source transcript.
package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Config controls the default HTTP-backed summarizer.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{Model: "standard", Timeout: 45 * time.Second}
}

// HTTPSummarizer is a default ports.Summarizer implementation calling a
// JSON HTTP endpoint. The upstream model itself is out of scope (§1).
type HTTPSummarizer struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *HTTPSummarizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &HTTPSummarizer{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type summarizeRequest struct {
	Model      string `json:"model"`
	Transcript string `json:"transcript"`
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

func (s *HTTPSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	if s.cfg.BaseURL == "" {
		return "", fmt.Errorf("summarizer: no base url configured")
	}

	body, err := json.Marshal(summarizeRequest{Model: s.cfg.Model, Transcript: transcript})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/summarize", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("summarizer request failed: %s", resp.Status)
	}

	var parsed summarizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}

	return parsed.Summary, nil
}

// hallucinatedPhrases are summary fragments known to be injected by models
// regardless of the transcript's actual content — audiobook/narration
// framing the transcript never establishes (§4.7, §9).
var hallucinatedPhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bthe\s+narrator\s+(thanked|reads?)\b[^.]*\.?`),
	regexp.MustCompile(`(?i)\bthis\s+audiobook\b[^.]*\.?`),
	regexp.MustCompile(`(?i)\bthanked\s+the\s+listener[^.]*s?\.?`),
	regexp.MustCompile(`(?i)\bin\s+this\s+(podcast|episode)\s+episode\b[^.]*\.?`),
}

// ScrubHallucinations strips summary phrasing that references framing
// never present in the transcript (audiobook/podcast narration, thanking
// "the listener"), and collapses whitespace left behind. If the transcript
// mentions any of "audiobook", "narrator", "podcast" or "listener", no
// phrase is stripped at all; the check is not made per phrase.
func ScrubHallucinations(summary, transcript string) string {
	out := summary
	for _, re := range hallucinatedPhrases {
		if containsAny(transcript, "audiobook", "narrator", "podcast", "listener") {
			continue // some framing keyword appears in the transcript; keep every phrase
		}
		out = re.ReplaceAllString(out, "")
	}
	out = collapseWhitespace(out)
	if out == "" {
		return summary
	}
	return out
}

var whitespaceRun = regexp.MustCompile(`[ \t]{2,}`)
var blankLines = regexp.MustCompile(`\n{3,}`)

func collapseWhitespace(s string) string {
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func containsAny(haystack string, needles ...string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}
