package transcription

import (
	"regexp"
	"strings"
)

// refusalPreambles are transcriber outputs that self-describe rather than
// transcribe — the "pile of regexes" contract called out as load-bearing,
// not incidental, by the component design notes.
var refusalPreambles = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*i\s+cannot\s+process\s+audio[^.\n]*\.?\s*`),
	regexp.MustCompile(`(?i)^\s*i'?m\s+sorry,?\s+(but\s+)?i\s+(cannot|can't|am unable to)[^.\n]*\.?\s*`),
	regexp.MustCompile(`(?i)^\s*here'?s\s+the\s+transcription:?\s*`),
	regexp.MustCompile(`(?i)^\s*here\s+is\s+the\s+transcript(ion)?:?\s*`),
	regexp.MustCompile(`(?i)^\s*as\s+an\s+ai\s+language\s+model[^.\n]*\.?\s*`),
	regexp.MustCompile(`(?i)^\s*transcription:?\s*`),
}

var speakerLine = regexp.MustCompile(`(?m)^\s*\[Speaker\s+\d+\]\s*:.*$`)
var speakerOrNonVerbalLine = regexp.MustCompile(`^\s*\[Speaker\s+\d+\]\s*:\s*\[(silence|inaudible|non-verbal)\]\s*$`)

// PostProcess runs the 7-step scrub specified in §4.6, in order. It never
// returns an empty string — the final fallback is "[silence]".
func PostProcess(raw string, promptText string) string {
	text := raw

	// 1. Strip any leading echo of the prompt text.
	if promptText != "" {
		trimmedPrompt := strings.TrimSpace(promptText)
		trimmedText := strings.TrimSpace(text)
		if trimmedPrompt != "" && strings.HasPrefix(trimmedText, trimmedPrompt) {
			text = strings.TrimSpace(trimmedText[len(trimmedPrompt):])
		}
	}

	// 2. Remove common refusal preambles.
	hadRefusal := false
	for _, re := range refusalPreambles {
		if re.MatchString(text) {
			hadRefusal = true
			text = re.ReplaceAllString(text, "")
		}
	}

	// 3. If a refusal preamble was stripped and the cleaned text has no
	// speaker label, fall back to extracting the first speaker-labelled
	// line of the raw text; if none exists, return [unclear].
	if hadRefusal && !speakerLine.MatchString(text) {
		if match := speakerLine.FindString(raw); match != "" {
			text = match
		} else {
			return "[unclear]"
		}
	}

	text = strings.TrimSpace(text)

	// 4. Deduplicate immediately consecutive identical lines.
	text = dedupConsecutiveLines(text)

	// 5. Detect phrase-level hallucination: a 5-word window repeated >=4
	// times back to back collapses to its first instance. Repeats that are
	// not contiguous are left in place.
	text = collapseRepeatedWindow(text, 5, 4)

	// 6. If every non-empty line is a speaker/non-verbal marker and total
	// length < 200, this is silence.
	if isAllNonVerbal(text) && len(text) < 200 {
		return "[silence]"
	}

	// 7. Empty result is silence.
	if strings.TrimSpace(text) == "" {
		return "[silence]"
	}

	return text
}

func dedupConsecutiveLines(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	for i, line := range lines {
		if i > 0 && line == lines[i-1] {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// collapseRepeatedWindow keeps only the first instance of any run of
// windowSize consecutive words that repeats at least minRepeats times back
// to back.
func collapseRepeatedWindow(text string, windowSize int, minRepeats int) string {
	words := strings.Fields(text)
	if len(words) < windowSize*minRepeats {
		return text
	}

	var out []string
	i := 0
	for i < len(words) {
		if i+windowSize <= len(words) {
			window := words[i : i+windowSize]
			repeats := 1
			j := i + windowSize
			for j+windowSize <= len(words) && equalSlices(words[j:j+windowSize], window) {
				repeats++
				j += windowSize
			}
			if repeats >= minRepeats {
				out = append(out, window...)
				i = j
				continue
			}
		}
		out = append(out, words[i])
		i++
	}
	return strings.Join(out, " ")
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isAllNonVerbal(text string) bool {
	lines := strings.Split(text, "\n")
	sawAny := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		sawAny = true
		if !speakerOrNonVerbalLine.MatchString(trimmed) {
			return false
		}
	}
	return sawAny
}
