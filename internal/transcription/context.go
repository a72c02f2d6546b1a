package transcription

import "strings"

// BuildContext implements the rolling-context window (§4.6, GLOSSARY): the
// last K persisted chunk texts, with pure silence/inaudible markers and
// anything shorter than 15 characters dropped, joined and tail-cropped to
// charBudget characters.
func BuildContext(lastChunkTexts []string, charBudget int) string {
	var substantive []string
	for _, text := range lastChunkTexts {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || trimmed == "[silence]" || trimmed == "[inaudible]" || trimmed == "[unclear]" {
			continue
		}
		if len(trimmed) < 15 {
			continue
		}
		substantive = append(substantive, trimmed)
	}

	if len(substantive) == 0 {
		return ""
	}

	joined := strings.Join(substantive, " ")
	if len(joined) > charBudget {
		joined = joined[len(joined)-charBudget:]
	}
	return joined
}

// BuildPrompt assembles the transcriber instruction, prepending the rolling
// context with a do-not-repeat instruction when one exists (§4.6).
func BuildPrompt(rollingContext string) string {
	const instruction = "Transcribe this audio literally. Label each utterance as " +
		"\"[Speaker N]: ...\". Emit \"[silence]\" or \"[inaudible]\" when there is no " +
		"or unclear speech. Do not repeat any previously-transcribed text."

	if rollingContext == "" {
		return instruction
	}

	return "Previous context (do not repeat this): " + rollingContext + "\n\n" + instruction
}
