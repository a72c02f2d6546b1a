package transcription

import "testing"

func TestPostProcessStripsRefusalPreamble(t *testing.T) {
	raw := "Here's the transcription: [Speaker 1]: hello there, how are you doing today"
	got := PostProcess(raw, "")
	if got != "[Speaker 1]: hello there, how are you doing today" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestPostProcessFallsBackToUnclearWhenNoSpeakerLabel(t *testing.T) {
	raw := "I cannot process audio files directly."
	got := PostProcess(raw, "")
	if got != "[unclear]" {
		t.Fatalf("expected [unclear], got %q", got)
	}
}

func TestPostProcessDedupsConsecutiveLines(t *testing.T) {
	raw := "[Speaker 1]: hello there\n[Speaker 1]: hello there\n[Speaker 1]: goodbye now"
	got := PostProcess(raw, "")
	want := "[Speaker 1]: hello there\n[Speaker 1]: goodbye now"
	if got != want {
		t.Fatalf("expected dedup, got %q", got)
	}
}

func TestPostProcessCollapsesRepeatedFiveWordWindow(t *testing.T) {
	phrase := "the quick brown fox jumps "
	raw := ""
	for i := 0; i < 6; i++ {
		raw += phrase
	}
	got := PostProcess(raw, "")
	want := "the quick brown fox jumps"
	if got != want {
		t.Fatalf("expected collapsed repetition, got %q", got)
	}
}

func TestPostProcessReturnsSilenceForAllNonVerbalShortText(t *testing.T) {
	raw := "[Speaker 1]: [silence]"
	got := PostProcess(raw, "")
	if got != "[silence]" {
		t.Fatalf("expected [silence], got %q", got)
	}
}

func TestPostProcessReturnsSilenceForEmptyText(t *testing.T) {
	got := PostProcess("   ", "")
	if got != "[silence]" {
		t.Fatalf("expected [silence] for empty text, got %q", got)
	}
}

func TestPostProcessStripsPromptEcho(t *testing.T) {
	prompt := "Transcribe this literally."
	raw := prompt + "[Speaker 1]: the actual spoken words follow here"
	got := PostProcess(raw, prompt)
	if got != "[Speaker 1]: the actual spoken words follow here" {
		t.Fatalf("expected prompt echo stripped, got %q", got)
	}
}

func TestBuildContextDropsShortAndSilentChunks(t *testing.T) {
	chunks := []string{"[silence]", "hi", "a genuinely substantive chunk of text here"}
	got := BuildContext(chunks, 500)
	if got != "a genuinely substantive chunk of text here" {
		t.Fatalf("unexpected context: %q", got)
	}
}

func TestBuildContextTailCropsToCharBudget(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "0123456789"
	}
	got := BuildContext([]string{long}, 50)
	if len(got) != 50 {
		t.Fatalf("expected 50-char tail crop, got len=%d", len(got))
	}
	if got != long[len(long)-50:] {
		t.Fatalf("expected tail crop to match suffix")
	}
}

func TestBuildContextEmptyWhenNoSubstantiveChunks(t *testing.T) {
	got := BuildContext([]string{"[silence]", "hi"}, 500)
	if got != "" {
		t.Fatalf("expected empty context, got %q", got)
	}
}
