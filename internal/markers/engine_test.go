package markers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"whisperdesk/internal/domain"
)

func TestEngineMatchesPipelineLog(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine("")
	if err != nil {
		t.Fatalf("new engine failed: %v", err)
	}

	cases := []struct {
		line   string
		stage  domain.Stage
		detail string
	}{
		{"2025-03-01 10:00:00,101 [INFO] Audio file: /tmp/p/talk.mp3", domain.StageStarted, "/tmp/p/talk.mp3"},
		{"2025-03-01 10:00:00,102 [INFO] Loading Whisper model 'base' on cpu with compute_type=float32...", domain.StageLoadingModel, ""},
		{"2025-03-01 10:00:01,000 [INFO] Transcribing audio with WhisperX...", domain.StageTranscribing, ""},
		{"2025-03-01 10:00:09,000 [INFO] Detected language: en", domain.StageLanguageDetected, "en"},
		{"2025-03-01 10:00:09,500 [INFO] Aligning words with confidence...", domain.StageAligning, ""},
		{"2025-03-01 10:00:12,000 [INFO] Formatting results for JSON export...", domain.StageFormatting, ""},
		{"2025-03-01 10:00:12,100 [INFO] Transcription JSON saved to /tmp/p/talk_transcript.json", domain.StageSaved, "/tmp/p/talk_transcript.json"},
		{"2025-03-01 10:00:12,101 [INFO] Pipeline complete.", domain.StageComplete, ""},
		{"pipeline COMPLETE", domain.StageComplete, ""},
	}

	for _, tc := range cases {
		marker, ok := engine.Match(tc.line)
		if !ok {
			t.Fatalf("expected match for %q", tc.line)
		}
		if marker.Stage != tc.stage || marker.Detail != tc.detail {
			t.Fatalf("unexpected marker for %q: %+v", tc.line, marker)
		}
	}
}

func TestEnginePathsDoNotTriggerOtherStages(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine("")
	if err != nil {
		t.Fatalf("new engine failed: %v", err)
	}

	saved := "/home/ada/Transcribing audio/Pipeline complete/talk_transcript.json"
	marker, ok := engine.Match("2025-03-01 10:00:12,100 [INFO] Transcription JSON saved to " + saved)
	if !ok || marker.Stage != domain.StageSaved || marker.Detail != saved {
		t.Fatalf("unexpected saved marker: %+v", marker)
	}

	audio := "/home/ada/Loading Whisper model/talk.mp3"
	marker, ok = engine.Match("Audio file: " + audio)
	if !ok || marker.Stage != domain.StageStarted || marker.Detail != audio {
		t.Fatalf("unexpected started marker: %+v", marker)
	}
}

func TestEngineIgnoresUnrelatedLines(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine("")
	if err != nil {
		t.Fatalf("new engine failed: %v", err)
	}

	for _, line := range []string{
		"",
		"   ",
		"2025-03-01 10:00:00,102 [INFO] Whisper model size: base",
		"Lightning automatically upgraded your loaded checkpoint",
	} {
		if marker, ok := engine.Match(line); ok {
			t.Fatalf("unexpected match for %q: %+v", line, marker)
		}
	}
}

func TestEngineCustomRulesTakePriority(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "custom.markers")
	contents := strings.Join([]string{
		"# diarization stage added by a forked script",
		"Diarizing speakers => diarizing",
		`s#Loading Whisper model '(\w+)'#model_warmup#`,
	}, "\n")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	engine, err := NewEngine(path)
	if err != nil {
		t.Fatalf("new engine failed: %v", err)
	}

	marker, ok := engine.Match("Diarizing speakers...")
	if !ok || marker.Stage != "diarizing" {
		t.Fatalf("expected custom stage, got %+v ok=%v", marker, ok)
	}

	marker, ok = engine.Match("Loading Whisper model 'large' on cuda")
	if !ok || marker.Stage != "model_warmup" || marker.Detail != "large" {
		t.Fatalf("expected custom override, got %+v ok=%v", marker, ok)
	}

	marker, ok = engine.Match("Aligning words with confidence...")
	if !ok || marker.Stage != domain.StageAligning {
		t.Fatalf("expected built-in fallback, got %+v ok=%v", marker, ok)
	}
}

func TestNewEngineMissingFileUsesBuiltins(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(filepath.Join(t.TempDir(), "missing.markers"))
	if err != nil {
		t.Fatalf("expected missing file to be ignored: %v", err)
	}
	if _, ok := engine.Match("Pipeline complete."); !ok {
		t.Fatalf("expected built-in markers")
	}
}

func TestNewEngineRejectsInvalidRules(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"unsupported":   "not a marker\n",
		"empty_stage":   "Loading =>   \n",
		"bad_stage":     "Loading => two words\n",
		"empty_literal": " => stage\n",
		"bad_regex":     "s/([a-/stage/\n",
		"bad_flag":      "s/x/stage/q\n",
		"unterminated":  "s/abc/stage\n",
	}

	for name, contents := range cases {
		name := name
		contents := contents
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "bad.markers")
			if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
				t.Fatalf("write failed: %v", err)
			}
			if _, err := NewEngine(path); err == nil {
				t.Fatalf("expected parse error for %q", contents)
			}
		})
	}
}

func TestParseDelimitedEscapes(t *testing.T) {
	t.Parallel()

	value, pos, err := parseDelimited(`s/a\/b\d/stage/`, 2, '/')
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if value != `a/b\d` || pos != 9 {
		t.Fatalf("unexpected parse result: %q %d", value, pos)
	}
}
