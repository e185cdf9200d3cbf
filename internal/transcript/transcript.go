package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
)

// DefaultConfidenceThreshold marks words the UI should flag for review.
const DefaultConfidenceThreshold = 0.5

// ResultSuffix is appended to the audio base name by the pipeline.
const ResultSuffix = "_transcript.json"

var ErrEmptyTranscript = errors.New("transcript contains no sentences")

// Word is one aligned word. Timing and confidence may be absent when
// alignment failed for that token.
type Word struct {
	Word       string   `json:"word"`
	Start      *float64 `json:"start"`
	End        *float64 `json:"end"`
	Confidence *float64 `json:"confidence"`
}

// Sentence is one segment of the aligned output.
type Sentence struct {
	Start    *float64 `json:"start"`
	End      *float64 `json:"end"`
	Sentence string   `json:"sentence"`
	Words    []Word   `json:"words"`
}

// Transcript is the full pipeline result.
type Transcript []Sentence

// Response is handed to the frontend once a job finishes.
type Response struct {
	Transcription string `json:"transcription" yaml:"transcription"`
	ProjectDir    string `json:"project_dir" yaml:"project_dir"`
	JSONFile      string `json:"json_file" yaml:"json_file"`
}

// ResultPath returns where the pipeline writes its JSON for audioPath.
func ResultPath(audioPath string) string {
	ext := filepath.Ext(audioPath)
	return strings.TrimSuffix(audioPath, ext) + ResultSuffix
}

// Parse decodes pipeline JSON.
func Parse(data []byte) (Transcript, error) {
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	if t == nil {
		return nil, ErrEmptyTranscript
	}
	return t, nil
}

// Load reads and validates a transcript file.
func Load(path string) (Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript %q: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// LoadResponse reads a transcript file and wraps it for the frontend.
func LoadResponse(path string) (Response, error) {
	t, err := Load(path)
	if err != nil {
		return Response{}, err
	}
	return NewResponse(t, filepath.Dir(path), path)
}

// NewResponse serialises t into the frontend response shape.
func NewResponse(t Transcript, projectDir string, jsonFile string) (Response, error) {
	encoded, err := json.Marshal(t)
	if err != nil {
		return Response{}, fmt.Errorf("encode transcript: %w", err)
	}
	return Response{
		Transcription: string(encoded),
		ProjectDir:    projectDir,
		JSONFile:      jsonFile,
	}, nil
}

// Text joins all sentences into plain text.
func (t Transcript) Text() string {
	parts := lo.FilterMap(t, func(s Sentence, _ int) (string, bool) {
		text := strings.TrimSpace(s.Sentence)
		return text, text != ""
	})
	return strings.Join(parts, " ")
}

// Words flattens the transcript.
func (t Transcript) Words() []Word {
	return lo.FlatMap(t, func(s Sentence, _ int) []Word {
		return s.Words
	})
}

// LowConfidence returns words below threshold. Words without a score are
// always included.
func (t Transcript) LowConfidence(threshold float64) []Word {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return lo.Filter(t.Words(), func(w Word, _ int) bool {
		return w.Confidence == nil || *w.Confidence < threshold
	})
}
