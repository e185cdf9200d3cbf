package domain

import "time"

// JobState models the background transcription lifecycle.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateCancelled:
		return true
	default:
		return false
	}
}

// Stage is a pipeline step recognised from script output.
type Stage string

const (
	StageStarted          Stage = "started"
	StageLoadingModel     Stage = "loading_model"
	StageTranscribing     Stage = "transcribing"
	StageLanguageDetected Stage = "language_detected"
	StageAligning         Stage = "aligning"
	StageFormatting       Stage = "formatting"
	StageSaved            Stage = "saved"
	StageComplete         Stage = "complete"
)

var stagePercent = map[Stage]int{
	StageStarted:          0,
	StageLoadingModel:     10,
	StageTranscribing:     30,
	StageLanguageDetected: 50,
	StageAligning:         60,
	StageFormatting:       85,
	StageSaved:            95,
	StageComplete:         100,
}

// Percent returns the progress value for a known stage.
func (s Stage) Percent() (int, bool) {
	p, ok := stagePercent[s]
	return p, ok
}

// ErrorCode identifies backend errors reported to the UI.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeInvalidInput  ErrorCode = "invalid_input"
	ErrorCodeSpawn         ErrorCode = "spawn_failed"
	ErrorCodeScriptFailed  ErrorCode = "script_failed"
	ErrorCodeResultInvalid ErrorCode = "result_invalid"
	ErrorCodeCancelled     ErrorCode = "cancelled"
)

// Marker is a classified line of pipeline output.
type Marker struct {
	Stage  Stage  `json:"stage"`
	Detail string `json:"detail,omitempty"`
}

// Progress is emitted whenever a job reaches a new stage.
type Progress struct {
	JobID   string `json:"jobId"`
	Stage   Stage  `json:"stage"`
	Percent int    `json:"percent"`
	Detail  string `json:"detail,omitempty"`
}

// JobTicket is returned as soon as a background job is accepted.
type JobTicket struct {
	JobID      string `json:"jobId"`
	ProjectDir string `json:"projectDir"`
	AudioFile  string `json:"audioFile"`
}

// JobStatus summarizes a job for the UI.
type JobStatus struct {
	JobID      string    `json:"jobId"`
	State      JobState  `json:"state"`
	Stage      Stage     `json:"stage,omitempty"`
	Percent    int       `json:"percent"`
	Message    string    `json:"message,omitempty"`
	ModelSize  string    `json:"modelSize"`
	AudioFile  string    `json:"audioFile"`
	ProjectDir string    `json:"projectDir"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// AudioPayload carries a base64 encoded recording chunk from the frontend.
type AudioPayload struct {
	AudioData string `json:"audioData"`
}
