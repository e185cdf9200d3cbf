package ports

import (
	"context"
	"time"

	"whisperdesk/internal/domain"
	"whisperdesk/internal/transcript"
)

// Invocation describes one external script run.
type Invocation struct {
	Script string
	Args   []string
	Stdin  []byte
}

// ScriptResult is the captured output of a blocking run.
type ScriptResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// ScriptSession is a running script whose stdout is consumed line by line.
type ScriptSession interface {
	Lines() <-chan string
	Wait() error
	Stop() error
	StderrTail() string
}

// ScriptRunner launches the external pipeline scripts.
type ScriptRunner interface {
	Run(ctx context.Context, inv Invocation) (ScriptResult, error)
	Start(ctx context.Context, inv Invocation) (ScriptSession, error)
}

// MarkerMatcher classifies pipeline output lines.
type MarkerMatcher interface {
	Match(line string) (domain.Marker, bool)
}

// Workspace is a per-job project directory.
type Workspace struct {
	Dir        string
	AudioFile  string
	ResultFile string
}

// WorkspaceFactory creates project directories for new jobs. Discard removes
// a workspace whose job never started.
type WorkspaceFactory interface {
	Create(audioPath string) (Workspace, error)
	Discard(workspace Workspace) error
}

// EventSink emits backend job events to the UI.
type EventSink interface {
	JobProgress(progress domain.Progress)
	JobLog(jobID string, line string)
	JobCompleted(jobID string, response transcript.Response)
	JobFailed(jobID string, code domain.ErrorCode, detail string)
}
