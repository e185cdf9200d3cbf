package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"whisperdesk/internal/domain"
	"whisperdesk/internal/ports"
	"whisperdesk/internal/transcript"
)

type fakeRunner struct {
	mu sync.Mutex

	result   ports.ScriptResult
	runErr   error
	sessions []*fakeSession
	startErr error

	runs   []ports.Invocation
	starts []ports.Invocation
}

func (f *fakeRunner) Run(_ context.Context, inv ports.Invocation) (ports.ScriptResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, inv)
	return f.result, f.runErr
}

func (f *fakeRunner) Start(_ context.Context, inv ports.Invocation) (ports.ScriptSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, inv)
	if f.startErr != nil {
		return nil, f.startErr
	}
	if len(f.starts) > len(f.sessions) {
		return nil, errors.New("no session configured")
	}
	return f.sessions[len(f.starts)-1], nil
}

// fakeSession emits queued lines, then blocks until finish or Stop.
type fakeSession struct {
	lines   chan string
	release chan error
	done    chan struct{}
	tail    string

	mu        sync.Mutex
	waitErr   error
	stopCalls int
	once      sync.Once
}

func newFakeSession(lines ...string) *fakeSession {
	s := &fakeSession{
		lines:   make(chan string, len(lines)+1),
		release: make(chan error, 1),
		done:    make(chan struct{}),
	}
	for _, line := range lines {
		s.lines <- line
	}
	go func() {
		err := <-s.release
		close(s.lines)
		s.mu.Lock()
		s.waitErr = err
		s.mu.Unlock()
		close(s.done)
	}()
	return s
}

func (s *fakeSession) exit(err error) {
	s.once.Do(func() { s.release <- err })
}

func (s *fakeSession) Lines() <-chan string { return s.lines }

func (s *fakeSession) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitErr
}

func (s *fakeSession) Stop() error {
	s.mu.Lock()
	s.stopCalls++
	s.mu.Unlock()
	s.exit(errors.New("script stopped"))
	<-s.done
	return nil
}

func (s *fakeSession) StderrTail() string { return s.tail }

func (s *fakeSession) stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

type fakeWorkspaces struct {
	dir string
	err error

	mu        sync.Mutex
	discarded []ports.Workspace
}

func (f *fakeWorkspaces) Create(audioPath string) (ports.Workspace, error) {
	if f.err != nil {
		return ports.Workspace{}, f.err
	}
	audio := filepath.Join(f.dir, filepath.Base(audioPath))
	return ports.Workspace{Dir: f.dir, AudioFile: audio, ResultFile: transcript.ResultPath(audio)}, nil
}

func (f *fakeWorkspaces) Discard(workspace ports.Workspace) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded = append(f.discarded, workspace)
	return nil
}

func (f *fakeWorkspaces) discards() []ports.Workspace {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ports.Workspace, len(f.discarded))
	copy(out, f.discarded)
	return out
}

type fakeEventSink struct {
	mu sync.Mutex

	progress  []domain.Progress
	logs      []string
	completed []completedEvent
	failed    []failedEvent
}

type completedEvent struct {
	jobID    string
	response transcript.Response
}

type failedEvent struct {
	jobID  string
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) JobProgress(progress domain.Progress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, progress)
}

func (f *fakeEventSink) JobLog(_ string, line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, line)
}

func (f *fakeEventSink) JobCompleted(jobID string, response transcript.Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, completedEvent{jobID: jobID, response: response})
}

func (f *fakeEventSink) JobFailed(jobID string, code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, failedEvent{jobID: jobID, code: code, detail: detail})
}

func (f *fakeEventSink) snapshotProgress() []domain.Progress {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Progress, len(f.progress))
	copy(out, f.progress)
	return out
}

func (f *fakeEventSink) snapshotFailed() []failedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]failedEvent, len(f.failed))
	copy(out, f.failed)
	return out
}

func (f *fakeEventSink) snapshotCompleted() []completedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]completedEvent, len(f.completed))
	copy(out, f.completed)
	return out
}

func (f *fakeEventSink) snapshotLogs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.logs))
	copy(out, f.logs)
	return out
}
