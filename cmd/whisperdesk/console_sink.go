package main

import (
	"fmt"
	"io"
	"sync"

	"whisperdesk/internal/domain"
	"whisperdesk/internal/transcript"
)

// consoleSink prints job events for terminal use and keeps the final
// responses so the transcribe command can print them once the job ends.
type consoleSink struct {
	mu        sync.Mutex
	out       io.Writer
	responses map[string]transcript.Response
}

func newConsoleSink(out io.Writer) *consoleSink {
	return &consoleSink{out: out, responses: make(map[string]transcript.Response)}
}

func (s *consoleSink) JobProgress(progress domain.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if progress.Detail != "" {
		fmt.Fprintf(s.out, "[%3d%%] %s: %s\n", progress.Percent, progress.Stage, progress.Detail)
		return
	}
	fmt.Fprintf(s.out, "[%3d%%] %s\n", progress.Percent, progress.Stage)
}

func (s *consoleSink) JobLog(_ string, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "  | %s\n", line)
}

func (s *consoleSink) JobCompleted(jobID string, response transcript.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[jobID] = response
}

func (s *consoleSink) JobFailed(jobID string, code domain.ErrorCode, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "job %s failed (%s): %s\n", jobID, code, detail)
}

func (s *consoleSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *consoleSink) response(jobID string) (transcript.Response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	response, ok := s.responses[jobID]
	return response, ok
}
