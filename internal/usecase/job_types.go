package usecase

import (
	"sync"
	"time"

	"whisperdesk/internal/domain"
	"whisperdesk/internal/ports"
)

type job struct {
	id        string
	cancel    func()
	session   ports.ScriptSession
	workspace ports.Workspace
	done      chan struct{}

	mu         sync.Mutex
	status     domain.JobStatus
	resultFile string
	cancelled  bool
}

func (j *job) snapshot() domain.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// advance records a stage and returns the resulting progress.
func (j *job) advance(marker domain.Marker) domain.Progress {
	j.mu.Lock()
	defer j.mu.Unlock()

	if percent, ok := marker.Stage.Percent(); ok && percent >= j.status.Percent {
		j.status.Percent = percent
	}
	j.status.Stage = marker.Stage
	if marker.Stage == domain.StageSaved && marker.Detail != "" {
		j.resultFile = marker.Detail
	}
	return domain.Progress{
		JobID:   j.id,
		Stage:   marker.Stage,
		Percent: j.status.Percent,
		Detail:  marker.Detail,
	}
}

func (j *job) markCancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.State.Terminal() {
		return false
	}
	j.cancelled = true
	return true
}

func (j *job) wasCancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}

func (j *job) result() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.resultFile
}

func (j *job) finish(state domain.JobState, message string, at time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status.State = state
	j.status.Message = message
	j.status.FinishedAt = at
	if state == domain.JobStateCompleted {
		j.status.Percent = 100
	}
}
