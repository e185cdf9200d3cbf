package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"whisperdesk/internal/domain"
	"whisperdesk/internal/ports"
)

var (
	ErrJobNotFound      = errors.New("transcription job not found")
	ErrInvalidModelSize = errors.New("unsupported whisper model size")
	ErrControllerClosed = errors.New("transcription jobs are shut down")
	ErrWorkspace        = errors.New("failed to prepare project")
)

var modelSizePattern = regexp.MustCompile(`^(?:(?:tiny|base|small|medium)(?:\.en)?|large(?:-v[1-3])?|large-v3-turbo|turbo)$`)

// JobConfig controls background transcription behavior.
type JobConfig struct {
	Script       string
	DefaultModel string
	RelayLogs    bool
}

// JobController runs the transcription pipeline as background jobs, one
// subprocess per job.
type JobController struct {
	runner     ports.ScriptRunner
	markers    ports.MarkerMatcher
	workspaces ports.WorkspaceFactory
	events     ports.EventSink
	log        *zap.Logger
	cfg        JobConfig

	newID func() string
	now   func() time.Time

	mu     sync.Mutex
	jobs   map[string]*job
	closed bool
	wg     sync.WaitGroup
}

func NewJobController(
	runner ports.ScriptRunner,
	markers ports.MarkerMatcher,
	workspaces ports.WorkspaceFactory,
	events ports.EventSink,
	log *zap.Logger,
	cfg JobConfig,
) *JobController {
	if cfg.Script == "" {
		cfg.Script = DefaultScripts().Pipeline
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "base"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &JobController{
		runner:     runner,
		markers:    markers,
		workspaces: workspaces,
		events:     events,
		log:        log.Named("jobs"),
		cfg:        cfg,
		newID:      uuid.NewString,
		now:        time.Now,
		jobs:       make(map[string]*job),
	}
}

// NormalizeModelSize lower-cases and validates a model size, falling back to
// fallback when empty.
func NormalizeModelSize(modelSize string, fallback string) (string, error) {
	model := strings.ToLower(strings.TrimSpace(modelSize))
	if model == "" {
		model = strings.ToLower(strings.TrimSpace(fallback))
	}
	if !modelSizePattern.MatchString(model) {
		return "", fmt.Errorf("%w: %q", ErrInvalidModelSize, modelSize)
	}
	return model, nil
}

// Start copies the audio into a new project and launches the pipeline in the
// background. The job lives until it finishes, is cancelled, or ctx ends.
func (c *JobController) Start(ctx context.Context, audioPath string, modelSize string) (domain.JobTicket, error) {
	model, err := NormalizeModelSize(modelSize, c.cfg.DefaultModel)
	if err != nil {
		return domain.JobTicket{}, err
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return domain.JobTicket{}, ErrControllerClosed
	}

	workspace, err := c.workspaces.Create(strings.TrimSpace(audioPath))
	if err != nil {
		return domain.JobTicket{}, fmt.Errorf("%w: %w", ErrWorkspace, err)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	session, err := c.runner.Start(jobCtx, ports.Invocation{
		Script: c.cfg.Script,
		Args:   []string{workspace.AudioFile, model},
	})
	if err != nil {
		cancel()
		c.discard(workspace)
		return domain.JobTicket{}, err
	}

	id := c.newID()
	active := &job{
		id:         id,
		cancel:     cancel,
		session:    session,
		workspace:  workspace,
		resultFile: workspace.ResultFile,
		done:       make(chan struct{}),
		status: domain.JobStatus{
			JobID:      id,
			State:      domain.JobStateRunning,
			ModelSize:  model,
			AudioFile:  workspace.AudioFile,
			ProjectDir: workspace.Dir,
			StartedAt:  c.now(),
		},
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		_ = session.Stop()
		c.discard(workspace)
		return domain.JobTicket{}, ErrControllerClosed
	}
	c.jobs[id] = active
	c.wg.Add(1)
	c.mu.Unlock()

	c.log.Info("transcription started",
		zap.String("job", id),
		zap.String("audio", workspace.AudioFile),
		zap.String("model", model),
	)

	go c.watchCancel(jobCtx, active)
	go c.run(active)

	return domain.JobTicket{JobID: id, ProjectDir: workspace.Dir, AudioFile: workspace.AudioFile}, nil
}

// Cancel stops a running job. Cancelling a finished job is a no-op.
func (c *JobController) Cancel(jobID string) error {
	active, err := c.get(jobID)
	if err != nil {
		return err
	}
	if active.markCancelled() {
		c.log.Info("cancelling transcription", zap.String("job", jobID))
		active.cancel()
	}
	return nil
}

// Status returns a snapshot of one job.
func (c *JobController) Status(jobID string) (domain.JobStatus, error) {
	active, err := c.get(jobID)
	if err != nil {
		return domain.JobStatus{}, err
	}
	return active.snapshot(), nil
}

// List returns all known jobs, oldest first.
func (c *JobController) List() []domain.JobStatus {
	c.mu.Lock()
	all := lo.Values(c.jobs)
	c.mu.Unlock()

	statuses := lo.Map(all, func(j *job, _ int) domain.JobStatus { return j.snapshot() })
	sort.SliceStable(statuses, func(a, b int) bool {
		if statuses[a].StartedAt.Equal(statuses[b].StartedAt) {
			return statuses[a].JobID < statuses[b].JobID
		}
		return statuses[a].StartedAt.Before(statuses[b].StartedAt)
	})
	return statuses
}

// Wait blocks until the job finishes or ctx ends.
func (c *JobController) Wait(ctx context.Context, jobID string) (domain.JobStatus, error) {
	active, err := c.get(jobID)
	if err != nil {
		return domain.JobStatus{}, err
	}
	select {
	case <-active.done:
		return active.snapshot(), nil
	case <-ctx.Done():
		return active.snapshot(), ctx.Err()
	}
}

// Shutdown cancels all running jobs and waits for their workers.
func (c *JobController) Shutdown() {
	c.mu.Lock()
	c.closed = true
	running := lo.Values(c.jobs)
	c.mu.Unlock()

	for _, active := range running {
		if active.markCancelled() {
			active.cancel()
		}
	}
	c.wg.Wait()
}

func (c *JobController) get(jobID string) (*job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	active, ok := c.jobs[strings.TrimSpace(jobID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return active, nil
}

func (c *JobController) discard(workspace ports.Workspace) {
	if err := c.workspaces.Discard(workspace); err != nil {
		c.log.Warn("failed to remove unused project", zap.String("dir", workspace.Dir), zap.Error(err))
	}
}

func (c *JobController) watchCancel(ctx context.Context, active *job) {
	select {
	case <-ctx.Done():
		active.markCancelled()
		_ = active.session.Stop()
	case <-active.done:
	}
}
