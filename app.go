package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"whisperdesk/internal/bootstrap"
	"whisperdesk/internal/config"
	"whisperdesk/internal/domain"
	"whisperdesk/internal/transcript"
	"whisperdesk/internal/usecase"
)

const (
	eventProgress = "whisperdesk:progress"
	eventLog      = "whisperdesk:log"
	eventComplete = "whisperdesk:complete"
	eventError    = "whisperdesk:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	dispatcher  *usecase.Dispatcher
	jobs        *usecase.JobController
	cfg         config.Config
	interpreter string
	bootErr     error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.JobFailed("", domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.dispatcher = services.Dispatcher
	a.jobs = services.Jobs
	a.interpreter = services.Launcher.Interpreter()
}

func (a *App) shutdown(_ context.Context) {
	if a.jobs != nil {
		a.jobs.Shutdown()
	}
}

// Greet returns a greeting for the given name.
func (a *App) Greet(name string) string {
	return fmt.Sprintf("Hello, %s! You've been greeted from Go!", name)
}

// RunPython runs the hello script and returns its stdout.
func (a *App) RunPython(name string) (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	return a.dispatcher.RunHello(a.ctx, name)
}

// ProcessAudioChunk runs the chunk script on a base64 audio payload.
func (a *App) ProcessAudioChunk(payload domain.AudioPayload) (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	return a.dispatcher.ProcessAudioChunk(a.ctx, payload)
}

// TranscribeFile starts a background transcription job.
func (a *App) TranscribeFile(audioPath string, modelSize string) (domain.JobTicket, error) {
	if err := a.requireReady(); err != nil {
		return domain.JobTicket{}, err
	}
	ticket, err := a.jobs.Start(a.ctx, audioPath, modelSize)
	if err != nil {
		a.JobFailed("", startErrorCode(err), err.Error())
		return domain.JobTicket{}, err
	}
	return ticket, nil
}

// CancelTranscription stops a running job.
func (a *App) CancelTranscription(jobID string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.jobs.Cancel(jobID)
}

// GetJobStatus returns the current status of a job.
func (a *App) GetJobStatus(jobID string) (domain.JobStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.JobStatus{}, err
	}
	return a.jobs.Status(jobID)
}

// ListJobs returns every known job ordered by start time.
func (a *App) ListJobs() ([]domain.JobStatus, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.jobs.List(), nil
}

// LoadTranscript reads a transcript JSON file saved by an earlier run.
func (a *App) LoadTranscript(jsonFile string) (transcript.Response, error) {
	if err := a.requireReady(); err != nil {
		return transcript.Response{}, err
	}
	return transcript.LoadResponse(strings.TrimSpace(jsonFile))
}

// LowConfidenceWords lists words the model was unsure about.
func (a *App) LowConfidenceWords(t transcript.Transcript, threshold float64) []transcript.Word {
	return t.LowConfidence(threshold)
}

// SelectAudioFile opens a native file picker. An empty path means the user cancelled.
func (a *App) SelectAudioFile() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	return runtime.OpenFileDialog(a.ctx, runtime.OpenDialogOptions{
		Title: "Select audio file",
		Filters: []runtime.FileFilter{
			{DisplayName: "Audio files", Pattern: audioFilePattern},
			{DisplayName: "All files", Pattern: "*.*"},
		},
	})
}

const audioFilePattern = "*.wav;*.mp3;*.m4a;*.flac;*.ogg;*.opus;*.webm;*.aac;*.mp4"

// LoadConfig returns non-sensitive config for the UI.
func (a *App) LoadConfig() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error(), "version": version}
	}

	return map[string]string{
		"interpreter":  a.interpreter,
		"scriptsDir":   a.cfg.Python.ScriptsDir,
		"projectsDir":  a.cfg.Projects.Root,
		"defaultModel": a.cfg.Transcribe.DefaultModel,
		"configFile":   a.cfg.FileUsed,
		"version":      version,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.dispatcher == nil || a.jobs == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// JobProgress emits pipeline stage updates to the frontend.
func (a *App) JobProgress(progress domain.Progress) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventProgress, map[string]any{
		"jobId":   progress.JobID,
		"stage":   string(progress.Stage),
		"percent": progress.Percent,
		"message": stageMessage(progress.Stage, progress.Detail),
		"detail":  progress.Detail,
	})
}

// JobLog relays a raw script output line.
func (a *App) JobLog(jobID string, line string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventLog, map[string]string{"jobId": jobID, "line": line})
}

// JobCompleted emits the finished transcript.
func (a *App) JobCompleted(jobID string, response transcript.Response) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventComplete, map[string]any{
		"jobId":    jobID,
		"response": response,
	})
}

// JobFailed emits backend errors to the UI.
func (a *App) JobFailed(jobID string, code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"jobId":   jobID,
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func startErrorCode(err error) domain.ErrorCode {
	switch {
	case errors.Is(err, usecase.ErrInvalidModelSize), errors.Is(err, usecase.ErrWorkspace):
		return domain.ErrorCodeInvalidInput
	case errors.Is(err, usecase.ErrControllerClosed):
		return domain.ErrorCodeStartup
	default:
		return domain.ErrorCodeSpawn
	}
}

func stageMessage(stage domain.Stage, detail string) string {
	switch stage {
	case domain.StageStarted:
		return "Preparing audio"
	case domain.StageLoadingModel:
		return "Loading Whisper model"
	case domain.StageTranscribing:
		return "Transcribing audio"
	case domain.StageLanguageDetected:
		if detail != "" {
			return "Detected language: " + detail
		}
		return "Language detected"
	case domain.StageAligning:
		return "Aligning words"
	case domain.StageFormatting:
		return "Formatting results"
	case domain.StageSaved:
		return "Transcript saved"
	case domain.StageComplete:
		return "Transcription complete"
	default:
		return string(stage)
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeInvalidInput:
		return "Invalid input"
	case domain.ErrorCodeSpawn:
		return "Could not start the transcription script"
	case domain.ErrorCodeScriptFailed:
		return "Transcription script failed"
	case domain.ErrorCodeResultInvalid:
		return "Transcript output is missing or invalid"
	case domain.ErrorCodeCancelled:
		return "Transcription cancelled"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
