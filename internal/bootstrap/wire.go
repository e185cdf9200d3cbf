package bootstrap

import (
	"go.uber.org/zap"

	"whisperdesk/internal/config"
	"whisperdesk/internal/logging"
	"whisperdesk/internal/markers"
	"whisperdesk/internal/ports"
	"whisperdesk/internal/process"
	"whisperdesk/internal/project"
	"whisperdesk/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Config     config.Config
	Logger     *zap.Logger
	Launcher   *process.Launcher
	Projects   *project.Store
	Dispatcher *usecase.Dispatcher
	Jobs       *usecase.JobController
}

// Build wires all backend dependencies for the current runtime.
func Build(eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	log, err := logging.New(logging.Level(cfg.Log.Level), logging.Format(cfg.Log.Format))
	if err != nil {
		return Services{}, err
	}

	markerEngine, err := markers.NewEngine(cfg.Transcribe.MarkersFile)
	if err != nil {
		return Services{}, err
	}

	launcher := process.NewLauncher(process.Config{
		Interpreter:     process.ResolveInterpreter(cfg.Python.Interpreter, cfg.Python.ScriptsDir),
		ScriptsDir:      cfg.Python.ScriptsDir,
		StopGrace:       cfg.Process.StopGrace,
		StderrTailBytes: cfg.Process.StderrTailBytes,
	}, log)

	scripts := usecase.DefaultScripts()
	projects := project.NewStore(cfg.Projects.Root)

	jobs := usecase.NewJobController(
		launcher,
		markerEngine,
		projects,
		eventSink,
		log,
		usecase.JobConfig{
			Script:       scripts.Pipeline,
			DefaultModel: cfg.Transcribe.DefaultModel,
			RelayLogs:    cfg.Transcribe.RelayLogs,
		},
	)

	log.Info("backend ready",
		zap.String("interpreter", launcher.Interpreter()),
		zap.String("scriptsDir", cfg.Python.ScriptsDir),
		zap.String("projectsRoot", projects.Root()),
		zap.String("configFile", cfg.FileUsed),
	)

	return Services{
		Config:     cfg,
		Logger:     log,
		Launcher:   launcher,
		Projects:   projects,
		Dispatcher: usecase.NewDispatcher(launcher, scripts, log),
		Jobs:       jobs,
	}, nil
}
