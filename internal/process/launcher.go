package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"whisperdesk/internal/ports"
)

const maxLineBytes = 1024 * 1024

var (
	ErrScriptNotFound = errors.New("script not found")
	ErrStopped        = errors.New("script stopped")
)

// ExitError reports a script that exited with a non-zero status.
type ExitError struct {
	Script   string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return fmt.Sprintf("%s exited with code %d", filepath.Base(e.Script), e.ExitCode)
}

// Config controls how scripts are launched.
type Config struct {
	Interpreter     string
	ScriptsDir      string
	StopGrace       time.Duration
	StderrTailBytes int
}

// Launcher runs pipeline scripts with the configured interpreter.
type Launcher struct {
	cfg Config
	log *zap.Logger
}

func NewLauncher(cfg Config, log *zap.Logger) *Launcher {
	if cfg.Interpreter == "" {
		cfg.Interpreter = ResolveInterpreter("", cfg.ScriptsDir)
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 1500 * time.Millisecond
	}
	if cfg.StderrTailBytes <= 0 {
		cfg.StderrTailBytes = 16 * 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Launcher{cfg: cfg, log: log.Named("process")}
}

// Interpreter returns the resolved interpreter path.
func (l *Launcher) Interpreter() string {
	return l.cfg.Interpreter
}

// ScriptPath resolves name against the scripts directory.
func (l *Launcher) ScriptPath(name string) (string, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.cfg.ScriptsDir, name)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve script %q: %w", name, err)
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrScriptNotFound, abs)
	}
	return abs, nil
}

// Run executes a script and waits for it to finish. Stderr is returned in
// full; only streaming sessions keep a bounded tail.
func (l *Launcher) Run(ctx context.Context, inv ports.Invocation) (ports.ScriptResult, error) {
	cmd, script, err := l.command(ctx, inv)
	if err != nil {
		return ports.ScriptResult{}, err
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(inv.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(inv.Stdin)
	}

	l.log.Info("running script", zap.String("script", script), zap.Int("args", len(inv.Args)))
	started := time.Now()
	runErr := cmd.Run()
	result := ports.ScriptResult{
		Stdout:   stdout.String(),
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: time.Since(started),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) && ctx.Err() == nil {
			result.ExitCode = exitErr.ExitCode()
			l.log.Warn("script failed",
				zap.String("script", script),
				zap.Int("exitCode", result.ExitCode),
				zap.Duration("duration", result.Duration),
			)
			return result, &ExitError{Script: script, ExitCode: result.ExitCode, Stderr: result.Stderr}
		}
		if ctx.Err() != nil {
			return result, fmt.Errorf("%s: %w", filepath.Base(script), ctx.Err())
		}
		return result, fmt.Errorf("failed to start %s: %w", filepath.Base(script), runErr)
	}

	l.log.Info("script finished", zap.String("script", script), zap.Duration("duration", result.Duration))
	return result, nil
}

// Start launches a script and streams its stdout line by line.
func (l *Launcher) Start(ctx context.Context, inv ports.Invocation) (ports.ScriptSession, error) {
	cmd, script, err := l.command(ctx, inv)
	if err != nil {
		return nil, err
	}

	stderr := newTailBuffer(l.cfg.StderrTailBytes)
	cmd.Stderr = stderr
	if len(inv.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(inv.Stdin)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", filepath.Base(script), err)
	}

	l.log.Info("script started", zap.String("script", script), zap.Int("pid", cmd.Process.Pid))

	session := &scriptSession{
		ctx:     ctx,
		script:  script,
		process: cmd.Process,
		stdout:  stdout,
		stderr:  stderr,
		grace:   l.cfg.StopGrace,
		lines:   make(chan string, 64),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
		log:     l.log,
		started: time.Now(),
	}
	go session.run(cmd)
	return session, nil
}

func (l *Launcher) command(ctx context.Context, inv ports.Invocation) (*exec.Cmd, string, error) {
	script, err := l.ScriptPath(inv.Script)
	if err != nil {
		return nil, "", err
	}

	args := append([]string{script}, inv.Args...)
	cmd := exec.CommandContext(ctx, l.cfg.Interpreter, args...)
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1", "PYTHONIOENCODING=utf-8")
	cmd.Cancel = func() error {
		if runtime.GOOS == "windows" {
			return cmd.Process.Kill()
		}
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = l.cfg.StopGrace
	return cmd, script, nil
}

type scriptSession struct {
	ctx     context.Context
	script  string
	process *os.Process
	stdout  io.ReadCloser
	stderr  *tailBuffer
	grace   time.Duration
	log     *zap.Logger
	started time.Time

	lines   chan string
	stopped chan struct{}
	done    chan struct{}
	waitErr error

	stopOnce sync.Once
}

func (s *scriptSession) run(cmd *exec.Cmd) {
	defer close(s.done)

	scanner := bufio.NewScanner(s.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		select {
		case s.lines <- scanner.Text():
		case <-s.stopped:
		}
	}
	if err := scanner.Err(); err != nil {
		s.log.Warn("stdout scan stopped", zap.String("script", s.script), zap.Error(err))
		_, _ = io.Copy(io.Discard, s.stdout)
	}
	close(s.lines)

	s.waitErr = s.normalize(cmd.Wait())
	s.log.Info("script exited",
		zap.String("script", s.script),
		zap.Duration("duration", time.Since(s.started)),
		zap.Bool("ok", s.waitErr == nil),
	)
}

func (s *scriptSession) normalize(err error) error {
	if err == nil {
		return nil
	}
	select {
	case <-s.stopped:
		return ErrStopped
	default:
	}
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", filepath.Base(s.script), ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Script: s.script, ExitCode: exitErr.ExitCode(), Stderr: s.stderr.String()}
	}
	return err
}

func (s *scriptSession) Lines() <-chan string {
	return s.lines
}

func (s *scriptSession) Wait() error {
	<-s.done
	return s.waitErr
}

func (s *scriptSession) StderrTail() string {
	return s.stderr.String()
}

func (s *scriptSession) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopped)

		if runtime.GOOS == "windows" {
			_ = s.process.Kill()
		} else {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case <-s.done:
		case <-time.After(s.grace):
			_ = s.process.Kill()
			// Children that inherited stdout keep the pipe open after the kill.
			_ = s.stdout.Close()
			<-s.done
		}
	})
	return nil
}
