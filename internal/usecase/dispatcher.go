package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"whisperdesk/internal/domain"
	"whisperdesk/internal/ports"
)

var ErrInvalidAudioPayload = errors.New("audio payload is not valid base64 audio")

// Scripts names the pipeline entry points inside the scripts directory.
type Scripts struct {
	Hello    string
	Chunk    string
	Pipeline string
}

// DefaultScripts matches the layout shipped with the desktop app.
func DefaultScripts() Scripts {
	return Scripts{
		Hello:    "script.py",
		Chunk:    "whisper.py",
		Pipeline: "whisper_proto.py",
	}
}

// Dispatcher runs the blocking one-shot script commands.
type Dispatcher struct {
	runner  ports.ScriptRunner
	scripts Scripts
	log     *zap.Logger
}

func NewDispatcher(runner ports.ScriptRunner, scripts Scripts, log *zap.Logger) *Dispatcher {
	defaults := DefaultScripts()
	if scripts.Hello == "" {
		scripts.Hello = defaults.Hello
	}
	if scripts.Chunk == "" {
		scripts.Chunk = defaults.Chunk
	}
	if scripts.Pipeline == "" {
		scripts.Pipeline = defaults.Pipeline
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{runner: runner, scripts: scripts, log: log.Named("dispatcher")}
}

// RunHello sends {"name": name} to the hello script on stdin and returns its stdout.
func (d *Dispatcher) RunHello(ctx context.Context, name string) (string, error) {
	input, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return "", fmt.Errorf("encode hello request: %w", err)
	}

	result, err := d.runner.Run(ctx, ports.Invocation{Script: d.scripts.Hello, Stdin: input})
	if err != nil {
		d.log.Warn("hello script failed", zap.Error(err))
		return "", err
	}
	return result.Stdout, nil
}

// ProcessAudioChunk forwards a base64 recording chunk to the chunk script.
func (d *Dispatcher) ProcessAudioChunk(ctx context.Context, payload domain.AudioPayload) (string, error) {
	data := strings.TrimSpace(payload.AudioData)
	if idx := strings.Index(data, ";base64,"); idx >= 0 && strings.HasPrefix(data, "data:") {
		data = data[idx+len(";base64,"):]
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAudioPayload, err)
	}
	if len(decoded) == 0 {
		return "", ErrInvalidAudioPayload
	}

	result, err := d.runner.Run(ctx, ports.Invocation{Script: d.scripts.Chunk, Args: []string{data}})
	if err != nil {
		d.log.Warn("chunk script failed", zap.Int("bytes", len(decoded)), zap.Error(err))
		return "", err
	}
	d.log.Debug("chunk processed", zap.Int("bytes", len(decoded)), zap.Duration("duration", result.Duration))
	return result.Stdout, nil
}
