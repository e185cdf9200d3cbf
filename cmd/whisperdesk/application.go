package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"whisperdesk/internal/bootstrap"
	"whisperdesk/internal/domain"
)

const (
	applicationName        = "whisperdesk"
	applicationShort       = "Headless driver for the WhisperDesk transcription backend"
	configFlagName         = "config"
	configFlagUsage        = "Optional path to a YAML configuration file."
	logLevelFlagName       = "log-level"
	logLevelFlagUsage      = "Override the configured log level."
	modelFlagName          = "model"
	modelFlagUsage         = "Whisper model size (tiny, base, small, medium, large-v3, ...)."
	base64FlagName         = "base64"
	base64FlagUsage        = "Treat the file as base64 text instead of raw audio bytes."
	formatFlagName         = "format"
	formatFlagUsage        = "Output format for the transcript response (json or yaml)."
	formatJSON             = "json"
	formatYAML             = "yaml"
	configEnvironmentKey   = "WHISPERDESK_CONFIG"
	logLevelEnvironmentKey = "WHISPERDESK_LOG_LEVEL"
)

var (
	errTranscriptionUnfinished = errors.New("transcription did not complete")
	errUnsupportedFormat       = errors.New("unsupported output format")
)

// application wires the cobra command tree to the backend services.
type application struct {
	stdout io.Writer
	stderr io.Writer
	sink   *consoleSink

	services   bootstrap.Services
	configPath string
	logLevel   string
	model      string
	rawBase64  bool
	format     string
}

func newApplication(stdout io.Writer, stderr io.Writer) *application {
	return &application{stdout: stdout, stderr: stderr, sink: newConsoleSink(stderr)}
}

// Execute runs the command line and releases backend resources afterwards.
func (a *application) Execute(ctx context.Context, arguments []string) error {
	root := a.rootCommand()
	root.SetArgs(arguments)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.ExecuteContext(ctx)
	if a.services.Jobs != nil {
		a.services.Jobs.Shutdown()
	}
	if a.services.Logger != nil {
		_ = a.services.Logger.Sync()
	}
	return err
}

func (a *application) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           applicationName,
		Short:         applicationShort,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, _ []string) error {
			return a.initialize()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, configFlagName, "", configFlagUsage)
	root.PersistentFlags().StringVar(&a.logLevel, logLevelFlagName, "", logLevelFlagUsage)

	hello := &cobra.Command{
		Use:   "hello <name>",
		Short: "Run the hello script with a name",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runHello,
	}

	chunk := &cobra.Command{
		Use:   "chunk <file>",
		Short: "Send an audio chunk to the chunk script",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runChunk,
	}
	chunk.Flags().BoolVar(&a.rawBase64, base64FlagName, false, base64FlagUsage)

	transcribe := &cobra.Command{
		Use:   "transcribe <audio>",
		Short: "Transcribe an audio file and print the transcript response",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runTranscribe,
	}
	transcribe.Flags().StringVar(&a.model, modelFlagName, "", modelFlagUsage)
	transcribe.Flags().StringVar(&a.format, formatFlagName, formatJSON, formatFlagUsage)

	root.AddCommand(hello, chunk, transcribe)
	return root
}

func (a *application) initialize() error {
	if a.configPath != "" {
		if err := os.Setenv(configEnvironmentKey, a.configPath); err != nil {
			return err
		}
	}
	if a.logLevel != "" {
		if err := os.Setenv(logLevelEnvironmentKey, a.logLevel); err != nil {
			return err
		}
	}

	services, err := bootstrap.Build(a.sink)
	if err != nil {
		return fmt.Errorf("unable to start backend: %w", err)
	}
	a.services = services
	return nil
}

func (a *application) runHello(command *cobra.Command, arguments []string) error {
	out, err := a.services.Dispatcher.RunHello(command.Context(), arguments[0])
	if err != nil {
		return err
	}
	fmt.Fprint(a.stdout, out)
	return nil
}

func (a *application) runChunk(command *cobra.Command, arguments []string) error {
	data, err := os.ReadFile(arguments[0])
	if err != nil {
		return err
	}

	encoded := strings.TrimSpace(string(data))
	if !a.rawBase64 {
		encoded = base64.StdEncoding.EncodeToString(data)
	}

	out, err := a.services.Dispatcher.ProcessAudioChunk(command.Context(), domain.AudioPayload{AudioData: encoded})
	if err != nil {
		return err
	}
	fmt.Fprint(a.stdout, out)
	return nil
}

func (a *application) runTranscribe(command *cobra.Command, arguments []string) error {
	format := strings.ToLower(strings.TrimSpace(a.format))
	if format != formatJSON && format != formatYAML {
		return fmt.Errorf("%w: %q", errUnsupportedFormat, a.format)
	}

	jobs := a.services.Jobs
	ticket, err := jobs.Start(command.Context(), arguments[0], a.model)
	if err != nil {
		return err
	}
	a.sink.printf("job %s started in %s\n", ticket.JobID, ticket.ProjectDir)

	status, err := jobs.Wait(command.Context(), ticket.JobID)
	if err != nil {
		// Interrupted: the job observes the same context and stops itself.
		status, _ = jobs.Wait(context.Background(), ticket.JobID)
	}
	if status.State != domain.JobStateCompleted {
		return fmt.Errorf("%w: %s: %s", errTranscriptionUnfinished, status.State, status.Message)
	}

	response, ok := a.sink.response(ticket.JobID)
	if !ok {
		return fmt.Errorf("%w: no response for job %s", errTranscriptionUnfinished, ticket.JobID)
	}

	a.services.Logger.Debug("transcription printed", zap.String("job", ticket.JobID), zap.String("json", response.JSONFile))

	return writeResponse(a.stdout, format, response)
}

func writeResponse(out io.Writer, format string, response any) error {
	if format == formatYAML {
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return encoder.Close()
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}
