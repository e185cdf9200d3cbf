package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"whisperdesk/internal/domain"
	"whisperdesk/internal/transcript"
)

const successfulPipeline = `audio="$2"
echo "2024-05-01 10:00:00,123 [INFO] Audio file: $audio"
echo "Loading Whisper model $3"
echo "Transcribing audio"
echo "Detected language: en"
out="${audio%.*}_transcript.json"
printf '[{"start":0,"end":1,"sentence":"hello world","words":[{"word":"hello","start":0,"end":0.5,"confidence":0.9},{"word":"world","start":0.5,"end":1,"confidence":0.3}]}]' > "$out"
echo "Transcription JSON saved to $out"
echo "Pipeline complete"
`

const failingPipeline = `echo "Loading Whisper model $3"
echo "RuntimeError: CUDA out of memory" 1>&2
exit 2
`

type cliEnvironment struct {
	home     string
	projects string
}

func setupEnvironment(t *testing.T, pipeline string) cliEnvironment {
	t.Helper()

	home := t.TempDir()
	scripts := filepath.Join(home, "scripts")
	projects := filepath.Join(home, "projects")
	require.NoError(t, os.MkdirAll(scripts, 0o755))
	for _, name := range []string{"script.py", "whisper.py", "whisper_proto.py"} {
		require.NoError(t, os.WriteFile(filepath.Join(scripts, name), []byte("# placeholder\n"), 0o644))
	}

	interpreter := filepath.Join(home, "fake-python")
	body := "#!/usr/bin/env bash\n" +
		"case \"$(basename \"$1\")\" in\n" +
		"script.py)\n  cat\n  ;;\n" +
		"whisper.py)\n  echo \"{\\\"bytes\\\": ${#2}}\"\n  ;;\n" +
		"whisper_proto.py)\n" + pipeline + "  ;;\n" +
		"esac\n"
	require.NoError(t, os.WriteFile(interpreter, []byte(body), 0o755))

	t.Setenv("HOME", home)
	t.Setenv(configEnvironmentKey, "")
	t.Setenv(logLevelEnvironmentKey, "error")
	t.Setenv("WHISPERDESK_PYTHON_INTERPRETER", interpreter)
	t.Setenv("WHISPERDESK_PYTHON_SCRIPTS_DIR", scripts)
	t.Setenv("WHISPERDESK_PROJECTS_ROOT", projects)

	return cliEnvironment{home: home, projects: projects}
}

func runCLI(t *testing.T, arguments ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	err := newApplication(&stdout, &stderr).Execute(context.Background(), arguments)
	return stdout.String(), stderr.String(), err
}

func TestHelloCommandSendsJSONOnStdin(t *testing.T) {
	setupEnvironment(t, "")

	stdout, _, err := runCLI(t, "hello", `Ada "the" Countess`)
	require.NoError(t, err)

	var sent map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &sent))
	require.Equal(t, `Ada "the" Countess`, sent["name"])
}

func TestChunkCommandEncodesFile(t *testing.T) {
	env := setupEnvironment(t, "")

	raw := []byte("RIFF0000WAVEfmt ")
	audio := filepath.Join(env.home, "chunk.wav")
	require.NoError(t, os.WriteFile(audio, raw, 0o644))

	stdout, _, err := runCLI(t, "chunk", audio)
	require.NoError(t, err)
	require.JSONEq(t, `{"bytes": 24}`, stdout)

	encoded := filepath.Join(env.home, "chunk.b64")
	require.NoError(t, os.WriteFile(encoded, []byte(base64.StdEncoding.EncodeToString(raw)+"\n"), 0o644))

	stdout, _, err = runCLI(t, "chunk", "--base64", encoded)
	require.NoError(t, err)
	require.JSONEq(t, `{"bytes": 24}`, stdout)
}

func TestChunkCommandRejectsInvalidBase64(t *testing.T) {
	env := setupEnvironment(t, "")

	encoded := filepath.Join(env.home, "chunk.b64")
	require.NoError(t, os.WriteFile(encoded, []byte("%%%"), 0o644))

	_, _, err := runCLI(t, "chunk", "--base64", encoded)
	require.Error(t, err)
}

func TestTranscribeCommandPrintsResponse(t *testing.T) {
	env := setupEnvironment(t, successfulPipeline)

	audio := filepath.Join(env.home, "Team Sync.WAV")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF"), 0o644))

	stdout, stderr, err := runCLI(t, "transcribe", audio, "--model", "tiny.en")
	require.NoError(t, err, stderr)

	var response transcript.Response
	require.NoError(t, json.Unmarshal([]byte(stdout), &response))
	require.Contains(t, response.Transcription, "hello world")
	require.Equal(t, env.projects, filepath.Dir(response.ProjectDir))
	require.FileExists(t, response.JSONFile)

	require.Contains(t, stderr, string(domain.StageLoadingModel))
	require.Contains(t, stderr, "language_detected: en")
	require.Contains(t, stderr, "[100%] complete")
}

func TestTranscribeCommandYAMLOutput(t *testing.T) {
	env := setupEnvironment(t, successfulPipeline)

	audio := filepath.Join(env.home, "memo.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("ID3"), 0o644))

	stdout, stderr, err := runCLI(t, "transcribe", audio, "--format", "YAML")
	require.NoError(t, err, stderr)

	var response transcript.Response
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &response))
	require.Equal(t, "memo_transcript.json", filepath.Base(response.JSONFile))
	require.Contains(t, stdout, "project_dir:")
}

func TestTranscribeCommandRejectsUnknownFormat(t *testing.T) {
	env := setupEnvironment(t, successfulPipeline)

	audio := filepath.Join(env.home, "memo.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("ID3"), 0o644))

	_, _, err := runCLI(t, "transcribe", audio, "--format", "xml")
	require.ErrorIs(t, err, errUnsupportedFormat)
	entries, _ := os.ReadDir(env.projects)
	require.Empty(t, entries)
}

func TestTranscribeCommandReportsScriptFailure(t *testing.T) {
	env := setupEnvironment(t, failingPipeline)

	audio := filepath.Join(env.home, "talk.wav")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF"), 0o644))

	stdout, stderr, err := runCLI(t, "transcribe", audio)
	require.ErrorIs(t, err, errTranscriptionUnfinished)
	require.Empty(t, stdout)
	require.Contains(t, stderr, "CUDA out of memory")
}

func TestTranscribeCommandRejectsUnknownModel(t *testing.T) {
	env := setupEnvironment(t, successfulPipeline)

	audio := filepath.Join(env.home, "talk.wav")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF"), 0o644))

	_, _, err := runCLI(t, "transcribe", audio, "--model", "enormous")
	require.Error(t, err)
}

func TestConfigFlagLoadsFile(t *testing.T) {
	env := setupEnvironment(t, "")

	markersFile := filepath.Join(env.home, "broken.markers")
	require.NoError(t, os.WriteFile(markersFile, []byte("no arrow here\n"), 0o644))
	configFile := filepath.Join(env.home, "whisperdesk.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("transcribe:\n  markers_file: "+markersFile+"\n"), 0o644))

	_, _, err := runCLI(t, "--config", configFile, "hello", "Ada")
	require.ErrorContains(t, err, "unable to start backend")
	require.ErrorContains(t, err, "broken.markers")
}

func TestConsoleSinkFormatsEvents(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	sink := newConsoleSink(&out)
	sink.JobProgress(domain.Progress{JobID: "a", Stage: domain.StageTranscribing, Percent: 30})
	sink.JobProgress(domain.Progress{JobID: "a", Stage: domain.StageLanguageDetected, Percent: 50, Detail: "de"})
	sink.JobLog("a", "raw line")
	sink.JobFailed("a", domain.ErrorCodeScriptFailed, "boom")
	sink.JobCompleted("b", transcript.Response{JSONFile: "/tmp/x_transcript.json"})

	require.Equal(t,
		"[ 30%] transcribing\n[ 50%] language_detected: de\n  | raw line\njob a failed (script_failed): boom\n",
		out.String(),
	)

	response, ok := sink.response("b")
	require.True(t, ok)
	require.Equal(t, "/tmp/x_transcript.json", response.JSONFile)
	_, ok = sink.response("a")
	require.False(t, ok)
}
