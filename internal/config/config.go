package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix      = "WHISPERDESK"
	configFileEnv  = "WHISPERDESK_CONFIG"
	defaultModel   = "base"
	defaultGraceMS = 1500
	defaultTail    = 16 * 1024
)

// Config stores runtime configuration for the desktop backend.
type Config struct {
	Python     PythonConfig
	Projects   ProjectsConfig
	Transcribe TranscribeConfig
	Process    ProcessConfig
	Log        LogConfig

	// FileUsed is the config file that was merged, if any.
	FileUsed string
}

type PythonConfig struct {
	Interpreter string
	ScriptsDir  string
}

type ProjectsConfig struct {
	Root string
}

type TranscribeConfig struct {
	DefaultModel string
	MarkersFile  string
	RelayLogs    bool
}

type ProcessConfig struct {
	StopGrace       time.Duration
	StderrTailBytes int
}

type LogConfig struct {
	Level  string
	Format string
}

// Load resolves configuration from an optional YAML file, WHISPERDESK_*
// environment variables and defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("python.interpreter", "")
	v.SetDefault("python.scripts_dir", defaultScriptsDir())
	v.SetDefault("projects.root", filepath.Join(home, "Documents", "whisperdesk", "projects"))
	v.SetDefault("transcribe.default_model", defaultModel)
	v.SetDefault("transcribe.markers_file", "")
	v.SetDefault("transcribe.relay_logs", false)
	v.SetDefault("process.stop_grace_ms", defaultGraceMS)
	v.SetDefault("process.stderr_tail_bytes", defaultTail)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	configFile := strings.TrimSpace(os.Getenv(configFileEnv))
	if configFile == "" {
		configFile = firstExisting(filepath.Join(home, ".config", "whisperdesk", "config.yaml"))
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %q: %w", configFile, err)
		}
	}

	cfg := Config{
		Python: PythonConfig{
			Interpreter: strings.TrimSpace(v.GetString("python.interpreter")),
			ScriptsDir:  expandHome(home, strings.TrimSpace(v.GetString("python.scripts_dir"))),
		},
		Projects: ProjectsConfig{
			Root: expandHome(home, strings.TrimSpace(v.GetString("projects.root"))),
		},
		Transcribe: TranscribeConfig{
			DefaultModel: strings.ToLower(strings.TrimSpace(v.GetString("transcribe.default_model"))),
			MarkersFile:  expandHome(home, strings.TrimSpace(v.GetString("transcribe.markers_file"))),
			RelayLogs:    v.GetBool("transcribe.relay_logs"),
		},
		Process: ProcessConfig{
			StopGrace:       time.Duration(v.GetInt("process.stop_grace_ms")) * time.Millisecond,
			StderrTailBytes: v.GetInt("process.stderr_tail_bytes"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(strings.TrimSpace(v.GetString("log.level"))),
			Format: strings.ToLower(strings.TrimSpace(v.GetString("log.format"))),
		},
		FileUsed: v.ConfigFileUsed(),
	}

	if cfg.Python.ScriptsDir == "" {
		cfg.Python.ScriptsDir = defaultScriptsDir()
	}
	if cfg.Transcribe.DefaultModel == "" {
		cfg.Transcribe.DefaultModel = defaultModel
	}
	if cfg.Process.StopGrace <= 0 {
		cfg.Process.StopGrace = defaultGraceMS * time.Millisecond
	}
	if cfg.Process.StderrTailBytes < 1024 {
		cfg.Process.StderrTailBytes = defaultTail
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		cfg.Log.Level = "info"
	}
	switch cfg.Log.Format {
	case "console", "structured":
	default:
		cfg.Log.Format = "console"
	}

	return cfg, nil
}

// defaultScriptsDir prefers a scripts directory shipped next to the
// executable and falls back to the working directory.
func defaultScriptsDir() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "scripts")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	return "scripts"
}

func expandHome(home string, path string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
