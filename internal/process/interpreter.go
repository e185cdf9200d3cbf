package process

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolveInterpreter picks the python executable for the current platform.
func ResolveInterpreter(explicit string, scriptsDir string) string {
	return resolveInterpreter(explicit, scriptsDir, runtime.GOOS)
}

func resolveInterpreter(explicit string, scriptsDir string, goos string) string {
	if trimmed := strings.TrimSpace(explicit); trimmed != "" {
		return trimmed
	}

	if scriptsDir != "" {
		for _, candidate := range venvCandidates(scriptsDir, goos) {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}
	}

	if goos == "windows" {
		return "python"
	}
	return "python3"
}

func venvCandidates(scriptsDir string, goos string) []string {
	if goos == "windows" {
		return []string{
			filepath.Join(scriptsDir, ".venv", "Scripts", "python.exe"),
			filepath.Join(scriptsDir, "venv", "Scripts", "python.exe"),
		}
	}
	return []string{
		filepath.Join(scriptsDir, ".venv", "bin", "python3"),
		filepath.Join(scriptsDir, ".venv", "bin", "python"),
		filepath.Join(scriptsDir, "venv", "bin", "python3"),
	}
}
