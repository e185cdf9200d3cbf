package project

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"whisperdesk/internal/ports"
	"whisperdesk/internal/transcript"
)

var (
	ErrNotAFile    = errors.New("audio path is not a regular file")
	ErrOutsideRoot = errors.New("project directory is outside the projects root")
)

// Store creates per-job project directories under a root folder.
type Store struct {
	root string
	now  func() time.Time
}

func NewStore(root string) *Store {
	return &Store{root: root, now: time.Now}
}

// Root returns the projects root directory.
func (s *Store) Root() string {
	return s.root
}

// Create makes a new project directory and copies the audio file into it.
func (s *Store) Create(audioPath string) (ports.Workspace, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return ports.Workspace{}, fmt.Errorf("audio file %q: %w", audioPath, err)
	}
	if !info.Mode().IsRegular() {
		return ports.Workspace{}, fmt.Errorf("%w: %s", ErrNotAFile, audioPath)
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return ports.Workspace{}, fmt.Errorf("failed to create projects root: %w", err)
	}

	base := filepath.Base(audioPath)
	name := sanitize(strings.TrimSuffix(base, filepath.Ext(base)))
	dir, err := s.reserve(name + "-" + s.now().Format("20060102-150405"))
	if err != nil {
		return ports.Workspace{}, err
	}

	target := filepath.Join(dir, name+strings.ToLower(filepath.Ext(base)))
	if err := copyFile(audioPath, target); err != nil {
		_ = os.RemoveAll(dir)
		return ports.Workspace{}, err
	}

	return ports.Workspace{
		Dir:        dir,
		AudioFile:  target,
		ResultFile: transcript.ResultPath(target),
	}, nil
}

// Discard deletes a project directory created by Create.
func (s *Store) Discard(workspace ports.Workspace) error {
	if workspace.Dir == "" {
		return nil
	}
	rel, err := filepath.Rel(s.root, workspace.Dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, workspace.Dir)
	}
	if err := os.RemoveAll(workspace.Dir); err != nil {
		return fmt.Errorf("failed to remove project directory: %w", err)
	}
	return nil
}

func (s *Store) reserve(name string) (string, error) {
	for attempt := 0; attempt < 100; attempt++ {
		candidate := name
		if attempt > 0 {
			candidate = name + "-" + strconv.Itoa(attempt+1)
		}
		dir := filepath.Join(s.root, candidate)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("failed to create project directory: %w", err)
		}
	}
	return "", fmt.Errorf("too many projects named %q", name)
}

func sanitize(name string) string {
	var builder strings.Builder
	lastDash := false
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			builder.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash && builder.Len() > 0 {
			builder.WriteByte('-')
			lastDash = true
		}
	}
	out := strings.Trim(builder.String(), "-")
	if out == "" {
		return "audio"
	}
	return out
}

func copyFile(src string, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open audio: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create project audio: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy audio: %w", err)
	}
	return out.Close()
}
