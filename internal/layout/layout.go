// Package layout names the filesystem locations the supervisor works with.
// The live working copy and the bootstrap copy are deliberately two distinct
// types of location: the live copy is read-write and persisted across
// restarts, the bootstrap copy is read-only and baked into the image.
package layout

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/agenthatchery/watchdog/internal/branding"
)

// Directory and file name constants.
const (
	VCSDir       = ".git"
	StateFile    = "state.json"
	LogFile      = "watchdog.log"
	ManifestFile = "watchdog.yaml"
)

// Permission constants.
const (
	DirPermSecure  os.FileMode = 0700
	FilePermSecure os.FileMode = 0600
	DirPermNormal  os.FileMode = 0755
)

// Layout holds the resolved locations.
type Layout struct {
	// LiveDir is the working copy the application always runs from.
	LiveDir string
	// BootstrapDir is the read-only snapshot shipped with the image.
	BootstrapDir string
	// DataDir is the persistent data volume.
	DataDir string
	// LogsDir receives the supervisor's own log file.
	LogsDir string
}

// StateDir returns <data>/watchdog, where the supervisor keeps its own files.
func (l Layout) StateDir() string {
	return filepath.Join(l.DataDir, branding.CLIName())
}

// StatePath returns the run state file location.
func (l Layout) StatePath() string {
	return filepath.Join(l.StateDir(), StateFile)
}

// LogPath returns the supervisor log file location.
func (l Layout) LogPath() string {
	return filepath.Join(l.LogsDir, LogFile)
}

// HasVCS reports whether dir contains version-control metadata, i.e. is a
// cloned working copy rather than an empty or fallback directory.
func HasVCS(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, VCSDir))
	return err == nil && info.IsDir()
}

// IsPopulated reports whether dir exists and has at least one entry.
func IsPopulated(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", dir, err)
	}
	return len(entries) > 0, nil
}

// EnsureDirs creates the writable directories (state and logs). The live
// directory is left to the sync step, which creates it by clone or copy.
func (l Layout) EnsureDirs() error {
	for _, dir := range []string{l.StateDir(), l.LogsDir, filepath.Dir(l.LiveDir)} {
		if err := os.MkdirAll(dir, DirPermNormal); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}
