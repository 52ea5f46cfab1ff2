package infra

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// EnvHome overrides the data directory.
const EnvHome = "MACROFLOW_HOME"

const (
	settingsFileName      = "settings.yaml"
	logFileName           = "macroflow.log"
	lastRecordingFileName = "last_recording.json"
)

// Paths locates every file macroflow keeps on disk.
type Paths struct {
	DataDir string
}

// DetectPaths resolves the data directory from MACROFLOW_HOME, falling back
// to ~/.macroflow of the invoking user.
func DetectPaths() Paths {
	if dir := os.Getenv(EnvHome); dir != "" {
		return Paths{DataDir: ExpandHome(dir)}
	}
	return Paths{DataDir: filepath.Join(RealUserHome(), ".macroflow")}
}

// Settings returns the settings file path.
func (p Paths) Settings() string { return filepath.Join(p.DataDir, settingsFileName) }

// Log returns the log file path.
func (p Paths) Log() string { return filepath.Join(p.DataDir, logFileName) }

// LastRecording returns where `listen` saves a finished recording by default.
func (p Paths) LastRecording() string { return filepath.Join(p.DataDir, lastRecordingFileName) }

// Ensure creates the data directory.
func (p Paths) Ensure() error {
	return os.MkdirAll(p.DataDir, 0700)
}

// RealUserHome returns the invoking user's home directory, even under sudo.
// Reading /dev/input on Linux commonly needs sudo, which would otherwise move
// settings and history to /root.
func RealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}

// ExpandHome expands a leading ~ to the invoking user's home directory.
func ExpandHome(path string) string {
	if path == "~" {
		return RealUserHome()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(RealUserHome(), path[2:])
	}
	return path
}
