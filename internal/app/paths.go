package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Paths stores resolved runtime file locations.
type Paths struct {
	RootDir     string
	ConfigFile  string
	JournalFile string
	LogFile     string
}

// ResolvePaths places everything under the user config dir. A non-empty
// configFile overrides only the config location.
func ResolvePaths(configFile string) (Paths, error) {
	cfgRoot, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve config dir: %w", err)
	}

	root := filepath.Join(cfgRoot, Name)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return Paths{}, fmt.Errorf("create app config dir: %w", err)
	}

	paths := Paths{
		RootDir:     root,
		ConfigFile:  filepath.Join(root, ConfigFilename),
		JournalFile: filepath.Join(root, JournalFilename),
		LogFile:     filepath.Join(root, LogFilename),
	}
	if override := strings.TrimSpace(configFile); override != "" {
		paths.ConfigFile = filepath.Clean(override)
	}

	return paths, nil
}

// JournalPath returns the configured journal file, or the default one.
func (p Paths) JournalPath(configured string) string {
	if v := strings.TrimSpace(configured); v != "" {
		return filepath.Clean(v)
	}

	return p.JournalFile
}
