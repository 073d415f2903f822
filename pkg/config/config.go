package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/adrg/xdg"
)

// ErrNoConfig is returned when no configuration file exists at any default
// location. This is fatal: an absent config is a setup error, not an empty
// rule set.
var ErrNoConfig = errors.New("no configuration file found")

const configName = "rrr.conf"

// DefaultPaths returns the configuration discovery order: the system-wide
// location, then the user-specific locations.
func DefaultPaths() []string {
	sys := filepath.Join("/etc", configName)
	if runtime.GOOS == "freebsd" {
		sys = filepath.Join("/usr/local/etc", configName)
	}

	paths := []string{
		sys,
		filepath.Join(xdg.ConfigHome, "rrr", configName),
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", configName))
	}

	return paths
}

// FindDefault returns the first existing default configuration file.
func FindDefault() (string, error) {
	paths := DefaultPaths()

	for _, p := range paths {
		info, err := os.Stat(p)
		if err == nil && info.Mode().IsRegular() {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrNoConfig, strings.Join(paths, ", "))
}
