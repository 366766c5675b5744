package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Destination selects which output root a build writes to.
type Destination string

const (
	DestDist  Destination = "dist"
	DestLocal Destination = "local"
)

// ParseDestination validates a --dest value.
func ParseDestination(s string) (Destination, error) {
	switch Destination(strings.ToLower(strings.TrimSpace(s))) {
	case "", DestDist:
		return DestDist, nil
	case DestLocal:
		return DestLocal, nil
	default:
		return "", fmt.Errorf("unknown destination %q (expected dist or local)", s)
	}
}

// Abs resolves p against the project root.
func (c *Config) Abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Root, p)
}

// SourceDir is the absolute source root.
func (c *Config) SourceDir() string {
	return c.Abs(c.In.Src)
}

// ScriptSourceDir is the absolute script source subtree.
func (c *Config) ScriptSourceDir() string {
	return filepath.Join(c.SourceDir(), c.In.JS)
}

// StyleSourceDir is the absolute style source subtree.
func (c *Config) StyleSourceDir() string {
	return filepath.Join(c.SourceDir(), c.In.CSS)
}

// ScriptEntryDir holds one bundler entry point per top-level file.
func (c *Config) ScriptEntryDir() string {
	return filepath.Join(c.ScriptSourceDir(), c.Scripts.Entries)
}

// StyleEntryDir holds the entry stylesheets.
func (c *Config) StyleEntryDir() string {
	return filepath.Join(c.StyleSourceDir(), c.Styles.Entries)
}

// OutputDir returns the absolute output root for dest.
func (c *Config) OutputDir(dest Destination) (string, error) {
	switch dest {
	case DestLocal:
		if strings.TrimSpace(c.Out.Local) == "" {
			return "", fmt.Errorf("out.local is not configured")
		}
		return c.Abs(c.Out.Local), nil
	case DestDist, "":
		return c.Abs(c.Out.Dist), nil
	default:
		return "", fmt.Errorf("unknown destination %q", dest)
	}
}

// ReleaseDir is where release archives are written.
func (c *Config) ReleaseDir() string {
	return c.Abs(c.Out.Release)
}

// Reserved returns the output top-level names owned by the compiled stages.
func (c *Config) Reserved() []string {
	return []string{c.Out.JS, c.Out.CSS}
}
