package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/bmatcuk/doublestar/v4"
)

// validateConfig validates configuration values for correctness
func validateConfig(config *Config) error {
	if err := validateLayout(config); err != nil {
		return fmt.Errorf("layout: %w", err)
	}

	if err := validateReplace(config.Replace); err != nil {
		return fmt.Errorf("replace: %w", err)
	}

	for _, dep := range config.Dependencies {
		if strings.TrimSpace(dep) == "" {
			return fmt.Errorf("dependencies: empty path")
		}
	}

	switch config.Scripts.Format {
	case "iife", "esm", "cjs":
	default:
		return fmt.Errorf("scripts.format %q is not one of iife, esm, cjs", config.Scripts.Format)
	}

	for _, name := range config.Styles.Plugins {
		if !isStylePlugin(name) {
			return fmt.Errorf("styles.plugins: unknown plugin %q", name)
		}
	}

	for _, pattern := range config.Substitute.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("substitute.exclude: invalid glob %q", pattern)
		}
	}

	return nil
}

func validateLayout(config *Config) error {
	required := map[string]string{
		"in.src":   config.In.Src,
		"out.dist": config.Out.Dist,
	}
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s must not be empty", key)
		}
	}

	segments := map[string]string{
		"in.js":           config.In.JS,
		"in.css":          config.In.CSS,
		"out.js":          config.Out.JS,
		"out.css":         config.Out.CSS,
		"scripts.entries": config.Scripts.Entries,
		"styles.entries":  config.Styles.Entries,
	}
	for key, value := range segments {
		if err := validateSegment(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}

	if config.In.JS == config.In.CSS {
		return fmt.Errorf("in.js and in.css must differ")
	}
	if config.Out.JS == config.Out.CSS {
		return fmt.Errorf("out.js and out.css must differ")
	}

	outputs := map[string]string{
		"out.dist":  config.Out.Dist,
		"out.local": config.Out.Local,
	}
	for key, value := range outputs {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if contains(config.Abs(value), config.SourceDir()) {
			return fmt.Errorf("%s %q must not be in.src or one of its parents", key, value)
		}
	}

	return nil
}

// contains reports whether path is dir or lies below it.
func contains(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// validateSegment requires a single path element such as "scripts".
func validateSegment(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("must not be empty")
	}
	if s == "." || s == ".." || strings.ContainsAny(s, `/\`) || filepath.Base(s) != s {
		return fmt.Errorf("%q must be a single directory name", s)
	}
	return nil
}

func validateReplace(pairs [][]string) error {
	for i, pair := range pairs {
		if len(pair) != 2 {
			return fmt.Errorf("entry %d must be a [pattern, replacement] pair", i)
		}
		if pair[0] == "" {
			return fmt.Errorf("entry %d has an empty pattern", i)
		}
		if _, err := template.New("replace").Parse(pair[1]); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}

// StylePlugins lists the style plugin names in their canonical order.
var StylePlugins = []string{"import", "nesting", "prefix", "minify", "sourcemap"}

func isStylePlugin(name string) bool {
	for _, p := range StylePlugins {
		if p == name {
			return true
		}
	}
	return false
}
