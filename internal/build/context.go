// Package build runs the compiled stages of a buildwp build: the script
// bundle and the stylesheet chain, both on the esbuild Go API.
//
// Every stage receives a *Context describing the mode and the output root
// for this invocation. Contexts are values; narrowing the destination for a
// release produces a new Context rather than mutating shared state.
package build

import (
	"fmt"
	"path/filepath"

	"github.com/conneroisu/buildwp/internal/config"
	"github.com/conneroisu/buildwp/internal/logging"
)

// Mode selects development or production behaviour.
type Mode string

const (
	Development Mode = "development"
	Production  Mode = "production"
)

// IsProduction reports whether m is Production.
func (m Mode) IsProduction() bool {
	return m == Production
}

// Context is threaded through every stage of one build.
type Context struct {
	Mode      Mode
	Dest      config.Destination
	OutputDir string
	Config    *config.Config
	Project   *config.Project
	Logger    logging.Logger
}

// NewContext resolves the output root for dest and returns the build context.
func NewContext(cfg *config.Config, project *config.Project, mode Mode, dest config.Destination, logger logging.Logger) (*Context, error) {
	if cfg == nil {
		return nil, fmt.Errorf("build context requires a configuration")
	}
	out, err := cfg.OutputDir(dest)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if dest == "" {
		dest = config.DestDist
	}
	return &Context{
		Mode:      mode,
		Dest:      dest,
		OutputDir: out,
		Config:    cfg,
		Project:   project,
		Logger:    logger,
	}, nil
}

// WithDest returns a copy of c writing to dest.
func (c *Context) WithDest(dest config.Destination) (*Context, error) {
	out, err := c.Config.OutputDir(dest)
	if err != nil {
		return nil, err
	}
	next := *c
	next.Dest = dest
	next.OutputDir = out
	return &next, nil
}

// WithMode returns a copy of c in mode.
func (c *Context) WithMode(mode Mode) *Context {
	next := *c
	next.Mode = mode
	return &next
}

// ScriptOutputDir is where bundled scripts are written.
func (c *Context) ScriptOutputDir() string {
	return filepath.Join(c.OutputDir, c.Config.Out.JS)
}

// StyleOutputDir is where compiled stylesheets are written.
func (c *Context) StyleOutputDir() string {
	return filepath.Join(c.OutputDir, c.Config.Out.CSS)
}
