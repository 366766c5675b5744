package build

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/buildwp/internal/config"
)

// StylePlugin configures one link of the stylesheet chain. Plugins run in
// the configured order against the options of each entry's build.
type StylePlugin interface {
	Name() string
	Setup(opts *api.BuildOptions, mode Mode)
}

// Assets referenced from stylesheets with url() stay as written.
var styleExternals = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.svg", "*.webp", "*.avif", "*.ico",
	"*.woff", "*.woff2", "*.ttf", "*.otf", "*.eot",
}

type importPlugin struct{}

func (importPlugin) Name() string { return "import" }

// Setup inlines @import rules by bundling the entry.
func (importPlugin) Setup(opts *api.BuildOptions, _ Mode) {
	opts.Bundle = true
	opts.External = append(opts.External, styleExternals...)
}

// enginesPlugin lowers syntax (nesting) or adds vendor prefixes (prefix) for
// the configured browser targets. Both set the same engines; esbuild applies
// both transforms from them.
type enginesPlugin struct {
	name    string
	engines []api.Engine
}

func (p enginesPlugin) Name() string { return p.name }

func (p enginesPlugin) Setup(opts *api.BuildOptions, _ Mode) {
	for _, e := range p.engines {
		if !hasEngine(opts.Engines, e) {
			opts.Engines = append(opts.Engines, e)
		}
	}
}

func hasEngine(engines []api.Engine, e api.Engine) bool {
	for _, existing := range engines {
		if existing == e {
			return true
		}
	}
	return false
}

type minifyPlugin struct{}

func (minifyPlugin) Name() string { return "minify" }

func (minifyPlugin) Setup(opts *api.BuildOptions, mode Mode) {
	if !mode.IsProduction() {
		return
	}
	opts.MinifyWhitespace = true
	opts.MinifySyntax = true
}

type sourcemapPlugin struct {
	force bool
}

func (sourcemapPlugin) Name() string { return "sourcemap" }

func (p sourcemapPlugin) Setup(opts *api.BuildOptions, mode Mode) {
	if mode.IsProduction() && !p.force {
		return
	}
	opts.Sourcemap = api.SourceMapLinked
}

// NewStylePlugins builds the chain named by cfg.Plugins, in order.
func NewStylePlugins(cfg config.StylesConfig) ([]StylePlugin, error) {
	engines, err := ParseEngines(cfg.Targets)
	if err != nil {
		return nil, err
	}

	plugins := make([]StylePlugin, 0, len(cfg.Plugins))
	for _, name := range cfg.Plugins {
		switch name {
		case "import":
			plugins = append(plugins, importPlugin{})
		case "nesting", "prefix":
			plugins = append(plugins, enginesPlugin{name: name, engines: engines})
		case "minify":
			plugins = append(plugins, minifyPlugin{})
		case "sourcemap":
			plugins = append(plugins, sourcemapPlugin{force: cfg.Sourcemap})
		default:
			return nil, fmt.Errorf("unknown style plugin %q", name)
		}
	}
	return plugins, nil
}

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"deno":    api.EngineDeno,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"hermes":  api.EngineHermes,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"rhino":   api.EngineRhino,
	"safari":  api.EngineSafari,
}

// ParseEngines converts targets such as "chrome90" or "safari14.1".
func ParseEngines(targets []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(targets))
	for _, target := range targets {
		t := strings.ToLower(strings.TrimSpace(target))
		i := strings.IndexFunc(t, func(r rune) bool { return r >= '0' && r <= '9' })
		if i <= 0 {
			return nil, fmt.Errorf("invalid browser target %q", target)
		}
		name, ok := engineNames[t[:i]]
		if !ok {
			return nil, fmt.Errorf("unknown browser %q in target %q", t[:i], target)
		}
		engines = append(engines, api.Engine{Name: name, Version: t[i:]})
	}
	return engines, nil
}
