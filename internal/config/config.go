// Package config provides configuration management for buildwp projects
// using Viper for loading from files and environment variables.
//
// A project is configured by an optional buildwp.yml (or .yaml, .json, .toml)
// in the project root. Every key has a built-in default registered with
// SetDefault, so a file only needs the keys it changes. Environment variables
// with the BUILDWP_ prefix override file values (BUILDWP_OUT_DIST=build), and
// a .env file in the project root is loaded first.
package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	bwerrors "github.com/conneroisu/buildwp/internal/errors"
)

// ConfigName is the base name of the project configuration file.
const ConfigName = "buildwp"

// EnvPrefix prefixes environment variable overrides.
const EnvPrefix = "BUILDWP"

type Config struct {
	In           InConfig         `mapstructure:"in" yaml:"in"`
	Out          OutConfig        `mapstructure:"out" yaml:"out"`
	Replace      [][]string       `mapstructure:"replace" yaml:"replace"`
	Dependencies []string         `mapstructure:"dependencies" yaml:"dependencies"`
	Composer     ComposerConfig   `mapstructure:"composer" yaml:"composer"`
	Scripts      ScriptsConfig    `mapstructure:"scripts" yaml:"scripts"`
	Styles       StylesConfig     `mapstructure:"styles" yaml:"styles"`
	Substitute   SubstituteConfig `mapstructure:"substitute" yaml:"substitute"`

	// Root is the project directory every relative path is resolved against.
	Root string `mapstructure:"-" yaml:"-"`
	// File is the configuration file that was read, empty for defaults.
	File string `mapstructure:"-" yaml:"-"`
}

// InConfig describes the source layout.
type InConfig struct {
	Src string `mapstructure:"src" yaml:"src"`
	JS  string `mapstructure:"js" yaml:"js"`
	CSS string `mapstructure:"css" yaml:"css"`
}

// OutConfig describes the output layout.
type OutConfig struct {
	Dist    string `mapstructure:"dist" yaml:"dist"`
	Local   string `mapstructure:"local" yaml:"local"`
	JS      string `mapstructure:"js" yaml:"js"`
	CSS     string `mapstructure:"css" yaml:"css"`
	Release string `mapstructure:"release" yaml:"release"`
}

// ComposerConfig controls the optional composer install step.
type ComposerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Command string `mapstructure:"command" yaml:"command"`
}

// ScriptsConfig configures the script bundler.
type ScriptsConfig struct {
	Entries   string `mapstructure:"entries" yaml:"entries"`
	Format    string `mapstructure:"format" yaml:"format"`
	Target    string `mapstructure:"target" yaml:"target"`
	Sourcemap bool   `mapstructure:"sourcemap" yaml:"sourcemap"`
}

// StylesConfig configures the stylesheet plugin chain.
type StylesConfig struct {
	Entries   string   `mapstructure:"entries" yaml:"entries"`
	Plugins   []string `mapstructure:"plugins" yaml:"plugins"`
	Targets   []string `mapstructure:"targets" yaml:"targets"`
	Sourcemap bool     `mapstructure:"sourcemap" yaml:"sourcemap"`
}

// SubstituteConfig configures text substitution while mirroring.
type SubstituteConfig struct {
	// Exclude lists doublestar globs, relative to the source root, of files
	// that are copied verbatim.
	Exclude []string `mapstructure:"exclude" yaml:"exclude"`
}

// Load reads the project configuration from root. The returned error is a
// config-typed BuildwpError when no file exists, the file cannot be parsed,
// or the result fails validation. configFile, when set, names the file
// explicitly instead of searching root.
func Load(root, configFile string) (*Config, error) {
	absRoot, v, err := newViper(root)
	if err != nil {
		return nil, err
	}

	if configFile != "" {
		if !filepath.IsAbs(configFile) {
			configFile = filepath.Join(absRoot, configFile)
		}
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ConfigName)
		v.AddConfigPath(absRoot)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil, bwerrors.WrapConfig(err, bwerrors.ErrCodeConfigNotFound, ConfigName+" config not found")
		}
		return nil, bwerrors.WrapConfig(err, bwerrors.ErrCodeConfigInvalid, "parse "+v.ConfigFileUsed())
	}

	return decode(v, absRoot)
}

// newViper loads root/.env and returns a viper instance carrying the
// built-in defaults and the BUILDWP_ environment overrides.
func newViper(root string) (string, *viper.Viper, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", nil, bwerrors.WrapConfig(err, bwerrors.ErrCodeConfigInvalid, "resolve project root")
	}

	if err := godotenv.Load(filepath.Join(absRoot, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", nil, bwerrors.WrapConfig(err, bwerrors.ErrCodeConfigInvalid, "read .env")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return absRoot, v, nil
}

func decode(v *viper.Viper, root string) (*Config, error) {
	source := v.ConfigFileUsed()
	if source == "" {
		source = "environment"
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, bwerrors.WrapConfig(err, bwerrors.ErrCodeConfigInvalid, "decode "+source)
	}
	config.Root = root
	config.File = v.ConfigFileUsed()
	config.normalize()

	if err := validateConfig(&config); err != nil {
		return nil, bwerrors.WrapConfig(err, bwerrors.ErrCodeConfigInvalid, "invalid configuration")
	}

	return &config, nil
}

// normalize cleans the configured roots so "./src" and "src/" both read as
// "src".
func (c *Config) normalize() {
	for _, p := range []*string{&c.In.Src, &c.Out.Dist, &c.Out.Local, &c.Out.Release} {
		if strings.TrimSpace(*p) != "" {
			*p = filepath.Clean(*p)
		}
	}
}

// Warner receives the fallback warnings emitted by Resolve.
type Warner interface {
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// Resolve loads the configuration and falls back to the built-in defaults on
// any failure, logging a warning. Environment overrides still apply to the
// fallback unless they are themselves invalid. It never fails.
func Resolve(ctx context.Context, root, configFile string, log Warner) *Config {
	config, err := Load(root, configFile)
	if err == nil {
		return config
	}

	if log != nil {
		log.Warn(ctx, err, ConfigName+".yml not found or contains errors - loading defaults...")
	}

	config, err = fromEnvironment(root)
	if err == nil {
		return config
	}
	if log != nil {
		log.Warn(ctx, err, "environment overrides are invalid - ignoring them")
	}

	config = Default()
	if abs, absErr := filepath.Abs(root); absErr == nil {
		config.Root = abs
	} else {
		config.Root = root
	}
	return config
}

// fromEnvironment builds the defaults with .env and BUILDWP_ overrides
// applied, without reading a configuration file.
func fromEnvironment(root string) (*Config, error) {
	absRoot, v, err := newViper(root)
	if err != nil {
		return nil, err
	}
	return decode(v, absRoot)
}

// Default returns the built-in configuration, ignoring the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	// Decoding registered defaults cannot fail.
	_ = v.Unmarshal(&config)
	return &config
}

// DefaultReplace maps the standard plugin header placeholders to manifest
// fields.
func DefaultReplace() [][]string {
	return [][]string{
		{"{_name_}", "{{ .Name }}"},
		{"{_displayName_}", "{{ .DisplayName }}"},
		{"{_link_}", "{{ .Link }}"},
		{"{_description_}", "{{ .Description }}"},
		{"{_version_}", "{{ .Version }}"},
		{"{_author_}", "{{ .Author }}"},
		{"{_author_uri_}", "{{ .AuthorURL }}"},
		{"{_license_}", "{{ .License }}"},
		{"{_license_uri_}", "{{ .LicenseURL }}"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("in.src", "src")
	v.SetDefault("in.js", "scripts")
	v.SetDefault("in.css", "styles")

	v.SetDefault("out.dist", "dist")
	v.SetDefault("out.local", "")
	v.SetDefault("out.js", "scripts")
	v.SetDefault("out.css", "styles")
	v.SetDefault("out.release", "release")

	v.SetDefault("replace", DefaultReplace())
	v.SetDefault("dependencies", []string{})

	v.SetDefault("composer.enabled", false)
	v.SetDefault("composer.command", "composer")

	v.SetDefault("scripts.entries", "index")
	v.SetDefault("scripts.format", "iife")
	v.SetDefault("scripts.target", "es2017")
	v.SetDefault("scripts.sourcemap", false)

	v.SetDefault("styles.entries", "index")
	v.SetDefault("styles.plugins", []string{"import", "nesting", "prefix", "minify", "sourcemap"})
	v.SetDefault("styles.targets", []string{"chrome90", "edge90", "firefox90", "safari14"})
	v.SetDefault("styles.sourcemap", false)

	v.SetDefault("substitute.exclude", []string{
		"**/*.{png,jpg,jpeg,gif,webp,avif,ico,bmp,tiff}",
		"**/*.{woff,woff2,ttf,otf,eot}",
		"**/*.{mp3,mp4,webm,ogg,wav,zip,gz,pdf,mo}",
	})
}
