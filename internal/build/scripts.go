package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	bwerrors "github.com/conneroisu/buildwp/internal/errors"
)

// StageScripts names the script stage in logs and errors.
const StageScripts = "scripts"

// Result describes the files one stage produced.
type Result struct {
	Stage   string
	Entries int
	Outputs []string
}

var jsTargets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"es2024": api.ES2024,
	"esnext": api.ESNext,
}

var jsFormats = map[string]api.Format{
	"iife": api.FormatIIFE,
	"esm":  api.FormatESModule,
	"cjs":  api.FormatCommonJS,
}

// ScriptEntries lists the top-level files of the script entry directory in
// lexical order. A missing directory yields no entries.
func ScriptEntries(dir string) ([]string, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var entries []string
	for _, item := range items {
		if item.IsDir() || strings.HasPrefix(item.Name(), ".") {
			continue
		}
		entries = append(entries, filepath.Join(dir, item.Name()))
	}
	sort.Strings(entries)
	return entries, nil
}

// ScriptOptions returns the esbuild options for bundling entries.
func ScriptOptions(bc *Context, entries []string) (api.BuildOptions, error) {
	scripts := bc.Config.Scripts

	target, ok := jsTargets[strings.ToLower(scripts.Target)]
	if !ok && scripts.Target != "" {
		return api.BuildOptions{}, fmt.Errorf("unknown scripts.target %q", scripts.Target)
	}
	if scripts.Target == "" {
		target = api.ES2017
	}

	format, ok := jsFormats[scripts.Format]
	if !ok {
		format = api.FormatIIFE
	}

	prod := bc.Mode.IsProduction()
	opts := api.BuildOptions{
		EntryPoints:       entries,
		Outdir:            bc.ScriptOutputDir(),
		Bundle:            true,
		Write:             false,
		MinifyWhitespace:  prod,
		MinifyIdentifiers: prod,
		MinifySyntax:      prod,
		Format:            format,
		Target:            target,
		Define: map[string]string{
			"process.env.NODE_ENV": fmt.Sprintf("%q", string(bc.Mode)),
		},
		LogLevel: api.LogLevelSilent,
	}
	if filepath.IsAbs(bc.Config.Root) {
		opts.AbsWorkingDir = bc.Config.Root
	}
	if scripts.Sourcemap {
		opts.Sourcemap = api.SourceMapLinked
	}
	return opts, nil
}

// BuildScripts bundles every script entry into the script output directory
// with one bundler call. The output directory is emptied first. An empty
// or missing entry directory is not an error.
func BuildScripts(ctx context.Context, bc *Context) (*Result, error) {
	log := bc.Logger.WithComponent(StageScripts)
	outDir := bc.ScriptOutputDir()

	if err := resetDir(outDir); err != nil {
		return nil, bwerrors.WrapIO(err, bwerrors.ErrCodeBuildFailed, "reset script output").WithPath(outDir)
	}

	entryDir := bc.Config.ScriptEntryDir()
	entries, err := ScriptEntries(entryDir)
	if err != nil {
		return nil, bwerrors.WrapIO(err, bwerrors.ErrCodeBuildFailed, "read script entries").WithPath(entryDir)
	}
	result := &Result{Stage: StageScripts, Entries: len(entries)}
	if len(entries) == 0 {
		log.Debug(ctx, "no script entries", "dir", entryDir)
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts, err := ScriptOptions(bc, entries)
	if err != nil {
		return nil, bwerrors.WrapBuild(err, bwerrors.ErrCodeBuildFailed, "configure bundler", StageScripts)
	}

	built := api.Build(opts)

	collector := bwerrors.NewErrorCollector()
	if collect(ctx, log, StageScripts, built, collector) {
		return nil, bwerrors.WrapBuild(collector.Err(),
			bwerrors.ErrCodeBuildFailed, "bundling failed", StageScripts).
			WithContext("errors", len(built.Errors))
	}

	outputs, err := writeOutputs(built.OutputFiles)
	if err != nil {
		return nil, bwerrors.WrapIO(err, bwerrors.ErrCodeBuildFailed, "write script bundle").WithPath(outDir)
	}
	result.Outputs = outputs
	log.Debug(ctx, "bundled scripts", "entries", len(entries), "outputs", len(result.Outputs))
	return result, nil
}
