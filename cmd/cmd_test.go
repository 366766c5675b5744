package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/buildwp/internal/config"
	bwerrors "github.com/conneroisu/buildwp/internal/errors"
	"github.com/conneroisu/buildwp/internal/testutils"
)

func newProject(t *testing.T) string {
	t.Helper()
	return testutils.CreateTempProject(t, testutils.Plugin("acme", "2.0.1", "Acme"))
}

// run executes the CLI with args and returns its combined output.
func run(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := execute(ctx, rootCmd)
	return out.String(), err
}

func TestDestFlag(t *testing.T) {
	testCases := []struct {
		input string
		want  config.Destination
		err   bool
	}{
		{"dist", config.DestDist, false},
		{"local", config.DestLocal, false},
		{"LOCAL", config.DestLocal, false},
		{"", config.DestDist, false},
		{"staging", config.DestDist, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			v := destValue(config.DestDist)
			err := v.Set(tc.input)
			if tc.err {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.want, v.Destination())
			assert.Equal(t, "dist|local", v.Type())
		})
	}
}

func TestParseLogFormat(t *testing.T) {
	for input, want := range map[string]string{"": "console", "TEXT": "text", "json": "json", "console": "console"} {
		got, err := parseLogFormat(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}
	_, err := parseLogFormat("xml")
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"setup", "dev", "prod", "release", "version"} {
		assert.Contains(t, names, want)
	}

	for _, c := range []string{"dev", "prod"} {
		sub, _, err := rootCmd.Find([]string{c})
		require.NoError(t, err)
		assert.NotNil(t, sub.Flags().Lookup("dest"), c)
	}
	release, _, err := rootCmd.Find([]string{"release"})
	require.NoError(t, err)
	assert.Nil(t, release.Flags().Lookup("dest"), "release always builds into out.dist")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, context.Background(), "version", "--short")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))
	assert.NotContains(t, strings.TrimSpace(out), "\n")

	versionShort = false
	out, err = run(t, context.Background(), "version", "--format", "json")
	require.NoError(t, err)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")

	_, err = run(t, context.Background(), "version", "--format", "xml")
	assert.Error(t, err)
	versionFormat = "text"
}

func TestProdCommand(t *testing.T) {
	root := newProject(t)

	out, err := run(t, context.Background(), "prod", "--dir", root, "--dest", "dist", "--log-format", "console")
	require.NoError(t, err, out)

	assert.Contains(t, out, "starting: 'prod'")
	assert.Contains(t, out, "finished: 'prod'")
	assert.FileExists(t, filepath.Join(root, "dist", "scripts", "main.js"))
	assert.FileExists(t, filepath.Join(root, "dist", "styles", "main.css"))

	data, err := os.ReadFile(filepath.Join(root, "dist", "acme.php"))
	require.NoError(t, err)
	assert.Equal(t, "<?php /* Plugin Name: Acme Version: 2.0.1 */", string(data))
}

func TestProdLocalDestination(t *testing.T) {
	root := newProject(t)
	testutils.WriteFile(t, filepath.Join(root, "buildwp.yml"), "out:\n  local: wordpress/wp-content/plugins/acme\n")

	out, err := run(t, context.Background(), "prod", "--dir", root, "--dest=local")
	require.NoError(t, err, out)
	assert.FileExists(t, filepath.Join(root, "wordpress", "wp-content", "plugins", "acme", "acme.php"))
	assert.NoDirExists(t, filepath.Join(root, "dist"))

	// Flag values persist on the shared command tree.
	require.NoError(t, prodDest.Set("dist"))
}

func TestProdFailuresExitNonZero(t *testing.T) {
	t.Run("missing manifest", func(t *testing.T) {
		out, err := run(t, context.Background(), "prod", "--dir", t.TempDir())
		require.Error(t, err)
		assert.True(t, bwerrors.HasCode(err, bwerrors.ErrCodeManifestMissing))
		assert.Contains(t, out, "package.json not found")
		assert.Contains(t, out, "buildwp setup")
		assert.NotContains(t, out, "Error:", "reported errors are not printed twice")
	})

	t.Run("bundling error", func(t *testing.T) {
		root := newProject(t)
		testutils.WriteFile(t, filepath.Join(root, "src", "scripts", "index", "main.js"), "const = ;")

		out, err := run(t, context.Background(), "prod", "--dir", root)
		require.Error(t, err)
		assert.Contains(t, out, "failed: 'buildJS'")
	})

	t.Run("unknown destination", func(t *testing.T) {
		out, err := run(t, context.Background(), "prod", "--dir", newProject(t), "--dest", "staging")
		require.Error(t, err)
		assert.Contains(t, out, "Error:")
		assert.Contains(t, out, "staging")
	})
}

func TestReleaseCommand(t *testing.T) {
	root := newProject(t)

	out, err := run(t, context.Background(), "release", "--dir", root, "--log-format", "text")
	require.NoError(t, err, out)
	assert.FileExists(t, filepath.Join(root, "release", "acme-2.0.1.zip"))
	assert.Contains(t, out, "msg=\"finished: 'zip'")
}

func TestSetupCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "acme")

	out, err := run(t, context.Background(), "setup", "--dir", dir, "--log-format", "console")
	require.NoError(t, err, out)
	assert.FileExists(t, filepath.Join(dir, "buildwp.yml"))
	assert.FileExists(t, filepath.Join(dir, "src", "acme.php"))

	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"release": "buildwp release"`)
}

func TestDevCommandStopsOnCancel(t *testing.T) {
	root := newProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		outputs := []string{"acme.php", "scripts/main.js", "styles/main.css"}
		testutils.WaitForFiles(filepath.Join(root, "dist"), outputs, 10*time.Second)
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	out, err := run(t, ctx, "dev", "--dir", root, "--dest", "dist")
	require.NoError(t, err, out)
	assert.Contains(t, out, "finished: 'dev'")
	assert.Contains(t, out, "dev session ended")
	assert.Contains(t, out, "success=100%")
}

