// Package testutils holds project fixtures shared by package tests.
package testutils

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Plugin returns the files of a small plugin project: a manifest, a header
// using the default placeholders, one script entry importing a library and
// one nested stylesheet entry. Keys are slash paths relative to the root.
func Plugin(name, version, displayName string) map[string]string {
	return map[string]string{
		"package.json": fmt.Sprintf(`{
  "name": %q,
  "version": %q,
  "displayName": %q,
  "author": "Jane Doe <jane@example.org>"
}`, name, version, displayName),
		"src/" + name + ".php":      "<?php /* Plugin Name: {_displayName_} Version: {_version_} */",
		"src/includes/admin.php":    "<?php // by {_author_}",
		"src/scripts/index/main.js": `import { hello } from "../lib/hello.js"; hello();`,
		"src/scripts/lib/hello.js":  `export function hello() { console.log("hello"); }`,
		"src/styles/index/main.css": ".acme { & .title { color: red; } }",
	}
}

// CreateTempProject writes files into a fresh temporary directory and
// returns it.
func CreateTempProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		WriteFile(t, filepath.Join(root, filepath.FromSlash(rel)), content)
	}
	return root
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// ReadFile returns the contents of path.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// WaitForFiles polls until every rel exists under dir or timeout passes.
func WaitForFiles(dir string, rels []string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		missing := false
		for _, rel := range rels {
			if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
				missing = true
				break
			}
		}
		if !missing {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(20 * time.Millisecond)
	}
}
