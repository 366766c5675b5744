package mirror

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bwerrors "github.com/conneroisu/buildwp/internal/errors"
	"github.com/conneroisu/buildwp/internal/substitute"
)

// writeTree creates files under root. Keys ending in "/" are directories.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if name[len(name)-1] == '/' {
			require.NoError(t, os.MkdirAll(path, 0o755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// readTree returns every entry under root keyed by slash path. Directories
// map to "/".
func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	tree := map[string]string{}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if info.IsDir() {
			tree[rel+"/"] = "/"
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		tree[rel] = string(data)
		return nil
	})
	require.NoError(t, err)
	return tree
}

func baseOptions(root string) Options {
	return Options{
		Src:      filepath.Join(root, "src"),
		Dest:     filepath.Join(root, "dist"),
		Exclude:  []string{"scripts", "styles"},
		Reserved: []string{"scripts", "styles"},
		Root:     root,
	}
}

func TestSyncMirrorsStaticTree(t *testing.T) {
	root := t.TempDir()
	writeTree(t, filepath.Join(root, "src"), map[string]string{
		"acme.php":               "<?php /* Plugin Name: {_displayName_} v{_version_} */",
		"includes/admin.php":     "<?php // {_name_}",
		"languages/":             "",
		"scripts/index/main.js":  "console.log(1)",
		"styles/index/main.css":  "body{}",
		"assets/img/logo.png":    "{_name_}",
		"templates/part/row.php": "row {_name_} {_name_}",
	})

	opts := baseOptions(root)
	opts.Rules = []substitute.Rule{
		{Pattern: "{_name_}", Replacement: "acme"},
		{Pattern: "{_displayName_}", Replacement: "Acme Widgets"},
		{Pattern: "{_version_}", Replacement: "1.2.0"},
	}
	opts.Verbatim = []string{"**/*.png"}

	result, err := NewSyncer(nil).Sync(context.Background(), opts)
	require.NoError(t, err)

	want := map[string]string{
		"acme.php":               "<?php /* Plugin Name: Acme Widgets v1.2.0 */",
		"includes/":              "/",
		"includes/admin.php":     "<?php // acme",
		"languages/":             "/",
		"assets/":                "/",
		"assets/img/":            "/",
		"assets/img/logo.png":    "{_name_}",
		"templates/":             "/",
		"templates/part/":        "/",
		"templates/part/row.php": "row acme acme",
	}
	if diff := cmp.Diff(want, readTree(t, opts.Dest)); diff != "" {
		t.Errorf("output tree mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 4, result.Files)
	assert.Equal(t, 6, result.Dirs)
	assert.Equal(t, 0, result.Pruned)
}

func TestSyncPrunesStaleEntriesAtEveryDepth(t *testing.T) {
	root := t.TempDir()
	writeTree(t, filepath.Join(root, "src"), map[string]string{
		"acme.php":          "main",
		"includes/keep.php": "keep",
	})
	writeTree(t, filepath.Join(root, "dist"), map[string]string{
		"old-top.php":            "stale",
		"old-dir/nested.php":     "stale",
		"includes/keep.php":      "previous",
		"includes/renamed.php":   "stale",
		"includes/sub/deep.php":  "stale",
		"acme.php/":              "",
		"scripts/index.js":       "compiled",
		"styles/main.css":        "compiled",
		"styles/nested/main.css": "compiled",
	})

	opts := baseOptions(root)
	result, err := NewSyncer(nil).Sync(context.Background(), opts)
	require.NoError(t, err)

	want := map[string]string{
		"acme.php":               "main",
		"includes/":              "/",
		"includes/keep.php":      "keep",
		"scripts/":               "/",
		"scripts/index.js":       "compiled",
		"styles/":                "/",
		"styles/main.css":        "compiled",
		"styles/nested/":         "/",
		"styles/nested/main.css": "compiled",
	}
	if diff := cmp.Diff(want, readTree(t, opts.Dest)); diff != "" {
		t.Errorf("output tree mismatch (-want +got):\n%s", diff)
	}

	// old-top.php, old-dir, includes/renamed.php, includes/sub and the
	// directory squatting on acme.php.
	assert.Equal(t, 5, result.Pruned)
}

func TestSyncIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeTree(t, filepath.Join(root, "src"), map[string]string{
		"a.php":       "{_name_} a",
		"b/c.txt":     "c {_name_}",
		"b/d/e.txt":   "e",
		"license.txt": "{_name_} license",
	})
	require.NoError(t, os.Chmod(filepath.Join(root, "src", "license.txt"), 0o444))

	opts := baseOptions(root)
	opts.Rules = []substitute.Rule{{Pattern: "{_name_}", Replacement: "acme"}}

	syncer := NewSyncer(nil)
	_, err := syncer.Sync(context.Background(), opts)
	require.NoError(t, err)
	first := readTree(t, opts.Dest)

	info, err := os.Stat(filepath.Join(opts.Dest, "license.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o444), info.Mode().Perm())

	second, err := syncer.Sync(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Pruned)

	if diff := cmp.Diff(first, readTree(t, opts.Dest)); diff != "" {
		t.Errorf("second run changed output (-first +second):\n%s", diff)
	}
}

func TestSyncCopiesDependencies(t *testing.T) {
	root := t.TempDir()
	writeTree(t, filepath.Join(root, "src"), map[string]string{"acme.php": "main"})
	writeTree(t, root, map[string]string{
		"vendor/autoload.php":   "<?php",
		"vendor/lib/{_name_}.x": "{_name_}",
		"shared/real.txt":       "real",
	})
	require.NoError(t, os.Symlink(filepath.Join(root, "shared", "real.txt"), filepath.Join(root, "vendor", "link.txt")))
	writeTree(t, filepath.Join(root, "dist"), map[string]string{"vendor/stale.php": "old"})

	opts := baseOptions(root)
	opts.Dependencies = []string{"vendor"}
	opts.Rules = []substitute.Rule{{Pattern: "{_name_}", Replacement: "acme"}}

	result, err := NewSyncer(nil).Sync(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Dependencies)

	tree := readTree(t, opts.Dest)
	assert.Equal(t, "<?php", tree["vendor/autoload.php"])
	assert.Equal(t, "{_name_}", tree["vendor/lib/{_name_}.x"], "dependencies are copied verbatim")
	assert.NotContains(t, tree, "vendor/stale.php")

	info, err := os.Lstat(filepath.Join(opts.Dest, "vendor", "link.txt"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular(), "symlinks are resolved to their targets")
	assert.Equal(t, "real", tree["vendor/link.txt"])
}

func TestSyncMissingDependencyIsFatal(t *testing.T) {
	root := t.TempDir()
	writeTree(t, filepath.Join(root, "src"), map[string]string{"acme.php": "main"})

	opts := baseOptions(root)
	opts.Dependencies = []string{"vendor"}

	_, err := NewSyncer(nil).Sync(context.Background(), opts)
	require.Error(t, err)
	assert.True(t, bwerrors.HasCode(err, bwerrors.ErrCodeDependencyMissing))

	_, statErr := os.Stat(opts.Dest)
	assert.True(t, os.IsNotExist(statErr), "nothing is written before dependencies resolve")
}

func TestSyncRejectsBadLayouts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(root string, opts *Options)
	}{
		{
			name: "missing source root",
			mutate: func(root string, opts *Options) {
				opts.Src = filepath.Join(root, "nope")
			},
		},
		{
			name: "output inside source",
			mutate: func(root string, opts *Options) {
				opts.Dest = filepath.Join(opts.Src, "dist")
			},
		},
		{
			name: "output is the source root",
			mutate: func(root string, opts *Options) {
				opts.Dest = opts.Src
			},
		},
		{
			name: "output is the project root",
			mutate: func(root string, opts *Options) {
				opts.Dest = root
			},
		},
		{
			name: "output written as src/..",
			mutate: func(root string, opts *Options) {
				opts.Dest = opts.Src + string(filepath.Separator) + ".."
			},
		},
		{
			name: "empty rule pattern",
			mutate: func(root string, opts *Options) {
				opts.Rules = []substitute.Rule{{Pattern: "", Replacement: "x"}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeTree(t, filepath.Join(root, "src"), map[string]string{"acme.php": "main"})
			writeTree(t, root, map[string]string{"package.json": "{}"})
			opts := baseOptions(root)
			tt.mutate(root, &opts)

			_, err := NewSyncer(nil).Sync(context.Background(), opts)
			assert.Error(t, err)
			assert.FileExists(t, filepath.Join(root, "package.json"))
			assert.FileExists(t, filepath.Join(root, "src", "acme.php"))
		})
	}
}

func TestSyncHonoursCancellation(t *testing.T) {
	root := t.TempDir()
	writeTree(t, filepath.Join(root, "src"), map[string]string{"acme.php": "main"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSyncer(nil).Sync(ctx, baseOptions(root))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSyncManyFilesWithSmallLimit(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{}
	for i := 0; i < 200; i++ {
		files[filepath.ToSlash(filepath.Join("d", string(rune('a'+i%26)), "f"+string(rune('a'+i/26))+".txt"))] = "{_name_}"
	}
	writeTree(t, filepath.Join(root, "src"), files)

	opts := baseOptions(root)
	opts.Concurrency = 2
	opts.Rules = []substitute.Rule{{Pattern: "{_name_}", Replacement: "acme"}}

	result, err := NewSyncer(nil).Sync(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 200, result.Files)

	var got []string
	for name, content := range readTree(t, opts.Dest) {
		if content != "/" {
			assert.Equal(t, "acme", content, name)
			got = append(got, name)
		}
	}
	sort.Strings(got)
	assert.Len(t, got, 200)
}
