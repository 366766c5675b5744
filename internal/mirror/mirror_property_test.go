//go:build property

package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/buildwp/internal/substitute"
)

// TestMirrorProperties checks idempotence and stale-entry removal over
// generated trees.
func TestMirrorProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(777)
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	// Paths are built from a small alphabet so generated trees share prefixes.
	genPath := gen.IntRange(0, 80).Map(func(n int) string {
		letters := []string{"a", "b", "c"}
		parts := make([]string, 0, 3)
		for depth := n%3 + 1; depth > 0; depth-- {
			parts = append(parts, letters[n%len(letters)])
			n /= len(letters)
		}
		return strings.Join(parts, "/") + ".txt"
	})
	genTree := gen.MapOf(genPath, gen.AlphaString())

	rules := []substitute.Rule{{Pattern: "a", Replacement: "{_a_}"}}

	properties.Property("mirroring twice yields identical output", prop.ForAll(
		func(files map[string]string) bool {
			root := t.TempDir()
			if err := materialize(root, files); err != nil {
				return false
			}
			opts := baseOptions(root)
			opts.Rules = rules

			syncer := NewSyncer(nil)
			if _, err := syncer.Sync(context.Background(), opts); err != nil {
				return false
			}
			first, err := snapshot(opts.Dest)
			if err != nil {
				return false
			}
			if _, err := syncer.Sync(context.Background(), opts); err != nil {
				return false
			}
			second, err := snapshot(opts.Dest)
			if err != nil {
				return false
			}
			return reflect.DeepEqual(first, second)
		},
		genTree,
	))

	properties.Property("entries from a previous tree are removed", prop.ForAll(
		func(before, after map[string]string) bool {
			root := t.TempDir()
			if err := materialize(root, before); err != nil {
				return false
			}
			opts := baseOptions(root)
			syncer := NewSyncer(nil)
			if _, err := syncer.Sync(context.Background(), opts); err != nil {
				return false
			}

			if err := os.RemoveAll(opts.Src); err != nil {
				return false
			}
			if err := materialize(root, after); err != nil {
				return false
			}
			if _, err := syncer.Sync(context.Background(), opts); err != nil {
				return false
			}

			got, err := snapshot(opts.Dest)
			if err != nil {
				return false
			}
			want, err := snapshot(opts.Src)
			if err != nil {
				return false
			}
			return reflect.DeepEqual(got, want)
		},
		genTree,
		genTree,
	))

	properties.TestingRun(t)
}

// materialize writes files under root/src. A path that would turn an
// existing file into a directory is skipped.
func materialize(root string, files map[string]string) error {
	src := filepath.Join(root, "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		return err
	}
	for name, content := range files {
		path := filepath.Join(src, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			continue
		}
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func snapshot(root string) (map[string]string, error) {
	tree := map[string]string{}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || path == root {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		if info.IsDir() {
			tree[filepath.ToSlash(rel)] = "/"
			return nil
		}
		data, err := os.ReadFile(path)
		tree[filepath.ToSlash(rel)] = string(data)
		return err
	})
	return tree, err
}
