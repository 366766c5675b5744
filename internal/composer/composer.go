// Package composer runs the PHP dependency manager against the output root.
package composer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/otiai10/copy"

	bwerrors "github.com/conneroisu/buildwp/internal/errors"
	"github.com/conneroisu/buildwp/internal/logging"
)

// Manifests are copied from the project root before installing.
var Manifests = []string{"composer.json", "composer.lock"}

// Installer copies the composer manifests and runs `install`.
type Installer struct {
	command string
	logger  logging.Logger
}

// NewInstaller creates an installer for command (default "composer").
func NewInstaller(command string, logger logging.Logger) *Installer {
	if strings.TrimSpace(command) == "" {
		command = "composer"
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Installer{command: command, logger: logger.WithComponent("composer")}
}

// Args returns the install arguments for dest.
func (i *Installer) Args(dest string, production bool) []string {
	args := []string{"install", "-d", dest}
	if production {
		args = append(args, "-o")
	}
	return args
}

// Install copies the manifests from root into dest and runs the install.
// Missing manifests are returned as errors. A failing subprocess is logged
// and reported as success so the build carries on.
func (i *Installer) Install(ctx context.Context, root, dest string, production bool) error {
	opt := copy.Options{
		OnSymlink: func(string) copy.SymlinkAction { return copy.Deep },
		Sync:      true,
	}
	for _, name := range Manifests {
		if err := copy.Copy(filepath.Join(root, name), filepath.Join(dest, name), opt); err != nil {
			return bwerrors.WrapIO(err, bwerrors.ErrCodeDependencyMissing, "copy "+name).WithPath(filepath.Join(root, name))
		}
	}

	args := i.Args(dest, production)
	cmd := exec.CommandContext(ctx, i.command, args...)
	cmd.Dir = root

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	i.logger.Debug(ctx, "running", "command", i.command, "args", strings.Join(args, " "))
	err := cmd.Run()
	if output := strings.TrimSpace(out.String()); output != "" {
		i.logger.Info(ctx, output)
	}
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s install cancelled: %w", i.command, ctx.Err())
		}
		i.logger.Error(ctx, err, i.command+" install failed")
	}
	return nil
}
