// Package build executes a single package's build recipe: unpacking its
// distfile (or checking out its git working tree), running its before/
// commands/after steps with the build environment, and reporting exactly
// which files it added so the engine can write a receipt.
package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tav/redpill/pkg/archive"
	"github.com/tav/redpill/pkg/common"
	"github.com/tav/redpill/pkg/config"
	"github.com/tav/redpill/pkg/display"
	"github.com/tav/redpill/pkg/errs"
	"github.com/tav/redpill/pkg/ledger"
	"github.com/tav/redpill/pkg/recipe"
)

// Executor runs one package build at a time; it is not safe for concurrent
// use since it changes the process's working directory.
type Executor struct {
	disp   display.Display
	layout config.Layout
}

// New returns an Executor that reports progress through disp and resolves
// paths through layout.
func New(disp display.Display, layout config.Layout) *Executor {
	return &Executor{disp: disp, layout: layout}
}

// Result is what a successful Build produced.
type Result struct {
	// Receipt lists every path under layout.Local that is new relative to
	// the snapshot taken before the build ran. Paths that already existed
	// and were modified by the build are not included.
	Receipt []string
}

// Build unpacks distfilePath (if any), runs info's before/commands/after
// steps, and returns the set of files the build added. On any failure the
// caller is responsible for invoking Cleanup with the pre-build listing to
// remove whatever the partial build left behind.
func (e *Executor) Build(ctx context.Context, pkg string, info *recipe.Info, distfilePath string) (*Result, error) {
	before, err := ledger.Listing(e.layout.Local)
	if err != nil {
		return nil, fmt.Errorf("listing %s before building %s: %w", e.layout.Local, pkg, err)
	}

	if err := os.Chdir(e.layout.WorkingDir); err != nil {
		return nil, fmt.Errorf("entering build working directory: %w", err)
	}

	switch {
	case strings.HasSuffix(info.Distfile, ".tar.bz2") && distfilePath != "":
		pkgDir := filepath.Join(e.layout.WorkingDir, pkg)
		if _, statErr := os.Stat(pkgDir); statErr == nil {
			e.disp.Progress("Removing previously unpacked %s distfile", pkg)
			if err := os.RemoveAll(pkgDir); err != nil {
				return nil, err
			}
		}
		e.disp.Progress("Unpacking %s", info.Distfile)
		// Extract into the working directory itself, not into pkgDir: the
		// archive's own top-level "{package}/" entry is what creates pkgDir.
		// Extracting into a pre-made pkgDir would double-nest it.
		if err := archive.Extract(distfilePath, e.layout.WorkingDir); err != nil {
			return nil, errs.Wrap(errs.Build, fmt.Sprintf("unpacking %s", info.Distfile), err)
		}
		if err := os.Chdir(pkgDir); err != nil {
			return nil, errs.Wrap(errs.Build, fmt.Sprintf("entering unpacked %s", pkg), err)
		}

	case info.Type == recipe.Git:
		gitDir := filepath.Join(e.layout.Environ, info.Path)
		if err := os.Chdir(gitDir); err != nil {
			return nil, errs.Wrap(errs.Build, fmt.Sprintf("entering git checkout %s", gitDir), err)
		}
		if info.Clean {
			if err := e.run(ctx, exec.CommandContext(ctx, "git", "clean", "-fdx"), nil); err != nil {
				return nil, errs.Wrap(errs.Build, "running git clean", err)
			}
		}
	}

	if info.Before != nil {
		if err := info.Before(); err != nil {
			return nil, errs.Wrap(errs.Build, fmt.Sprintf("running before() for %s", pkg), err)
		}
	}

	env := e.buildEnv(info)

	if info.Commands == nil {
		return nil, errs.New(errs.Build, fmt.Sprintf("no build commands for %s %s", pkg, info.Version))
	}
	commands, err := info.Commands.Resolve(pkg, info)
	if err != nil {
		return nil, errs.Wrap(errs.Build, fmt.Sprintf("resolving build commands for %s", pkg), err)
	}

	for _, command := range commands {
		if command.IsAction() {
			if err := command.Action(); err != nil {
				return nil, errs.Wrap(errs.Build, fmt.Sprintf("building %s %s", pkg, info.Version), err)
			}
			continue
		}

		e.disp.Progress("Running: %s", strings.Join(command.Exec, " "))
		cmd := exec.CommandContext(ctx, command.Exec[0], command.Exec[1:]...)
		if err := e.run(ctx, cmd, env); err != nil {
			return nil, errs.Wrap(errs.Build, fmt.Sprintf("building %s %s failed", pkg, info.Version), err)
		}
	}

	if info.After != nil {
		if err := info.After(); err != nil {
			return nil, errs.Wrap(errs.Build, fmt.Sprintf("running after() for %s", pkg), err)
		}
	}

	if err := os.Chdir(e.layout.WorkingDir); err != nil {
		return nil, err
	}
	if strings.HasSuffix(info.Distfile, ".tar.bz2") {
		if err := os.RemoveAll(filepath.Join(e.layout.WorkingDir, pkg)); err != nil {
			return nil, err
		}
	}

	after, err := ledger.Listing(e.layout.Local)
	if err != nil {
		return nil, fmt.Errorf("listing %s after building %s: %w", e.layout.Local, pkg, err)
	}
	receipt := ledger.Diff(before, after).Sorted()
	return &Result{Receipt: receipt}, nil
}

// Cleanup removes every file under layout.Local that wasn't present in
// before, undoing a build that failed partway through. It mirrors
// cleanup_partial_install's best-effort, ignore-missing removal.
func (e *Executor) Cleanup(before ledger.Set) error {
	after, err := ledger.Listing(e.layout.Local)
	if err != nil {
		return err
	}
	leftover := ledger.Diff(before, after).Sorted()
	return ledger.Prune(e.layout.Local, leftover)
}

// buildEnv copies the process environment, strips MAKE and MAKELEVEL (so a
// build invoked from within another make run doesn't inherit its submake
// bookkeeping), sets MAKE_JOBS to common.MakeJobs(), and overlays the
// recipe's declared env.
func (e *Executor) buildEnv(info *recipe.Info) map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			env[kv[:idx]] = kv[idx+1:]
		}
	}
	delete(env, "MAKE")
	delete(env, "MAKELEVEL")
	env["MAKE_JOBS"] = strconv.Itoa(common.MakeJobs())
	for k, v := range info.Env {
		env[k] = v
	}
	return env
}

// run executes cmd with env overlaid with the build's CPPFLAGS/LDFLAGS
// (computed from layout.Include/Lib), connecting stdout/stderr to the
// process's own so build output streams live.
func (e *Executor) run(ctx context.Context, cmd *exec.Cmd, env map[string]string) error {
	cmdEnv := map[string]string{}
	for k, v := range env {
		cmdEnv[k] = v
	}
	cmdEnv["CPPFLAGS"] = "-I" + e.layout.Include
	cmdEnv["LDFLAGS"] = "-L" + e.layout.Lib

	keys := make([]string, 0, len(cmdEnv))
	for k := range cmdEnv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	envSlice := make([]string, 0, len(keys))
	for _, k := range keys {
		envSlice = append(envSlice, k+"="+cmdEnv[k])
	}

	cmd.Env = envSlice
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
