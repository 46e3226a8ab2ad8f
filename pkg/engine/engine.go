// Package engine coordinates a full install or uninstall run: acquiring the
// single-instance lock, asserting required toolchain versions, planning the
// build/uninstall set, pipelining distfile fetches one step ahead of the
// build loop, executing each build, writing and removing receipts, and
// reconciling the installed tree against what the receipts claim.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/tav/redpill/pkg/build"
	"github.com/tav/redpill/pkg/config"
	"github.com/tav/redpill/pkg/display"
	"github.com/tav/redpill/pkg/ensure"
	"github.com/tav/redpill/pkg/errs"
	"github.com/tav/redpill/pkg/fetcher"
	"github.com/tav/redpill/pkg/ledger"
	"github.com/tav/redpill/pkg/lock"
	"github.com/tav/redpill/pkg/planner"
	"github.com/tav/redpill/pkg/recipe"
	"github.com/tav/redpill/pkg/role"
)

// Hook runs extra setup before packages are planned, replacing main.py's
// execfile-into-globals preinstall scripts with an explicit registration
// point. A Hook typically registers additional recipe Actions or mutates
// config ahead of the build.
type Hook interface {
	Register(e *Engine) error
}

// Engine is the install coordinator. It is not safe for concurrent use;
// callers serialize access to an environment through the lock it acquires.
type Engine struct {
	Layout config.Layout
	Config config.Values
	Store  *recipe.Store
	Disp   display.Display

	Hooks []Hook

	fetcher *fetcher.Fetcher
	build   *build.Executor
}

// New wires an Engine from its configured layout, config values and
// display. Run calls Init itself; callers that only query the recipe store
// (BuildInfo) call Init first.
func New(layout config.Layout, cfg config.Values, disp display.Display) *Engine {
	return &Engine{
		Layout:  layout,
		Config:  cfg,
		Store:   recipe.NewStore(),
		Disp:    disp,
		fetcher: fetcher.New(disp),
		build:   build.New(disp, layout),
	}
}

// Init runs the pre-build setup: preinstall hooks, toolchain version
// assertions, directory creation, loading recipe files, and reconciling the
// installed tree against receipts. Run calls it after acquiring the lock;
// Uninstall does not call it. It is not safe to call concurrently with
// either.
func (e *Engine) Init(ctx context.Context) error {
	for _, h := range e.Hooks {
		if err := h.Register(e); err != nil {
			return fmt.Errorf("running preinstall hook: %w", err)
		}
	}

	if table, err := e.Config.StringMap("ensure"); err != nil {
		return err
	} else if table != nil {
		if err := ensure.Run(ctx, config.CC(), table); err != nil {
			return err
		}
	}

	for _, dir := range e.Layout.Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(e.Layout.Receipts, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", e.Layout.Receipts, err)
	}

	if err := e.Store.Init(ctx, e.Layout.BuildRecipes, e.Layout.Environ, e.Layout.Receipts); err != nil {
		return err
	}

	return e.Reconcile()
}

// Reconcile removes every file under the managed prefix that isn't claimed
// by any receipt, mirroring cleanup_install's diff-and-delete pass.
// Directories are never removed by Reconcile; per the stricter receipt
// contract a directory is always treated as claimed once any receipt lists
// it, and stale empty directories are only ever cleaned up as a side effect
// of Uninstall.
func (e *Engine) Reconcile() error {
	current, err := ledger.Listing(e.Layout.Local)
	if err != nil {
		return err
	}

	names, err := ledger.ListReceipts(e.Layout.Receipts)
	if err != nil {
		return err
	}
	expected := ledger.NewSet()
	for _, name := range names {
		paths, err := ledger.ReadReceipt(e.Layout.Receipts, name)
		if err != nil {
			return fmt.Errorf("reading receipt %s: %w", name, err)
		}
		for _, p := range paths {
			expected[p] = struct{}{}
		}
	}

	unclaimed := ledger.Diff(expected, current).Sorted()
	var files []string
	for _, p := range unclaimed {
		full := filepath.Join(e.Layout.Local, p)
		info, err := os.Lstat(full)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			files = append(files, p)
		}
	}
	return ledger.Prune(e.Layout.Local, files)
}

// InstalledVersions returns the currently installed package -> version map,
// derived from receipt filenames of the form "{package}-{version}".
func (e *Engine) InstalledVersions() (map[string]string, error) {
	names, err := ledger.ListReceipts(e.Layout.Receipts)
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, name := range names {
		pkg, version, ok := strings.Cut(name, "-")
		if !ok {
			continue
		}
		out[pkg] = version
	}
	return out, nil
}

// requirerAdapter exposes *recipe.Store as planner.Requirer.
type requirerAdapter struct{ store *recipe.Store }

func (a requirerAdapter) Requires(pkg string) ([]string, error) { return a.store.Requires(pkg) }
func (a requirerAdapter) Current(pkg string) (*recipe.Recipe, string, bool) {
	return a.store.Current(pkg)
}

// Plan resolves r's packages (and, transitively, their dependencies) and
// classifies what needs installing and uninstalling against what's
// currently on disk.
func (e *Engine) Plan(r *role.Role) (*planner.Plan, error) {
	requested, err := r.Resolve()
	if err != nil {
		return nil, err
	}
	for _, pkg := range requested {
		if !e.Store.Has(pkg) {
			return nil, errs.New(errs.Recipe, fmt.Sprintf("couldn't find a build recipe for the %s package", pkg))
		}
	}
	installed, err := e.InstalledVersions()
	if err != nil {
		return nil, err
	}
	return planner.Plan(requirerAdapter{e.Store}, requested, installed)
}

// Run acquires the single-instance lock, plans r, uninstalls whatever the
// plan flags for removal, then builds and installs everything the plan
// flags for addition, pipelining one distfile fetch ahead of the build
// loop. It releases the lock before returning, even on error.
func (e *Engine) Run(ctx context.Context, r *role.Role) error {
	l, err := lock.Acquire(e.Layout.LockFile)
	if err != nil {
		return err
	}
	defer l.Release()

	runID := uuid.New().String()
	e.Disp.Action("Starting install run %s", runID)

	if err := e.Init(ctx); err != nil {
		return err
	}

	plan, err := e.Plan(r)
	if err != nil {
		return err
	}

	for _, pkg := range plan.Uninstall {
		if err := e.uninstallOne(pkg); err != nil {
			return err
		}
	}

	return e.installAll(ctx, plan.Install)
}

// installAll runs Run's per-package build loop with one-package-ahead
// distfile pipelining: while package N builds, package N+1's distfile is
// already downloading.
func (e *Engine) installAll(ctx context.Context, packages []string) error {
	if len(packages) == 0 {
		return nil
	}

	urlBase, err := e.Config.RequireString("distfiles-url-base")
	if err != nil {
		return err
	}

	type unit struct {
		pkg      string
		info     *recipe.Info
		distfile string
		url      string
	}
	units := make([]unit, len(packages))
	for i, pkg := range packages {
		r, version, ok := e.Store.Current(pkg)
		if !ok {
			return errs.New(errs.Recipe, fmt.Sprintf("couldn't find a build recipe for the %s package", pkg))
		}
		tmpl := recipe.Templates(e.Layout.Local, e.Layout.WorkingDir, platformMake(), urlBase)[r.Type]
		info := r.Merge(tmpl, version)
		distfile := recipe.FormatDistfile(info.Distfile, pkg, version)
		var url string
		if distfile != "" {
			url = recipe.DistfileURL(info.URLBase, distfile)
		}
		units[i] = unit{pkg: pkg, info: info, distfile: distfile, url: url}
	}

	pipeline := fetcher.NewPipeline(ctx, e.fetcher)
	distPath := func(u unit) string {
		return filepath.Join(e.Layout.WorkingDir, u.distfile)
	}

	if units[0].distfile != "" {
		pipeline.Start(fetcher.Spec{Name: units[0].pkg, URL: units[0].url, SHA256: units[0].info.Hash, Dest: distPath(units[0])})
	}

	for i, u := range units {
		var distfilePath string
		if u.distfile != "" {
			if err := pipeline.Wait(); err != nil {
				return fmt.Errorf("fetching distfile for %s: %w", u.pkg, err)
			}
			distfilePath = distPath(u)
		}

		if i+1 < len(units) && units[i+1].distfile != "" {
			next := units[i+1]
			pipeline.Start(fetcher.Spec{Name: next.pkg, URL: next.url, SHA256: next.info.Hash, Dest: distPath(next)})
		}

		e.Disp.Action("Installing %s %s", u.pkg, u.info.Version)
		before, err := ledger.Listing(e.Layout.Local)
		if err != nil {
			return err
		}
		result, buildErr := e.build.Build(ctx, u.pkg, u.info, distfilePath)
		if buildErr != nil {
			e.Disp.Error("Building %s %s failed: %v", u.pkg, u.info.Version, buildErr)
			if cleanupErr := e.build.Cleanup(before); cleanupErr != nil {
				return fmt.Errorf("%w (cleanup also failed: %v)", buildErr, cleanupErr)
			}
			return buildErr
		}

		e.Disp.Success("Successfully installed %s %s", u.pkg, u.info.Version)
		receipt := ledger.NewSet(result.Receipt...)
		if err := ledger.WriteReceipt(e.Layout.Receipts, u.pkg+"-"+u.info.Version, receipt); err != nil {
			return fmt.Errorf("writing receipt for %s: %w", u.pkg, err)
		}
	}

	return pipeline.Close()
}

// Uninstall removes the named packages (and nothing else — it does not
// follow reverse dependencies), acquiring the lock for the duration.
func (e *Engine) Uninstall(ctx context.Context, packages []string) error {
	l, err := lock.Acquire(e.Layout.LockFile)
	if err != nil {
		return err
	}
	defer l.Release()

	runID := uuid.New().String()
	e.Disp.Action("Starting uninstall run %s", runID)

	for _, pkg := range packages {
		if err := e.uninstallOne(pkg); err != nil {
			return err
		}
	}
	return nil
}

// uninstallOne removes an installed package's files, in the reverse order
// uninstall_packages does: files first, then any now-empty directories, in
// reverse sorted order so children are removed before parents.
func (e *Engine) uninstallOne(pkg string) error {
	installed, err := e.InstalledVersions()
	if err != nil {
		return err
	}
	version, ok := installed[pkg]
	if !ok {
		return nil
	}

	name := pkg + "-" + version
	e.Disp.Action("Uninstalling %s %s", pkg, version)

	paths, err := ledger.ReadReceipt(e.Layout.Receipts, name)
	if err != nil {
		return errs.Wrap(errs.Uninstall, fmt.Sprintf("reading receipt for %s", name), err)
	}
	if err := ledger.Prune(e.Layout.Local, paths); err != nil {
		return errs.Wrap(errs.Uninstall, fmt.Sprintf("removing files for %s", name), err)
	}
	return ledger.DeleteReceipt(e.Layout.Receipts, name)
}

// Nuke removes the entire managed prefix and every receipt, returning the
// environment to an unconfigured state. It does not remove the scratch
// working directory or lock file.
func (e *Engine) Nuke() error {
	l, err := lock.Acquire(e.Layout.LockFile)
	if err != nil {
		return err
	}
	defer l.Release()

	if err := os.RemoveAll(e.Layout.Local); err != nil {
		return err
	}
	return os.RemoveAll(e.Layout.Receipts)
}

// BuildInfo reports, for every package r resolves, the version that would
// be installed. It returns an error if any of them has no recipe.
func (e *Engine) BuildInfo(r *role.Role) (map[string]string, error) {
	packages, err := r.Resolve()
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, pkg := range packages {
		_, version, ok := e.Store.Current(pkg)
		if !ok {
			return nil, errs.New(errs.Recipe, fmt.Sprintf("couldn't find a build recipe for the %s package", pkg))
		}
		out[pkg] = version
	}
	return out, nil
}

// InstalledInfo reports every currently installed package and its version,
// sorted by package name.
func (e *Engine) InstalledInfo() ([]string, map[string]string, error) {
	installed, err := e.InstalledVersions()
	if err != nil {
		return nil, nil, err
	}
	names := make([]string, 0, len(installed))
	for pkg := range installed {
		names = append(names, pkg)
	}
	sort.Strings(names)
	return names, installed, nil
}

func platformMake() string {
	p, _ := config.Platform()
	return p.Make()
}
