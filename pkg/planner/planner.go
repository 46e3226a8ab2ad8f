// Package planner computes what to build and what to tear down for a given
// set of requested packages, given what's already installed. It resolves
// transitive dependencies, classifies packages as net-new, upgraded, or
// unchanged, and topologically orders the resulting build and uninstall
// work.
package planner

import (
	"fmt"
	"sort"

	"github.com/tav/redpill/pkg/errs"
	"github.com/tav/redpill/pkg/recipe"
)

// Requirer supplies a package's direct dependencies and current version, as
// implemented by *recipe.Store.
type Requirer interface {
	Requires(pkg string) ([]string, error)
	Current(pkg string) (*recipe.Recipe, string, bool)
}

// Plan is the ordered result of planning an install: Install lists packages
// to build, in dependency order (a package's dependencies always precede
// it); Uninstall lists packages to remove first, in reverse dependency order
// (a package's dependents always precede it, so nothing is ever left
// depending on an already-removed package mid-uninstall).
type Plan struct {
	Install   []string
	Uninstall []string
}

// Plan computes a Plan for installing requested (already expanded from
// roles) given installed, a map of currently installed package name to
// installed version label.
//
// Classification follows the stricter interpretation: if a package's
// recipe-derived current version differs from its installed version, that
// package is rebuilt, and so is every already-installed package that
// transitively depends on it (even if that dependent's own recipe version
// is unchanged), since its existing build may have been linked against the
// old version. Only dependents inside the closure of requested are planned:
// an installed dependent outside that closure is neither rebuilt nor
// uninstalled.
func Plan(requirer Requirer, requested []string, installed map[string]string) (*Plan, error) {
	closure, order, err := closeOver(requirer, requested)
	if err != nil {
		return nil, err
	}

	changed := map[string]struct{}{}
	for _, pkg := range closure {
		_, version, ok := requirer.Current(pkg)
		if !ok {
			return nil, errs.New(errs.Recipe, fmt.Sprintf("couldn't find a build recipe for the %s package", pkg))
		}
		installedVersion, isInstalled := installed[pkg]
		if !isInstalled || installedVersion != version {
			changed[pkg] = struct{}{}
		}
	}

	dependents, err := reverseDependents(requirer, installed)
	if err != nil {
		return nil, err
	}
	for pkg := range changed {
		for _, dep := range transitiveDependents(pkg, dependents) {
			if _, ok := installed[dep]; ok {
				changed[dep] = struct{}{}
			}
		}
	}

	var install []string
	for _, pkg := range order {
		if _, ok := changed[pkg]; ok {
			install = append(install, pkg)
		}
	}

	uninstall := make([]string, len(install))
	for i, pkg := range install {
		uninstall[len(install)-1-i] = pkg
	}
	var filteredUninstall []string
	for _, pkg := range uninstall {
		if _, ok := installed[pkg]; ok {
			filteredUninstall = append(filteredUninstall, pkg)
		}
	}

	return &Plan{Install: install, Uninstall: filteredUninstall}, nil
}

// closeOver returns the transitive dependency closure of requested (as an
// unordered set in closure) and a stable topological order over that
// closure (dependencies before dependents, ties broken by first-requested
// order) in order.
func closeOver(requirer Requirer, requested []string) (closure, order []string, err error) {
	seen := map[string]struct{}{}
	visiting := map[string]struct{}{}
	var visit func(pkg string) error
	visit = func(pkg string) error {
		if _, ok := seen[pkg]; ok {
			return nil
		}
		if _, ok := visiting[pkg]; ok {
			return errs.New(errs.Recipe, fmt.Sprintf("dependency cycle detected at package %s", pkg))
		}
		visiting[pkg] = struct{}{}

		deps, err := requirer.Requires(pkg)
		if err != nil {
			return err
		}
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}

		delete(visiting, pkg)
		seen[pkg] = struct{}{}
		closure = append(closure, pkg)
		order = append(order, pkg)
		return nil
	}

	for _, pkg := range requested {
		if err := visit(pkg); err != nil {
			return nil, nil, err
		}
	}
	return closure, order, nil
}

// reverseDependents returns, for every package that some installed package
// directly requires, the installed packages that directly depend on it.
// Packages that are not installed contribute no edges.
func reverseDependents(requirer Requirer, installed map[string]string) (map[string][]string, error) {
	out := map[string][]string{}
	for pkg := range installed {
		deps, err := requirer.Requires(pkg)
		if err != nil {
			// An installed package with no surviving recipe can't
			// contribute reverse-dependency edges; it's outside the
			// plan's concern (cleanup of orphaned packages is a
			// separate, explicit operation).
			continue
		}
		for _, dep := range deps {
			out[dep] = append(out[dep], pkg)
		}
	}
	return out, nil
}

// transitiveDependents returns every package that depends on pkg, directly
// or indirectly, via the dependents edge map.
func transitiveDependents(pkg string, dependents map[string][]string) []string {
	seen := map[string]struct{}{}
	var out []string
	var walk func(p string)
	walk = func(p string) {
		for _, dep := range dependents[p] {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			out = append(out, dep)
			walk(dep)
		}
	}
	walk(pkg)
	sort.Strings(out)
	return out
}
