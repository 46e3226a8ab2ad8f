package recipe

import (
	"context"
	"fmt"
	"sort"

	"github.com/tav/redpill/pkg/errs"
	"github.com/tav/redpill/pkg/ledger"
)

// packageState holds one package's recipes, keyed by resolved version label,
// plus the ordered list of labels as they were declared; index 0 is the
// current version the engine will install.
type packageState struct {
	byVersion map[string]*Recipe
	versions  []string
}

// Store holds every recipe declared across the configured recipe files,
// keyed by package and then by resolved version. It is built once per run
// (Init is idempotent) and is immutable thereafter.
type Store struct {
	packages map[string]*packageState
}

// NewStore returns an empty Store; call Init to populate it.
func NewStore() *Store {
	return &Store{packages: map[string]*packageState{}}
}

// Init loads every recipe file in files, derives each recipe's version
// label (literal, git revision, or content-hash digest), and purges any
// stale makelike package's existing receipts so it gets rebuilt.
// environRoot is $REDPILL_ENVIRON, used to resolve git recipe paths.
// receiptsDir is where stale-triggered receipt purges happen.
func (s *Store) Init(ctx context.Context, files []string, environRoot, receiptsDir string) error {
	declOrder := map[string][]*Recipe{}
	for _, file := range files {
		recipes, err := LoadFile(file)
		if err != nil {
			return errs.Wrap(errs.Recipe, "loading recipes", err)
		}
		for _, r := range recipes {
			declOrder[r.Name] = append(declOrder[r.Name], r)
		}
	}

	for pkg, recipes := range declOrder {
		state := &packageState{byVersion: map[string]*Recipe{}}
		for _, r := range recipes {
			version, stale, err := ResolveVersion(ctx, r, environRoot)
			if err != nil {
				return errs.Wrap(errs.Recipe, fmt.Sprintf("resolving version for package %s", pkg), err)
			}
			if stale {
				if err := purgeReceipts(receiptsDir, pkg); err != nil {
					return fmt.Errorf("purging stale receipts for %s: %w", pkg, err)
				}
			}
			state.byVersion[version] = r
			state.versions = append(state.versions, version)
		}
		s.packages[pkg] = state
	}
	return nil
}

// purgeReceipts deletes every receipt whose name starts with "{pkg}-",
// forcing a rebuild and reinstall of whatever version was previously
// installed.
func purgeReceipts(receiptsDir, pkg string) error {
	names, err := ledger.ListReceipts(receiptsDir)
	if err != nil {
		return err
	}
	prefix := pkg + "-"
	for _, name := range names {
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			if err := ledger.DeleteReceipt(receiptsDir, name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Has reports whether pkg has any declared recipe.
func (s *Store) Has(pkg string) bool {
	_, ok := s.packages[pkg]
	return ok
}

// Current returns pkg's current (version 0) recipe and that version label.
func (s *Store) Current(pkg string) (*Recipe, string, bool) {
	state, ok := s.packages[pkg]
	if !ok || len(state.versions) == 0 {
		return nil, "", false
	}
	v := state.versions[0]
	return state.byVersion[v], v, true
}

// Lookup returns pkg's recipe at a specific version.
func (s *Store) Lookup(pkg, version string) (*Recipe, bool) {
	state, ok := s.packages[pkg]
	if !ok {
		return nil, false
	}
	r, ok := state.byVersion[version]
	return r, ok
}

// Requires returns the current recipe's direct dependencies for pkg.
func (s *Store) Requires(pkg string) ([]string, error) {
	r, _, ok := s.Current(pkg)
	if !ok {
		return nil, errs.New(errs.Recipe, fmt.Sprintf("couldn't find a build recipe for the %s package", pkg))
	}
	return r.Requires, nil
}

// Packages returns every package name with at least one declared recipe, in
// sorted order (for deterministic iteration in callers like `info`).
func (s *Store) Packages() []string {
	out := make([]string, 0, len(s.packages))
	for pkg := range s.packages {
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out
}
