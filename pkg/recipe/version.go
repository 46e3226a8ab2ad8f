package recipe

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tav/redpill/pkg/errs"
)

// ResolveVersion derives the version label for a recipe, per the recipe
// store's initialization contract:
//   - literal recipes (Type not in {git, makelike}) use Recipe.Version as-is.
//   - git recipes run "git rev-parse HEAD" in environRoot/Recipe.Path.
//   - makelike recipes hash their declared input files.
//
// For makelike recipes, stale also reports whether any declared output is
// missing or older than the newest input, meaning any previously installed
// receipt for this package should be purged to force a rebuild.
func ResolveVersion(ctx context.Context, r *Recipe, environRoot string) (version string, stale bool, err error) {
	switch r.Type {
	case Git:
		path := filepath.Join(environRoot, r.Path)
		cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
		cmd.Dir = path
		out, err := cmd.Output()
		if err != nil {
			return "", false, errs.Wrap(errs.Recipe, fmt.Sprintf("resolving git version for %s", r.Name), err)
		}
		return strings.TrimSpace(string(out)), false, nil

	case Makelike:
		return resolveContentHash(r)

	default:
		return r.Version, false, nil
	}
}

// resolveContentHash computes the SHA-1 content-hash version for a makelike
// recipe: the hex digest of the concatenation of "{path}\x00{contents}"
// segments over every file matched by Depends globs, taken in sorted
// filename order. It also determines staleness: any Outputs glob with no
// matches, any output that can't be stat'ed or is a directory, or any output whose mtime
// is <= the newest input's mtime, marks the recipe stale.
func resolveContentHash(r *Recipe) (version string, stale bool, err error) {
	contents := make(map[string][]byte)
	var files []string
	var latest int64

	for _, pattern := range r.Depends {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return "", false, fmt.Errorf("bad depends glob %q for %s: %w", pattern, r.Name, err)
		}
		for _, file := range matches {
			data, err := os.ReadFile(file)
			if err != nil {
				return "", false, fmt.Errorf("reading depends file %s for %s: %w", file, r.Name, err)
			}
			contents[file] = data
			files = append(files, file)
			info, err := os.Stat(file)
			if err != nil {
				return "", false, err
			}
			if mt := info.ModTime().UnixNano(); mt > latest {
				latest = mt
			}
		}
	}

	stale = false
	for _, pattern := range r.Outputs {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return "", false, fmt.Errorf("bad outputs glob %q for %s: %w", pattern, r.Name, err)
		}
		if len(matches) == 0 {
			stale = true
			break
		}
		for _, file := range matches {
			info, err := os.Stat(file)
			if err != nil || info.IsDir() {
				stale = true
				break
			}
			if info.ModTime().UnixNano() <= latest {
				stale = true
				break
			}
		}
		if stale {
			break
		}
	}

	sort.Strings(files)
	h := sha1.New()
	for _, f := range files {
		fmt.Fprintf(h, "%s\x00%s", f, contents[f])
	}
	return hex.EncodeToString(h.Sum(nil)), stale, nil
}
