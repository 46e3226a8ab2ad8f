// Package config derives the redpill engine's directory layout and exposes
// the already-decoded configuration map the engine reads from. Loading
// redpill.yaml off disk is an external collaborator's job (spec'd out of
// scope); this package only sees the resulting map[string]any.
package config

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tav/redpill/pkg/common"
	"github.com/tav/redpill/pkg/errs"
)

// Values is the already-parsed contents of redpill.yaml (or an equivalent
// in-memory map built by a test or an embedding program).
type Values map[string]any

// Get returns the value for key, or (nil, false) if absent.
func (v Values) Get(key string) (any, bool) {
	val, ok := v[key]
	return val, ok
}

// String returns the string value for key, applying the given default if the
// key is absent. It returns an error if the key is present but not a string.
func (v Values) String(key, def string) (string, error) {
	val, ok := v[key]
	if !ok {
		return def, nil
	}
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("config value %q is not a string", key)
	}
	return s, nil
}

// RequireString returns the string value for key, erroring if it's absent or
// not a string, matching main.py's get_conf's "exit if missing" behaviour.
func (v Values) RequireString(key string) (string, error) {
	val, ok := v[key]
	if !ok {
		return "", fmt.Errorf("config value for %s not found", key)
	}
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("config value %q is not a string", key)
	}
	return s, nil
}

// StringMap returns the string-to-string mapping at key (used for the
// `ensure` table), or nil if absent.
func (v Values) StringMap(key string) (map[string]string, error) {
	val, ok := v[key]
	if !ok {
		return nil, nil
	}
	raw, ok := val.(map[string]any)
	if !ok {
		if m, ok := val.(map[string]string); ok {
			return m, nil
		}
		return nil, fmt.Errorf("config value %q is not a mapping", key)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("config value %q.%s is not a string", key, k)
		}
		out[k] = s
	}
	return out, nil
}

// Layout is the directory layout the engine reads and writes under
// $REDPILL_ENVIRON, plus the scratch working directory and lock file it uses
// outside that tree.
type Layout struct {
	Environ string // $REDPILL_ENVIRON

	Local   string // {environ}/local -- the managed prefix
	Bin     string
	Include string
	Lib     string
	Share   string
	Man     string
	Info    string
	Tmp     string
	Var     string

	Receipts string // {environ}/receipts

	WorkingDir string // /tmp/redpill-{hash}
	LockFile   string // {WorkingDir}.lock

	BuildRecipes []string
	PreInstalls  []string
	RolesPath    []string
}

// NewLayout derives a Layout from $REDPILL_ENVIRON and the other environment
// variables listed in the engine's external-interfaces contract.
func NewLayout() (*Layout, error) {
	environ := os.Getenv("REDPILL_ENVIRON")
	if environ == "" {
		return nil, errs.New(errs.Configuration, "the $REDPILL_ENVIRON directory variable hasn't been specified")
	}
	if info, err := os.Stat(environ); err != nil || !info.IsDir() {
		return nil, errs.New(errs.Configuration, fmt.Sprintf("$REDPILL_ENVIRON %q does not exist", environ))
	}

	local := filepath.Join(environ, "local")
	share := filepath.Join(local, "share")

	sum := sha1.Sum([]byte(environ))
	hash := hex.EncodeToString(sum[:])[:8]
	workingDir := filepath.Join(os.TempDir(), "redpill-"+hash)

	l := &Layout{
		Environ:    environ,
		Local:      local,
		Bin:        filepath.Join(local, "bin"),
		Include:    filepath.Join(local, "include"),
		Lib:        filepath.Join(local, "lib"),
		Share:      share,
		Man:        filepath.Join(share, "man"),
		Info:       filepath.Join(share, "info"),
		Tmp:        filepath.Join(local, "tmp"),
		Var:        filepath.Join(local, "var"),
		Receipts:   filepath.Join(environ, "receipts"),
		WorkingDir: workingDir,
		LockFile:   workingDir + ".lock",
	}

	l.BuildRecipes = splitExisting(
		envOrDefault("REDPILL_BUILD_RECIPES", filepath.Join(environ, "buildrecipes")),
		isFile,
	)
	l.PreInstalls = splitExisting(
		envOrDefault("REDPILL_PRE_INSTALL", filepath.Join(environ, "preinstall")),
		isFile,
	)
	l.RolesPath = splitExisting(
		envOrDefault("REDPILL_ROLES_PATH", filepath.Join(environ, "roles")),
		isDir,
	)

	return l, nil
}

// Dirs returns the directories NewLayout's caller must create before a
// build, in the order the coordinator creates them.
func (l *Layout) Dirs() []string {
	return []string{l.WorkingDir, l.Local, l.Bin, l.Share, l.Tmp}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitExisting(joined string, keep func(string) bool) []string {
	var out []string
	for _, path := range strings.Split(joined, ":") {
		if path == "" {
			continue
		}
		if keep(path) {
			out = append(out, path)
		}
	}
	return out
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// NoColor reports whether ANSI color output should be suppressed, per
// REDPILL_NOCOLOR.
func NoColor() bool {
	return os.Getenv("REDPILL_NOCOLOR") != ""
}

// CC returns the C compiler to probe for ensure_gcc_version, defaulting to
// "gcc".
func CC() string {
	return envOrDefault("CC", "gcc")
}

// Platform re-exports common.DetectPlatform for convenience callers that
// only import pkg/config.
func Platform() (common.Platform, bool) {
	return common.DetectPlatform()
}
