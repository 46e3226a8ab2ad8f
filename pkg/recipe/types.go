// Package recipe holds redpill's package-definition data model: the
// (package, version)-keyed Recipe record, its build-type templates, and the
// Starlark-backed recipe files that populate the Store.
package recipe

// BuildType selects which command template and field defaults a Recipe
// inherits.
type BuildType string

const (
	Default  BuildType = "default"
	Python   BuildType = "python"
	Resource BuildType = "resource"
	Jar      BuildType = "jar"
	Git      BuildType = "git"
	Makelike BuildType = "makelike"
)

// Action is an in-process command: some build steps are not subprocesses but
// host-side actions (e.g. "copy this jar into bin/"). Keeping Action
// distinct from Exec avoids a shell indirection and keeps builtin actions
// auditable.
type Action func() error

// Exec is a subprocess command: an argv vector, run with the executor's
// computed environment.
type Exec []string

// Command is either an Exec or an Action.
type Command struct {
	Exec   Exec
	Action Action
}

// IsAction reports whether this Command runs in-process.
func (c Command) IsAction() bool { return c.Action != nil }

// Commands resolves a recipe's command sequence. It is a sum type: either a
// literal sequence fixed at recipe-load time, or a function invoked at
// build time with the package name and its materialized Info, producing the
// sequence to run. This mirrors redpill's original commands field, which in
// the Python source could be a literal list or a callable.
type Commands interface {
	Resolve(pkg string, info *Info) ([]Command, error)
}

// LiteralCommands is a fixed command sequence, unaffected by Info.
type LiteralCommands []Command

func (l LiteralCommands) Resolve(pkg string, info *Info) ([]Command, error) {
	return []Command(l), nil
}

// FuncCommands computes the command sequence at build time.
type FuncCommands func(pkg string, info *Info) ([]Command, error)

func (f FuncCommands) Resolve(pkg string, info *Info) ([]Command, error) {
	return f(pkg, info)
}

// Recipe is a package's build definition at one version. Fields are a
// superset across build types; Recipe.Merge applies the type's defaults and
// this Recipe's overrides to produce the concrete build-time Info.
type Recipe struct {
	Name    string
	Version string // literal; git/makelike versions are resolved separately, see version.go
	Type    BuildType

	Requires []string
	Hash     string // hex SHA-256 of the expected distfile bytes
	Distfile string // filename template, e.g. "{name}-{version}.tar.bz2"; may be empty
	URLBase  string // distfile_url_base

	Commands Commands
	Before   Action
	After    Action
	Env      map[string]string

	// default-type fields
	ConfigCommand       string
	ConfigFlags         []string
	MakeFlags           []string
	SeparateMakeInstall bool

	// resource-type fields
	Source      string
	Destination string

	// git-type fields
	Path  string // relative to $REDPILL_ENVIRON
	Clean bool

	// makelike-type fields
	Depends []string // glob patterns
	Outputs []string // glob patterns
}

// Info is a Recipe merged with its BuildType's template: the concrete,
// build-time view the executor consumes. It carries the resolved version
// label (which for git/makelike recipes differs from Recipe.Version).
type Info struct {
	Recipe
	Version string
}
