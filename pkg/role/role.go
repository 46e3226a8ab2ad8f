// Package role holds the declarative shape of a "role": a named set of
// packages to install, optionally extending another role. Loading a role
// file (YAML decoding into redpill.yaml's documented shape) is an external
// collaborator; this package only resolves the in-memory graph.
package role

import "fmt"

// Role is a named bundle of packages, plus an optional parent role whose
// packages are pulled in too.
type Role struct {
	Name     string
	Packages []string
	Requires *Role
}

// Resolve returns the union of r's own packages and every package pulled in
// transitively through Requires, in first-seen order, with duplicates
// removed. A role that (directly or indirectly) requires itself is an error.
func (r *Role) Resolve() ([]string, error) {
	seen := map[string]struct{}{}
	var out []string

	visited := map[*Role]struct{}{}
	var walk func(role *Role) error
	walk = func(role *Role) error {
		if role == nil {
			return nil
		}
		if _, ok := visited[role]; ok {
			return fmt.Errorf("role %q has a cycle in its requires chain", role.Name)
		}
		visited[role] = struct{}{}

		for _, pkg := range role.Packages {
			if _, ok := seen[pkg]; ok {
				continue
			}
			seen[pkg] = struct{}{}
			out = append(out, pkg)
		}
		return walk(role.Requires)
	}

	if err := walk(r); err != nil {
		return nil, err
	}
	return out, nil
}
