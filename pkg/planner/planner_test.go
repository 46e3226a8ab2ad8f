package planner

import (
	"reflect"
	"testing"

	"github.com/tav/redpill/pkg/recipe"
)

type fakeRequirer struct {
	requires map[string][]string
	versions map[string]string
}

func (f *fakeRequirer) Requires(pkg string) ([]string, error) {
	return f.requires[pkg], nil
}

func (f *fakeRequirer) Current(pkg string) (*recipe.Recipe, string, bool) {
	v, ok := f.versions[pkg]
	if !ok {
		return nil, "", false
	}
	return &recipe.Recipe{Name: pkg}, v, true
}

func TestPlanOrdersDependenciesBeforeDependents(t *testing.T) {
	r := &fakeRequirer{
		requires: map[string][]string{
			"app": {"lib"},
			"lib": {"zlib"},
		},
		versions: map[string]string{"app": "1", "lib": "1", "zlib": "1"},
	}

	plan, err := Plan(r, []string{"app"}, map[string]string{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := []string{"zlib", "lib", "app"}
	if !reflect.DeepEqual(plan.Install, want) {
		t.Fatalf("got install order %v, want %v", plan.Install, want)
	}
	if len(plan.Uninstall) != 0 {
		t.Fatalf("expected no uninstalls for a fresh install, got %v", plan.Uninstall)
	}
}

func TestPlanSkipsUnchangedPackages(t *testing.T) {
	r := &fakeRequirer{
		requires: map[string][]string{"app": {"lib"}},
		versions: map[string]string{"app": "1", "lib": "1"},
	}

	plan, err := Plan(r, []string{"app"}, map[string]string{"app": "1", "lib": "1"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Install) != 0 {
		t.Fatalf("expected nothing to install, got %v", plan.Install)
	}
}

func TestPlanRebuildsTransitiveDependentsOnVersionChange(t *testing.T) {
	r := &fakeRequirer{
		requires: map[string][]string{
			"app": {"lib"},
			"lib": {"zlib"},
		},
		versions: map[string]string{"app": "1", "lib": "1", "zlib": "2"},
	}
	installed := map[string]string{"app": "1", "lib": "1", "zlib": "1"}

	plan, err := Plan(r, []string{"app"}, installed)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := []string{"zlib", "lib", "app"}
	if !reflect.DeepEqual(plan.Install, want) {
		t.Fatalf("got install order %v, want %v", plan.Install, want)
	}
	wantUninstall := []string{"app", "lib", "zlib"}
	if !reflect.DeepEqual(plan.Uninstall, wantUninstall) {
		t.Fatalf("got uninstall order %v, want %v", plan.Uninstall, wantUninstall)
	}
}

func TestPlanDetectsCycle(t *testing.T) {
	r := &fakeRequirer{
		requires: map[string][]string{
			"a": {"b"},
			"b": {"a"},
		},
		versions: map[string]string{"a": "1", "b": "1"},
	}
	if _, err := Plan(r, []string{"a"}, map[string]string{}); err == nil {
		t.Fatal("expected a cycle error")
	}
}
