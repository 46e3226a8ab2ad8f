package role

import (
	"reflect"
	"testing"
)

func TestResolveUnionsRequiredRoles(t *testing.T) {
	base := &Role{Name: "base", Packages: []string{"gcc", "make"}}
	web := &Role{Name: "web", Packages: []string{"nginx", "gcc"}, Requires: base}

	got, err := web.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"nginx", "gcc", "make"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestResolveDetectsCycle(t *testing.T) {
	a := &Role{Name: "a"}
	b := &Role{Name: "b", Requires: a}
	a.Requires = b

	if _, err := a.Resolve(); err == nil {
		t.Fatal("expected a cycle error")
	}
}
