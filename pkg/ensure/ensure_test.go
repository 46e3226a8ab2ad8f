package ensure

import (
	"context"
	"testing"
)

func TestVersionLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"1.7", "1.7", false},
		{"1.6", "1.7", true},
		{"2.0", "1.7", false},
		{"1.7", "1.7.1", true},
	}
	for _, c := range cases {
		a, err := ParseVersion(c.a)
		if err != nil {
			t.Fatal(err)
		}
		b, err := ParseVersion(c.b)
		if err != nil {
			t.Fatal(err)
		}
		if got := a.Less(b); got != c.want {
			t.Errorf("%s.Less(%s) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestRunReportsUnknownRuntime(t *testing.T) {
	err := Run(context.Background(), "gcc", map[string]string{"golang": "1.0"})
	if err == nil {
		t.Fatal("expected an error for an unregistered runtime")
	}
}
