package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tav/redpill/pkg/config"
	"github.com/tav/redpill/pkg/display"
	"github.com/tav/redpill/pkg/recipe"
)

func testLayout(t *testing.T) config.Layout {
	t.Helper()
	root := t.TempDir()
	local := filepath.Join(root, "local")
	layout := config.Layout{
		Environ:    root,
		Local:      local,
		WorkingDir: filepath.Join(root, "work"),
		Include:    filepath.Join(local, "include"),
		Lib:        filepath.Join(local, "lib"),
		Bin:        filepath.Join(local, "bin"),
	}
	for _, dir := range []string{layout.WorkingDir, layout.Include, layout.Lib, layout.Bin} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(cwd) })
	return layout
}

func TestBuildRunsActionAndReportsReceipt(t *testing.T) {
	layout := testLayout(t)
	disp := display.New(os.Stderr, true)
	ex := New(disp, layout)

	var ran bool
	info := &recipe.Info{
		Recipe: recipe.Recipe{
			Name: "widget",
			Commands: recipe.LiteralCommands{
				{Action: func() error {
					ran = true
					return os.WriteFile(filepath.Join(layout.Bin, "widget"), []byte("bin"), 0o644)
				}},
			},
		},
		Version: "1.0",
	}

	result, err := ex.Build(context.Background(), "widget", info, "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !ran {
		t.Fatal("expected the action command to run")
	}
	if len(result.Receipt) != 1 {
		t.Fatalf("expected exactly one receipt entry, got %v", result.Receipt)
	}
}

func TestBuildStripsMakeEnv(t *testing.T) {
	layout := testLayout(t)
	disp := display.New(os.Stderr, true)
	ex := New(disp, layout)

	os.Setenv("MAKE", "make")
	os.Setenv("MAKELEVEL", "1")
	t.Cleanup(func() {
		os.Unsetenv("MAKE")
		os.Unsetenv("MAKELEVEL")
	})

	info := &recipe.Info{Recipe: recipe.Recipe{Name: "widget"}}
	env := ex.buildEnv(info)
	if _, ok := env["MAKE"]; ok {
		t.Fatal("expected MAKE to be stripped")
	}
	if _, ok := env["MAKELEVEL"]; ok {
		t.Fatal("expected MAKELEVEL to be stripped")
	}
}
