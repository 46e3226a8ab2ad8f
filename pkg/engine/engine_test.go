package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tav/redpill/pkg/config"
	"github.com/tav/redpill/pkg/display"
	"github.com/tav/redpill/pkg/ledger"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	root := t.TempDir()
	layout := config.Layout{
		Environ:    root,
		Local:      filepath.Join(root, "local"),
		Bin:        filepath.Join(root, "local", "bin"),
		Include:    filepath.Join(root, "local", "include"),
		Lib:        filepath.Join(root, "local", "lib"),
		Share:      filepath.Join(root, "local", "share"),
		Tmp:        filepath.Join(root, "local", "tmp"),
		Receipts:   filepath.Join(root, "receipts"),
		WorkingDir: filepath.Join(root, "work"),
	}
	for _, dir := range append(layout.Dirs(), layout.Receipts) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return New(layout, config.Values{}, display.New(os.Stderr, true))
}

func TestReconcileRemovesUnclaimedFiles(t *testing.T) {
	e := testEngine(t)

	claimed := filepath.Join(e.Layout.Local, "bin", "claimed")
	unclaimed := filepath.Join(e.Layout.Local, "bin", "unclaimed")
	if err := os.MkdirAll(filepath.Dir(claimed), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(claimed, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(unclaimed, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ledger.WriteReceipt(e.Layout.Receipts, "widget-1.0", ledger.NewSet("bin/", "bin/claimed")); err != nil {
		t.Fatal(err)
	}

	if err := e.Reconcile(); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if _, err := os.Stat(claimed); err != nil {
		t.Fatalf("expected claimed file to survive: %v", err)
	}
	if _, err := os.Stat(unclaimed); !os.IsNotExist(err) {
		t.Fatalf("expected unclaimed file to be removed, stat err = %v", err)
	}
}

func TestInstalledVersionsParsesReceiptNames(t *testing.T) {
	e := testEngine(t)
	if err := ledger.WriteReceipt(e.Layout.Receipts, "widget-1.2.3", ledger.NewSet("bin/widget")); err != nil {
		t.Fatal(err)
	}

	installed, err := e.InstalledVersions()
	if err != nil {
		t.Fatalf("InstalledVersions: %v", err)
	}
	if installed["widget"] != "1.2.3" {
		t.Fatalf("got %v, want widget -> 1.2.3", installed)
	}
}
