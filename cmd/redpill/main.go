// Command redpill builds and installs packages from source, following the
// recipes found under $REDPILL_BUILD_RECIPES.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/tav/redpill/pkg/config"
	"github.com/tav/redpill/pkg/display"
	"github.com/tav/redpill/pkg/engine"
	"github.com/tav/redpill/pkg/role"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("REDPILL_VERBOSE") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches to one of the engine's operations. Config (redpill.yaml)
// and role-file decoding are out of scope (see pkg/config and pkg/role); the requested
// packages are taken directly from argv, mirroring the simplest case of
// main.py's "redpill install PKG..." invocation.
func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: redpill <install|uninstall|build|info|nuke> [package...]")
	}

	layout, err := config.NewLayout()
	if err != nil {
		return err
	}
	disp := display.NewStderr(config.NoColor())
	e := engine.New(*layout, config.Values{}, disp)

	cmd, rest := args[0], args[1:]
	r := &role.Role{Name: "cli", Packages: rest}

	switch cmd {
	case "install":
		return e.Run(ctx, r)

	case "uninstall":
		return e.Uninstall(ctx, rest)

	case "build":
		if err := e.Init(ctx); err != nil {
			return err
		}
		info, err := e.BuildInfo(r)
		if err != nil {
			return err
		}
		for _, pkg := range rest {
			disp.Action("%s would build at version %s", pkg, info[pkg])
		}
		return nil

	case "info":
		if err := e.Init(ctx); err != nil {
			return err
		}
		names, installed, err := e.InstalledInfo()
		if err != nil {
			return err
		}
		for _, pkg := range names {
			disp.Action("%s %s", pkg, installed[pkg])
		}
		return nil

	case "nuke":
		return e.Nuke()

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
