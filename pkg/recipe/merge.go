package recipe

import (
	"io"
	"os"
	"os/exec"
)

// pythonExecutable returns the interpreter to invoke for python-type
// recipes: the one running redpill itself isn't meaningful in Go, so we
// resolve "python3" on PATH, falling back to "python".
func pythonExecutable() string {
	if path, err := exec.LookPath("python3"); err == nil {
		return path
	}
	return "python"
}

// copyFile copies src to dst, creating/truncating dst, used by the jar
// build type's in-process install Action.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// Merge applies template's defaults and then r's own fields to build the
// concrete Info for one build. Any field r sets explicitly (non-zero)
// overrides the template; version is the already-resolved version label
// (literal, git revision, or content-hash digest), not r.Version.
func (r *Recipe) Merge(tmpl Template, version string) *Info {
	info := &Info{Recipe: *r, Version: version}

	if info.Distfile == "" {
		info.Distfile = tmpl.Distfile
	}
	if info.URLBase == "" {
		info.URLBase = tmpl.URLBase
	}
	if info.Commands == nil {
		info.Commands = tmpl.Commands
	}
	if info.ConfigCommand == "" {
		info.ConfigCommand = tmpl.ConfigCommand
	}
	if info.ConfigFlags == nil {
		info.ConfigFlags = tmpl.ConfigFlags
	}
	if info.MakeFlags == nil {
		info.MakeFlags = tmpl.MakeFlags
	}
	if !info.SeparateMakeInstall {
		info.SeparateMakeInstall = tmpl.SeparateMakeInstall
	}
	if info.Source == "" {
		info.Source = tmpl.Source
	}
	if info.Destination == "" {
		info.Destination = tmpl.Destination
	}

	return info
}
