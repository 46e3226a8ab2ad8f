package recipe

import (
	"fmt"
	"path/filepath"
)

// Template holds a BuildType's field defaults, applied before a Recipe's own
// fields override them.
type Template struct {
	Distfile            string
	URLBase             string
	Commands            Commands
	ConfigCommand       string
	ConfigFlags         []string
	MakeFlags           []string
	SeparateMakeInstall bool
	Source              string
	Destination         string
}

// Templates builds the BuildType -> Template table. prefix is the managed
// install prefix ($REDPILL_ENVIRON/local), needed to fill in --prefix and
// jar/resource destination defaults. makeBin is the platform's make binary
// ("make" or FreeBSD's "gmake"). urlBase is the configured
// `distfiles-url-base`, the default every recipe's distfile URL resolves
// against unless it sets its own `distfile_url_base` (main.py's
// BASE_BUILD['distfile_url_base'] = DISTFILES_URL_BASE).
func Templates(prefix, workingDir, makeBin, urlBase string) map[BuildType]Template {
	return map[BuildType]Template{
		Default: {
			Distfile: "{name}-{version}.tar.bz2",
			URLBase:  urlBase,
			Commands: FuncCommands(func(pkg string, info *Info) ([]Command, error) {
				return defaultBuildCommands(pkg, info, makeBin)
			}),
			ConfigCommand:       "./configure",
			ConfigFlags:         []string{"--prefix=" + prefix},
			MakeFlags:           []string{"install"},
			SeparateMakeInstall: false,
		},
		Python: {
			Distfile: "{name}-{version}.tar.bz2",
			URLBase:  urlBase,
			Commands: LiteralCommands{{Exec: Exec{pythonExecutable(), "setup.py", "build_ext", "-i"}}},
		},
		Resource: {
			Distfile: "{name}-{version}.tar.bz2",
			URLBase:  urlBase,
			Commands: FuncCommands(func(pkg string, info *Info) ([]Command, error) {
				return resourceBuildCommands(pkg, info, workingDir, prefix)
			}),
		},
		Jar: {
			Distfile: "{name}-{version}.jar",
			URLBase:  urlBase,
			Commands: FuncCommands(func(pkg string, info *Info) ([]Command, error) {
				return jarInstallCommands(pkg, info, prefix)
			}),
		},
		Git: {
			Distfile: "",
		},
		Makelike: {
			Distfile: "",
		},
	}
}

// defaultBuildCommands implements the "default" build type: an optional
// configure step followed by make (and, for packages whose build and
// install steps must be separate invocations, a bare "make" before
// "make install").
func defaultBuildCommands(pkg string, info *Info, makeBin string) ([]Command, error) {
	var cmds []Command
	if info.ConfigCommand != "" {
		argv := append(Exec{info.ConfigCommand}, info.ConfigFlags...)
		cmds = append(cmds, Command{Exec: argv})
	}
	if info.SeparateMakeInstall {
		cmds = append(cmds, Command{Exec: Exec{makeBin}})
	}
	cmds = append(cmds, Command{Exec: append(Exec{makeBin}, info.MakeFlags...)})
	return cmds, nil
}

func resourceBuildCommands(pkg string, info *Info, workingDir, prefix string) ([]Command, error) {
	source := info.Source
	if source == "" {
		source = filepath.Join(workingDir, pkg)
	}
	destination := info.Destination
	if destination == "" {
		destination = filepath.Join(prefix, "share", pkg)
	}
	return []Command{{Exec: Exec{"cp", "-R", source, destination}}}, nil
}

func jarInstallCommands(pkg string, info *Info, prefix string) ([]Command, error) {
	filename := fmt.Sprintf("%s-%s.jar", pkg, info.Version)
	dest := filepath.Join(prefix, "bin", filename)
	return []Command{{Action: func() error {
		return copyFile(filename, dest)
	}}}, nil
}
