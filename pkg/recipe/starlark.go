package recipe

import (
	"fmt"
	"go.starlark.net/starlark"
	"log/slog"
)

// loader executes a single recipe file's Starlark source and collects the
// Recipe values it registers via the "recipe(...)" builtin. Each recipe
// file is equivalent to main.py's execfile(recipe, BUILTINS): it runs once,
// in-process, and its declarations accumulate into RECIPES in declaration
// order.
type loader struct {
	recipes []*Recipe
}

// LoadFile executes the Starlark source at path and returns the Recipe
// values it declared, in declaration order.
func LoadFile(path string) ([]*Recipe, error) {
	l := &loader{}
	thread := &starlark.Thread{
		Name: path,
		Print: func(_ *starlark.Thread, msg string) {
			slog.Info(msg, "recipe_file", path)
		},
	}
	predeclared := starlark.StringDict{
		"recipe": starlark.NewBuiltin("recipe", l.recipeBuiltin),
	}
	if _, err := starlark.ExecFile(thread, path, nil, predeclared); err != nil {
		return nil, fmt.Errorf("loading recipe file %s: %w", path, err)
	}
	return l.recipes, nil
}

// recipeBuiltin implements the Starlark-visible `recipe(...)` call that a
// recipe file uses to declare one (package, version) build definition.
func (l *loader) recipeBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		name, typ, version, hash, distfile, urlBase, path  string
		configCommand, source, destination                 string
		separateMakeInstall, clean                          bool
		requires, configFlags, makeFlags, depends, outputs starlark.Value
		commands, before, after, env                       starlark.Value
	)

	if err := starlark.UnpackArgs("recipe", args, kwargs,
		"name", &name,
		"type?", &typ,
		"version?", &version,
		"requires?", &requires,
		"hash?", &hash,
		"distfile?", &distfile,
		"distfile_url_base?", &urlBase,
		"commands?", &commands,
		"before?", &before,
		"after?", &after,
		"env?", &env,
		"config_command?", &configCommand,
		"config_flags?", &configFlags,
		"make_flags?", &makeFlags,
		"separate_make_install?", &separateMakeInstall,
		"source?", &source,
		"destination?", &destination,
		"path?", &path,
		"clean?", &clean,
		"depends?", &depends,
		"outputs?", &outputs,
	); err != nil {
		return nil, err
	}

	r := &Recipe{
		Name:                name,
		Version:             version,
		Type:                BuildType(typ),
		Hash:                hash,
		Distfile:            distfile,
		URLBase:             urlBase,
		ConfigCommand:       configCommand,
		SeparateMakeInstall: separateMakeInstall,
		Source:              source,
		Destination:         destination,
		Path:                path,
		Clean:               clean,
	}
	if r.Type == "" {
		r.Type = Default
	}

	var err error
	if r.Requires, err = stringListValue(requires); err != nil {
		return nil, fmt.Errorf("recipe %s: requires: %w", name, err)
	}
	if r.ConfigFlags, err = stringListValue(configFlags); err != nil {
		return nil, fmt.Errorf("recipe %s: config_flags: %w", name, err)
	}
	if r.MakeFlags, err = stringListValue(makeFlags); err != nil {
		return nil, fmt.Errorf("recipe %s: make_flags: %w", name, err)
	}
	if r.Depends, err = stringListValue(depends); err != nil {
		return nil, fmt.Errorf("recipe %s: depends: %w", name, err)
	}
	if r.Outputs, err = stringListValue(outputs); err != nil {
		return nil, fmt.Errorf("recipe %s: outputs: %w", name, err)
	}
	if envDict, ok := env.(*starlark.Dict); ok {
		r.Env = map[string]string{}
		for _, item := range envDict.Items() {
			k, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("recipe %s: env keys must be strings", name)
			}
			v, ok := starlark.AsString(item[1])
			if !ok {
				return nil, fmt.Errorf("recipe %s: env values must be strings", name)
			}
			r.Env[k] = v
		}
	}

	if commands != nil && commands != starlark.None {
		r.Commands, err = commandsFromStarlark(thread, name, commands)
		if err != nil {
			return nil, err
		}
	}
	if before != nil && before != starlark.None {
		r.Before = actionFromStarlark(thread, before)
	}
	if after != nil && after != starlark.None {
		r.After = actionFromStarlark(thread, after)
	}

	l.recipes = append(l.recipes, r)
	return starlark.None, nil
}

// stringListValue converts a Starlark list value into a []string. A nil or
// None value yields a nil slice.
func stringListValue(v starlark.Value) ([]string, error) {
	if v == nil || v == starlark.None {
		return nil, nil
	}
	l, ok := v.(*starlark.List)
	if !ok {
		return nil, fmt.Errorf("expected a list of strings, got %s", v.Type())
	}
	out := make([]string, 0, l.Len())
	iter := l.Iterate()
	defer iter.Done()
	var item starlark.Value
	for iter.Next(&item) {
		s, ok := starlark.AsString(item)
		if !ok {
			return nil, fmt.Errorf("expected a list of strings, got %s", item.Type())
		}
		out = append(out, s)
	}
	return out, nil
}

// commandsFromStarlark converts the "commands" argument into a Commands
// value: either a literal list of argv lists, or a callable invoked at
// build time with (package, info-as-dict).
func commandsFromStarlark(thread *starlark.Thread, pkgName string, v starlark.Value) (Commands, error) {
	if fn, ok := v.(starlark.Callable); ok {
		return FuncCommands(func(pkg string, info *Info) ([]Command, error) {
			result, err := starlark.Call(thread, fn, starlark.Tuple{
				starlark.String(pkg),
				infoToStarlark(info),
			}, nil)
			if err != nil {
				return nil, fmt.Errorf("calling commands() for %s: %w", pkg, err)
			}
			return commandsFromListValue(result)
		}), nil
	}
	cmds, err := commandsFromListValue(v)
	if err != nil {
		return nil, fmt.Errorf("recipe %s: commands: %w", pkgName, err)
	}
	return LiteralCommands(cmds), nil
}

func commandsFromListValue(v starlark.Value) ([]Command, error) {
	list, ok := v.(*starlark.List)
	if !ok {
		return nil, fmt.Errorf("expected a list of argv lists, got %s", v.Type())
	}
	var out []Command
	iter := list.Iterate()
	defer iter.Done()
	var item starlark.Value
	for iter.Next(&item) {
		argv, err := stringListValue(item)
		if err != nil {
			return nil, err
		}
		out = append(out, Command{Exec: Exec(argv)})
	}
	return out, nil
}

func actionFromStarlark(thread *starlark.Thread, fn starlark.Value) Action {
	callable, ok := fn.(starlark.Callable)
	if !ok {
		return nil
	}
	return func() error {
		_, err := starlark.Call(thread, callable, nil, nil)
		return err
	}
}

// infoToStarlark exposes the subset of Info a commands() callable needs:
// name, version and env, as a Starlark struct-like dict.
func infoToStarlark(info *Info) starlark.Value {
	d := starlark.NewDict(4)
	d.SetKey(starlark.String("name"), starlark.String(info.Name))
	d.SetKey(starlark.String("version"), starlark.String(info.Version))
	envDict := starlark.NewDict(len(info.Env))
	for k, v := range info.Env {
		envDict.SetKey(starlark.String(k), starlark.String(v))
	}
	d.SetKey(starlark.String("env"), envDict)
	return d
}
