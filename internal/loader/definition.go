package loader

import (
	"fmt"
	"slices"

	"go.starlark.net/starlark"
)

const (
	HookInitialize      = "initialize"
	HookHandleData      = "handle_data"
	HookCustomIndicator = "custom_indicator"

	// hookModule labels failures in a candidate's top-level code.
	hookModule = "<module>"
)

var (
	requiredHooks = []string{HookInitialize, HookHandleData}
	knownHooks    = []string{HookInitialize, HookHandleData, HookCustomIndicator}
)

// Definition is the value a Strategy(...) call produces. A candidate
// qualifies by binding exactly one of them to a global.
type Definition struct {
	name   string
	hooks  map[string]starlark.Value
	frozen bool
}

var _ starlark.HasAttrs = (*Definition)(nil)

func (d *Definition) Name() string { return d.name }

func (d *Definition) String() string        { return fmt.Sprintf("Strategy(%q)", d.name) }
func (d *Definition) Type() string          { return "Strategy" }
func (d *Definition) Truth() starlark.Bool  { return starlark.True }
func (d *Definition) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Strategy") }

func (d *Definition) Freeze() {
	if d.frozen {
		return
	}
	d.frozen = true
	for _, v := range d.hooks {
		v.Freeze()
	}
}

func (d *Definition) Attr(name string) (starlark.Value, error) {
	if name == "name" {
		return starlark.String(d.name), nil
	}
	return d.hooks[name], nil
}

func (d *Definition) AttrNames() []string {
	names := []string{"name"}
	for _, h := range knownHooks {
		if _, ok := d.hooks[h]; ok {
			names = append(names, h)
		}
	}
	return names
}

// Hook returns the function bound to a hook name, if any.
func (d *Definition) Hook(name string) (*starlark.Function, bool) {
	fn, ok := d.hooks[name].(*starlark.Function)
	return fn, ok
}

// strategyBuiltin implements Strategy(name=..., initialize=..., ...).
var strategyBuiltin = starlark.NewBuiltin("Strategy", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("%s: takes keyword arguments only", b.Name())
	}
	d := &Definition{hooks: map[string]starlark.Value{}}
	for _, kv := range kwargs {
		key, _ := starlark.AsString(kv[0])
		switch {
		case key == "name":
			s, ok := starlark.AsString(kv[1])
			if !ok {
				return nil, fmt.Errorf("%s: name must be a string, got %s", b.Name(), kv[1].Type())
			}
			d.name = s
		case slices.Contains(knownHooks, key):
			d.hooks[key] = kv[1]
		default:
			return nil, fmt.Errorf("%s: unexpected keyword argument %q", b.Name(), key)
		}
	}
	return d, nil
})

// validate checks that the hooks the harness calls exist and accept the
// calling convention: no parameters, or a single `self`.
func (d *Definition) validate() error {
	for _, h := range knownHooks {
		v, ok := d.hooks[h]
		if !ok || v == starlark.None {
			if slices.Contains(requiredHooks, h) {
				return &LoadError{Reason: ReasonMissingHook, Detail: fmt.Sprintf("strategy %q has no %s hook", d.name, h)}
			}
			continue
		}
		fn, ok := v.(*starlark.Function)
		if !ok {
			return &LoadError{Reason: ReasonInvalidHook, Detail: fmt.Sprintf("%s must be a function, got %s", h, v.Type())}
		}
		if fn.NumParams() > 1 || fn.NumKwonlyParams() > 0 {
			return &LoadError{Reason: ReasonInvalidHook, Detail: fmt.Sprintf("%s must take at most one parameter (self), takes %d", h, fn.NumParams())}
		}
	}
	return nil
}
