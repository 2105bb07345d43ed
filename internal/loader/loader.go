// Package loader turns candidate strategy source into a validated,
// compiled Handle from which isolated instances are prepared.
package loader

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/signalnine/stratgate/internal/platform"
	"github.com/signalnine/stratgate/internal/scenario"
)

const DefaultLoadTimeout = 5 * time.Second

type Options struct {
	// Timeout bounds the load-time execution of the module top level.
	Timeout time.Duration
	// MaxSteps caps interpreter steps per instance; zero means unlimited.
	MaxSteps uint64
	Symbol   string
}

// Handle is a loaded candidate. It is read-only and safe to share across
// goroutines; each execution works on its own Instance.
type Handle struct {
	src    *Source
	prog   *starlark.Program
	opts   Options
	global string
	name   string
	hooks  []string
}

// Load compiles src, runs its top level once against a nominal stub and
// checks that it declares exactly one usable strategy.
func Load(ctx context.Context, src *Source, opts Options) (*Handle, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultLoadTimeout
	}
	if err := forbidLoads(src.File); err != nil {
		return nil, err
	}

	predeclared := platform.PredeclaredNames()
	_, prog, err := starlark.SourceProgramOptions(FileOptions, src.Path, src.Text, func(name string) bool {
		return name == strategyBuiltin.Name() || predeclared[name]
	})
	if err != nil {
		return nil, &LoadError{Reason: ReasonSyntax, Detail: firstLine(err.Error()), Err: err}
	}

	h := &Handle{src: src, prog: prog, opts: opts}
	boot := h.NewInstance(platform.New(scenario.New(-1, "load", scenario.Boundary, scenario.Nominal()), platform.WithSymbol(opts.Symbol)))
	// The load-time run is bounded by its own timeout only, so an interrupted run
	// never misreports a valid candidate as failing to load.
	bootCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.Timeout)
	defer cancel()
	var globals starlark.StringDict
	err = boot.Run(bootCtx, func() error {
		var initErr error
		globals, initErr = boot.init()
		return initErr
	})
	if err != nil {
		return nil, &LoadError{Reason: ReasonInit, Detail: firstLine(err.Error()), Err: err}
	}

	def, global, err := discover(globals)
	if err != nil {
		return nil, err
	}
	if err := def.validate(); err != nil {
		return nil, err
	}
	h.global = global
	h.name = def.name
	if h.name == "" {
		h.name = src.Name
	}
	for _, hook := range knownHooks {
		if _, ok := def.Hook(hook); ok {
			h.hooks = append(h.hooks, hook)
		}
	}
	return h, nil
}

func (h *Handle) Source() *Source { return h.src }

// Name is the declared strategy name, or the source name if none.
func (h *Handle) Name() string { return h.name }

// Hooks lists the hooks the strategy defines.
func (h *Handle) Hooks() []string { return slices.Clone(h.hooks) }

func forbidLoads(f *syntax.File) error {
	for _, stmt := range f.Stmts {
		if load, ok := stmt.(*syntax.LoadStmt); ok {
			pos := syntax.Start(load)
			return &LoadError{Reason: ReasonForbidden, Detail: fmt.Sprintf("%s: load statements are not allowed", pos)}
		}
	}
	return nil
}

func discover(globals starlark.StringDict) (*Definition, string, error) {
	var (
		defs  []*Definition
		names []string
		funcs []string
	)
	for _, name := range slices.Sorted(maps.Keys(globals)) {
		switch v := globals[name].(type) {
		case *Definition:
			if !slices.Contains(defs, v) {
				defs = append(defs, v)
				names = append(names, name)
			}
		case *starlark.Function:
			funcs = append(funcs, name)
		}
	}
	switch len(defs) {
	case 0:
		detail := "no Strategy(...) declaration found"
		if len(funcs) > 0 {
			detail += "; top-level functions: " + strings.Join(funcs, ", ")
		}
		return nil, "", &LoadError{Reason: ReasonNoStrategy, Detail: detail}
	case 1:
		return defs[0], names[0], nil
	}
	return nil, "", &LoadError{Reason: ReasonAmbiguous, Detail: fmt.Sprintf("%d Strategy declarations: %s", len(defs), strings.Join(names, ", "))}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
