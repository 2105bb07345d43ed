package loader

import (
	"fmt"
	"maps"
	"slices"

	"go.starlark.net/starlark"
)

// State is the mutable `self` handed to a strategy's hooks. Every
// instance gets its own.
type State struct {
	fields map[string]starlark.Value
	frozen bool
}

var _ starlark.HasSetField = (*State)(nil)

func NewState() *State {
	return &State{fields: map[string]starlark.Value{}}
}

func (s *State) String() string        { return fmt.Sprintf("<state with %d fields>", len(s.fields)) }
func (s *State) Type() string          { return "state" }
func (s *State) Truth() starlark.Bool  { return starlark.True }
func (s *State) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: state") }

func (s *State) Freeze() {
	if s.frozen {
		return
	}
	s.frozen = true
	for _, v := range s.fields {
		v.Freeze()
	}
}

// Attr returns nil for unknown fields so the interpreter reports a
// missing attribute.
func (s *State) Attr(name string) (starlark.Value, error) {
	return s.fields[name], nil
}

func (s *State) AttrNames() []string {
	return slices.Sorted(maps.Keys(s.fields))
}

func (s *State) SetField(name string, v starlark.Value) error {
	if s.frozen {
		return fmt.Errorf("cannot set .%s on frozen state", name)
	}
	s.fields[name] = v
	return nil
}

// Get returns a field for inspection from Go.
func (s *State) Get(name string) (starlark.Value, bool) {
	v, ok := s.fields[name]
	return v, ok
}
