package validation

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/signalnine/stratgate/internal/loader"
	"github.com/signalnine/stratgate/internal/rules"
)

func TestDimensionPanicBecomesWarning(t *testing.T) {
	s := NewScorer(rules.Default(), 0, zerolog.Nop())
	a := &analysis{src: &loader.Source{Name: "x"}, rules: rules.Default()}

	d := s.dimension(Structure, a)
	assert.Equal(t, Structure, d.Name)
	assert.Zero(t, d.Score)
	assert.Contains(t, d.Warning, "analysis failed")
}
