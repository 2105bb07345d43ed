package validation_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/stratgate/internal/loader"
	"github.com/signalnine/stratgate/internal/result"
	"github.com/signalnine/stratgate/internal/rules"
	"github.com/signalnine/stratgate/internal/validation"
)

func fixture(t *testing.T, name string) *loader.Source {
	t.Helper()
	src, err := loader.ReadSource("../../testdata/candidates/" + name)
	require.NoError(t, err)
	return src
}

func inline(t *testing.T, text string) *loader.Source {
	t.Helper()
	src, err := loader.NewSource("inline.star", []byte(text))
	require.NoError(t, err)
	return src
}

func dim(t *testing.T, q validation.Quality, name string) result.DimensionScore {
	t.Helper()
	for _, d := range q.Dimensions {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("dimension %s missing", name)
	return result.DimensionScore{}
}

func rulesOf(d result.DimensionScore) []string {
	var ids []string
	for _, f := range d.Findings {
		ids = append(ids, f.Rule)
	}
	return ids
}

func newScorer() *validation.Scorer {
	return validation.NewScorer(rules.Default(), 0, zerolog.Nop())
}

func TestScoreGuardedCandidate(t *testing.T) {
	q := newScorer().Score(fixture(t, "guarded.star"))

	assert.GreaterOrEqual(t, q.Score, 85.0)
	assert.Equal(t, 100.0, dim(t, q, validation.ErrorHandling).Score)
	assert.InDelta(t, 90.0, dim(t, q, validation.Structure).Score, 0.001)
	assert.Equal(t, 100.0, dim(t, q, validation.Complexity).Score)
	assert.Equal(t, 100.0, dim(t, q, validation.BestPractices).Score)
	assert.Equal(t, []string{rules.CustomIndicator}, rulesOf(dim(t, q, validation.Structure)))
	for _, d := range q.Dimensions {
		assert.Empty(t, d.Warning, d.Name)
	}
}

func TestScoreNaiveCandidate(t *testing.T) {
	q := newScorer().Score(fixture(t, "naive.star"))

	eh := dim(t, q, validation.ErrorHandling)
	assert.Less(t, eh.Score, 50.0)
	assert.InDelta(t, 45.0, eh.Score, 0.001)
	assert.ElementsMatch(t,
		[]string{rules.UnguardedData, rules.UnguardedData, rules.UnguardedOrder},
		rulesOf(eh))

	doc := dim(t, q, validation.Documentation)
	assert.Contains(t, rulesOf(doc), rules.ModuleDoc)
	assert.Contains(t, rulesOf(doc), rules.HandleDataDoc)
}

func TestScoreUnguardedDivision(t *testing.T) {
	q := newScorer().Score(fixture(t, "divides.star"))

	eh := dim(t, q, validation.ErrorHandling)
	assert.Equal(t, []string{rules.UnguardedDivision}, rulesOf(eh))
	assert.InDelta(t, 80.0, eh.Score, 0.001)
	require.Len(t, eh.Findings, 1)
	assert.Equal(t, 14, eh.Findings[0].Span.Line)

	bp := dim(t, q, validation.BestPractices)
	assert.Equal(t, []string{rules.MagicNumber}, rulesOf(bp))
	assert.InDelta(t, 95.0, bp.Score, 0.001)
}

func TestScoreIsIdempotent(t *testing.T) {
	s := newScorer()
	for _, name := range []string{"guarded.star", "naive.star", "divides.star", "spins.star"} {
		t.Run(name, func(t *testing.T) {
			src := fixture(t, name)
			assert.Equal(t, s.Score(src), s.Score(src))
		})
	}
}

func TestErrorHandlingGuards(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "isnan guard",
			body: `
    p = current_price(self.symbol)
    if math.isnan(p):
        return
    x = p * 2`,
		},
		{
			name: "truthiness guard",
			body: `
    p = current_price(self.symbol)
    if not p:
        return
    x = p * 2`,
		},
		{
			name: "guard after use",
			body: `
    p = current_price(self.symbol)
    x = p * 2
    if p == None:
        return`,
			want: []string{rules.UnguardedData},
		},
		{
			name: "direct use of read",
			body: `
    x = current_price(self.symbol) * 2`,
			want: []string{rules.UnguardedData},
		},
		{
			name: "conditional expression protects division",
			body: `
    n = len(self.history)
    x = 10 / n if n > 0 else 0`,
		},
		{
			name: "literal denominator",
			body: `
    x = len(self.history) / 2`,
		},
		{
			name: "max with literal floor",
			body: `
    x = 10 / max(len(self.history), 1)`,
		},
		{
			name: "string formatting is not modulo",
			body: `
    alert("n=%d" % len(self.history))`,
		},
		{
			name: "keyword order arguments",
			body: `
    place_limit(self.symbol, price = self.limit, qty = 5, side = OrderSide.BUY)`,
			want: []string{rules.UnguardedOrder},
		},
		{
			name: "literal order arguments need no guard",
			body: `
    place_limit(self.symbol, 10, 5, OrderSide.BUY)`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := "def handle_data(self):" + tt.body + "\n"
			q := newScorer().Score(inline(t, text))
			assert.Equal(t, tt.want, rulesOf(dim(t, q, validation.ErrorHandling)))
		})
	}
}

func TestBestPracticesFindings(t *testing.T) {
	text := `
def BuyNow(self):
    if self.flag:
        pass
    print("debug")

def a(self):
    x = 1
    y = 2
    z = 3

def b(self):
    x = 1
    y = 2
    z = 3
`
	q := newScorer().Score(inline(t, text))
	bp := dim(t, q, validation.BestPractices)
	assert.ElementsMatch(t, []string{
		rules.Naming,
		rules.SilentSuppression,
		rules.DebugPrint,
		rules.DuplicateBlock,
	}, rulesOf(bp))
	assert.InDelta(t, 100.0-5-15-3-10, bp.Score, 0.001)
}

func TestMagicNumberExplainedByComment(t *testing.T) {
	text := `
def handle_data(self):
    # Oversold below 30.
    if self.rsi < 30:
        return
    if self.rsi > 70:  # overbought
        return
    if self.rsi > 55:
        return
`
	q := newScorer().Score(inline(t, text))
	bp := dim(t, q, validation.BestPractices)
	require.Len(t, bp.Findings, 1)
	assert.Equal(t, 8, bp.Findings[0].Span.Line)
}

func TestDeductionCap(t *testing.T) {
	text := "def handle_data(self):\n"
	for range 10 {
		text += "    print(1)\n"
	}
	q := newScorer().Score(inline(t, text))
	assert.InDelta(t, 70.0, dim(t, q, validation.BestPractices).Score, 0.001)
}

func TestComplexityThreshold(t *testing.T) {
	text := `
def handle_data(self):
    if self.a and self.b:
        return
    for x in self.items:
        if x > 0:
            return

def helper(v):
    if v:
        return 1
    return 0

strategy = Strategy(name = "c", initialize = helper, handle_data = handle_data)
`
	s := validation.NewScorer(rules.Default(), 2, zerolog.Nop())
	c := dim(t, s.Score(inline(t, text)), validation.Complexity)
	// handle_data: 1 + if + and + for + if = 5, three over the threshold.
	require.Len(t, c.Findings, 1)
	assert.InDelta(t, 15.0, c.Findings[0].Points, 0.001)
	assert.InDelta(t, (85.0+100.0)/2, c.Score, 0.001)
}

func TestRuleOverridesChangePoints(t *testing.T) {
	tbl, err := rules.Load("../../testdata/rules.yaml")
	require.NoError(t, err)
	s := validation.NewScorer(tbl, 0, zerolog.Nop())
	eh := dim(t, s.Score(fixture(t, "divides.star")), validation.ErrorHandling)
	assert.InDelta(t, 70.0, eh.Score, 0.001)
}

func TestScoreUnparsedSource(t *testing.T) {
	q := newScorer().Score(&loader.Source{Name: "broken"})
	require.Len(t, q.Dimensions, 5)
	assert.Zero(t, q.Score)
	for _, d := range q.Dimensions {
		assert.NotEmpty(t, d.Warning)
		assert.Zero(t, d.Score)
	}
}

func TestUnguardedReadLines(t *testing.T) {
	lines, ok := validation.UnguardedReadLines(fixture(t, "naive.star"))
	require.True(t, ok)
	assert.True(t, lines[6], "current_price result is used unchecked")
	assert.True(t, lines[7], "position result is used unchecked")

	lines, ok = validation.UnguardedReadLines(fixture(t, "fallback.star"))
	require.True(t, ok)
	assert.Empty(t, lines)

	_, ok = validation.UnguardedReadLines(nil)
	assert.False(t, ok)
}
