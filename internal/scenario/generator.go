package scenario

import (
	"fmt"
	"iter"
	"math"
	"math/rand/v2"
)

// Sentinel is a named degenerate value injected into one slot.
type Sentinel struct {
	Name  string
	Value Value
}

// Sentinels is the boundary sweep applied to every slot.
var Sentinels = []Sentinel{
	{"null", Null()},
	{"nan", Num(math.NaN())},
	{"+inf", Num(math.Inf(1))},
	{"-inf", Num(math.Inf(-1))},
	{"zero", Num(0)},
	{"huge", Num(1e10)},
	{"tiny", Num(1e-10)},
	{"negative", Num(-1)},
}

var randomPositions = []float64{0, 50, 100, 200, -50}

const (
	DefaultRandomCount = 50
	DefaultNullRate    = 0.10
	DefaultNaNRate     = 0.05
)

// DefaultPositionStates runs the boundary sweep flat, long and short.
var DefaultPositionStates = []float64{0, 100, -100}

type Options struct {
	RandomCount    int
	Seed           *int64
	NullRate       float64
	NaNRate        float64
	PositionStates []float64
}

// Generator produces the boundary and random scenario sequences for one
// run. Iterating a sequence twice yields the same scenarios.
type Generator struct {
	opts Options
	seed int64
}

func NewGenerator(opts Options) *Generator {
	if opts.RandomCount < 0 {
		opts.RandomCount = 0
	}
	if len(opts.PositionStates) == 0 {
		opts.PositionStates = DefaultPositionStates
	}
	seed := rand.Int64()
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	return &Generator{opts: opts, seed: seed}
}

// Seed is the seed the random sequence was drawn from, whether supplied
// or generated.
func (g *Generator) Seed() int64 { return g.seed }

// BoundaryCount is the number of scenarios Boundary yields.
func (g *Generator) BoundaryCount() int {
	states := len(g.opts.PositionStates)
	return states*len(Slots)*len(Sentinels) - (states-1)*len(Sentinels)
}

func (g *Generator) RandomCount() int { return g.opts.RandomCount }

// Boundary yields, for each position state, every slot overridden by
// every sentinel on top of the nominal baseline. The position slot
// itself is swept only once.
func (g *Generator) Boundary() iter.Seq[Scenario] {
	return func(yield func(Scenario) bool) {
		id := 0
		for i, pos := range g.opts.PositionStates {
			for _, slot := range Slots {
				if slot == SlotPosition && i > 0 {
					continue
				}
				for _, s := range Sentinels {
					inputs := Nominal()
					inputs[SlotPosition] = Num(pos)
					inputs[slot] = s.Value
					name := fmt.Sprintf("%s/%s=%s", positionLabel(pos), slot, s.Name)
					if slot == SlotPosition {
						name = fmt.Sprintf("%s=%s", slot, s.Name)
					}
					if !yield(New(id, name, Boundary, inputs)) {
						return
					}
					id++
				}
			}
		}
	}
}

// Random yields a bounded random walk of market states with nulls and
// NaNs injected at the configured rates.
func (g *Generator) Random() iter.Seq[Scenario] {
	return func(yield func(Scenario) bool) {
		r := rand.New(rand.NewPCG(uint64(g.seed), uint64(g.seed)^0x9e3779b97f4a7c15))
		base := g.BoundaryCount()
		price, rsi := 100.0, 50.0
		for i := 0; i < g.opts.RandomCount; i++ {
			price = reflect(price+price*r.NormFloat64()*0.02, 10, 1000)
			rsi = reflect(rsi+r.NormFloat64()*5, 0, 100)
			spread := price * 0.002 * r.Float64()
			inputs := map[Slot]Value{
				SlotPrice:    Num(price),
				SlotMA:       Num(price * (0.8 + 0.4*r.Float64())),
				SlotRSI:      Num(rsi),
				SlotBid:      Num(price - spread/2),
				SlotAsk:      Num(price + spread/2),
				SlotPosition: Num(randomPositions[r.IntN(len(randomPositions))]),
				SlotMaxBuy:   Num(float64(r.IntN(10001))),
			}
			for _, slot := range Slots {
				if r.Float64() < g.opts.NullRate {
					inputs[slot] = Null()
				}
			}
			for _, slot := range []Slot{SlotPrice, SlotMA} {
				if r.Float64() < g.opts.NaNRate && !inputs[slot].Null {
					inputs[slot] = Num(math.NaN())
				}
			}
			if !yield(New(base+i, fmt.Sprintf("random/%03d", i), Random, inputs)) {
				return
			}
		}
	}
}

// All yields the boundary sequence followed by the random sequence.
func (g *Generator) All() iter.Seq[Scenario] {
	return func(yield func(Scenario) bool) {
		for s := range g.Boundary() {
			if !yield(s) {
				return
			}
		}
		for s := range g.Random() {
			if !yield(s) {
				return
			}
		}
	}
}

func positionLabel(pos float64) string {
	switch {
	case pos == 0:
		return "flat"
	case pos < 0:
		return fmt.Sprintf("short%g", -pos)
	}
	return fmt.Sprintf("holding%g", pos)
}

// reflect folds x back into [lo, hi] as a walk bouncing off the bounds.
func reflect(x, lo, hi float64) float64 {
	if x < lo {
		x = 2*lo - x
	}
	if x > hi {
		x = 2*hi - x
	}
	return math.Min(math.Max(x, lo), hi)
}
