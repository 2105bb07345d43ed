package scenario

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

type Category string

const (
	Boundary Category = "boundary"
	Random   Category = "random"
)

// Slot names a platform read a scenario can answer.
type Slot string

const (
	SlotPrice    Slot = "current_price"
	SlotMA       Slot = "ma"
	SlotRSI      Slot = "rsi"
	SlotBid      Slot = "bid"
	SlotAsk      Slot = "ask"
	SlotPosition Slot = "position_holding_qty"
	SlotMaxBuy   Slot = "max_qty_to_buy_on_margin"
)

// Slots lists every slot in the order boundary sweeps visit them.
var Slots = []Slot{SlotPrice, SlotMA, SlotRSI, SlotBid, SlotAsk, SlotPosition, SlotMaxBuy}

// IndicatorSlot is the signature-specific key for an indicator read, e.g.
// "ma/50/D1". The platform consults it before the generic slot.
func IndicatorSlot(base Slot, period int, bar string) Slot {
	return Slot(fmt.Sprintf("%s/%d/%s", base, period, bar))
}

// Nominal returns the sane baseline every boundary scenario perturbs.
func Nominal() map[Slot]Value {
	return map[Slot]Value{
		SlotPrice:    Num(100),
		SlotMA:       Num(95),
		SlotRSI:      Num(50),
		SlotBid:      Num(99.9),
		SlotAsk:      Num(100.1),
		SlotPosition: Num(0),
		SlotMaxBuy:   Num(10000),
	}
}

// Scenario is one immutable set of market inputs.
type Scenario struct {
	ID       int
	Name     string
	Category Category
	inputs   map[Slot]Value
}

func New(id int, name string, cat Category, inputs map[Slot]Value) Scenario {
	return Scenario{ID: id, Name: name, Category: cat, inputs: maps.Clone(inputs)}
}

// Lookup returns the value for slot and whether the scenario defines it.
func (s Scenario) Lookup(slot Slot) (Value, bool) {
	v, ok := s.inputs[slot]
	return v, ok
}

// Inputs returns a copy of the scenario's slot mapping.
func (s Scenario) Inputs() map[Slot]Value {
	return maps.Clone(s.inputs)
}

// SlotNames returns the defined slots in sorted order.
func (s Scenario) SlotNames() []Slot {
	return slices.Sorted(maps.Keys(s.inputs))
}

type scenarioJSON struct {
	ID       int              `json:"id"`
	Name     string           `json:"name"`
	Category Category         `json:"category"`
	Inputs   map[string]Value `json:"inputs"`
}

func (s Scenario) MarshalJSON() ([]byte, error) {
	out := scenarioJSON{ID: s.ID, Name: s.Name, Category: s.Category, Inputs: make(map[string]Value, len(s.inputs))}
	for k, v := range s.inputs {
		out.Inputs[string(k)] = v
	}
	return json.Marshal(out)
}
