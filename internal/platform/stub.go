// Package platform is a deterministic stand-in for the trading platform a
// strategy runs against. A Stub answers every read from one scenario and
// records orders in an append-only ledger instead of routing them.
package platform

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/signalnine/stratgate/internal/scenario"
)

const DefaultSymbol = "TEST_SYMBOL"

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Violation rule ids.
const (
	RuleQtyInvalid      = "order.qty_invalid"
	RulePriceInvalid    = "order.price_invalid"
	RuleSideInvalid     = "order.side_invalid"
	RuleUnguardedInput  = "order.unguarded_input"
	RuleBuyingPower     = "order.exceeds_buying_power"
	RuleArgumentInvalid = "api.argument_invalid"
)

// Order is one recorded place_limit call.
type Order struct {
	Seq         int             `json:"seq"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	Qty         scenario.Value  `json:"qty"`
	Price       scenario.Value  `json:"price"`
	TimeInForce string          `json:"time_in_force,omitempty"`
	Session     string          `json:"session,omitempty"`
	Notional    decimal.Decimal `json:"notional"`
}

// Violation is an invalid side effect or API misuse observed during a run.
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Read is one answered platform query.
type Read struct {
	Call  string         `json:"call"`
	Value scenario.Value `json:"value"`
	Line  int            `json:"line,omitempty"`
}

type Stub struct {
	sc        scenario.Scenario
	symbol    string
	unguarded func(line int) bool

	mu           sync.Mutex
	strategyType string
	reads        []Read
	site         int
	tainted      string
	orders       []Order
	alerts       []string
	violations   []Violation
}

type Option func(*Stub)

// WithSymbol sets the symbol declare_trig_symbol hands out.
func WithSymbol(symbol string) Option {
	return func(s *Stub) {
		if symbol != "" {
			s.symbol = symbol
		}
	}
}

// WithUnguardedReads limits which degenerate reads taint later orders to
// those made from source lines the predicate accepts. Without it every
// degenerate read taints.
func WithUnguardedReads(unguarded func(line int) bool) Option {
	return func(s *Stub) { s.unguarded = unguarded }
}

func New(sc scenario.Scenario, opts ...Option) *Stub {
	s := &Stub{sc: sc, symbol: DefaultSymbol}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Stub) Scenario() scenario.Scenario { return s.sc }

func (s *Stub) Symbol() string { return s.symbol }

func (s *Stub) DeclareStrategyType(t string) {
	s.mu.Lock()
	s.strategyType = t
	s.mu.Unlock()
}

func (s *Stub) StrategyType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategyType
}

func (s *Stub) CurrentPrice() scenario.Value {
	v, ok := s.sc.Lookup(scenario.SlotPrice)
	if !ok {
		v = scenario.Null()
	}
	return s.record("current_price", v)
}

// MA answers a moving-average read, preferring a value keyed by the exact
// period and bar type.
func (s *Stub) MA(period int, bar string) scenario.Value {
	return s.record(fmt.Sprintf("ma(%d,%s)", period, bar), s.indicator(scenario.SlotMA, period, bar))
}

func (s *Stub) RSI(period int, bar string) scenario.Value {
	return s.record(fmt.Sprintf("rsi(%d,%s)", period, bar), s.indicator(scenario.SlotRSI, period, bar))
}

func (s *Stub) indicator(slot scenario.Slot, period int, bar string) scenario.Value {
	if v, ok := s.sc.Lookup(scenario.IndicatorSlot(slot, period, bar)); ok {
		return v
	}
	if v, ok := s.sc.Lookup(slot); ok {
		return v
	}
	return scenario.Null()
}

// Bid falls back to a quote just under the current price when the
// scenario leaves the slot unset.
func (s *Stub) Bid() scenario.Value {
	return s.record("bid", s.quote(scenario.SlotBid, 0.999))
}

func (s *Stub) Ask() scenario.Value {
	return s.record("ask", s.quote(scenario.SlotAsk, 1.001))
}

func (s *Stub) quote(slot scenario.Slot, factor float64) scenario.Value {
	if v, ok := s.sc.Lookup(slot); ok {
		return v
	}
	p, ok := s.sc.Lookup(scenario.SlotPrice)
	if !ok || p.Null {
		return scenario.Null()
	}
	return scenario.Num(p.Num * factor)
}

func (s *Stub) PositionQty() scenario.Value {
	return s.record("position_holding_qty", s.quantity(scenario.SlotPosition))
}

func (s *Stub) MaxBuyQty(price scenario.Value) scenario.Value {
	if price.Degenerate() {
		s.Violate(RuleArgumentInvalid, fmt.Sprintf("max_qty_to_buy_on_margin called with price %s", price))
	}
	return s.record("max_qty_to_buy_on_margin", s.quantity(scenario.SlotMaxBuy))
}

func (s *Stub) quantity(slot scenario.Slot) scenario.Value {
	if v, ok := s.sc.Lookup(slot); ok {
		return v
	}
	return scenario.Num(0)
}

// setSite notes the candidate line the next read is made from; zero when
// unknown.
func (s *Stub) setSite(line int) {
	s.mu.Lock()
	s.site = line
	s.mu.Unlock()
}

func (s *Stub) record(call string, v scenario.Value) scenario.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads = append(s.reads, Read{Call: call, Value: v, Line: s.site})
	if v.Degenerate() && s.tainted == "" && s.taints(s.site) {
		s.tainted = fmt.Sprintf("%s returned %s", call, v)
	}
	return v
}

func (s *Stub) taints(line int) bool {
	return s.unguarded == nil || line == 0 || s.unguarded(line)
}

// PlaceLimit appends o to the ledger and records a violation for each
// way it is unsafe. It never fails.
func (s *Stub) PlaceLimit(o Order) {
	var problems []Violation
	if !validQty(o.Qty) {
		problems = append(problems, Violation{RuleQtyInvalid, fmt.Sprintf("%s order with qty %s", o.Side, o.Qty)})
	}
	if o.Price.Degenerate() || o.Price.Num <= 0 {
		problems = append(problems, Violation{RulePriceInvalid, fmt.Sprintf("%s order with price %s", o.Side, o.Price)})
	}
	if o.Side != SideBuy && o.Side != SideSell {
		problems = append(problems, Violation{RuleSideInvalid, fmt.Sprintf("order side %q", o.Side)})
	}
	if o.Side == SideBuy && !o.Qty.Degenerate() {
		if capacity, ok := s.sc.Lookup(scenario.SlotMaxBuy); ok && !capacity.Degenerate() && o.Qty.Num > capacity.Num {
			problems = append(problems, Violation{RuleBuyingPower, fmt.Sprintf("buy qty %s exceeds margin capacity %s", o.Qty, capacity)})
		}
	}
	if !o.Qty.Degenerate() && !o.Price.Degenerate() {
		o.Notional = decimal.NewFromFloat(o.Qty.Num).Mul(decimal.NewFromFloat(o.Price.Num))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tainted != "" {
		problems = append(problems, Violation{RuleUnguardedInput, "order placed after " + s.tainted})
	}
	o.Seq = len(s.orders) + 1
	s.orders = append(s.orders, o)
	s.violations = append(s.violations, problems...)
}

func validQty(q scenario.Value) bool {
	return !q.Degenerate() && q.Num > 0 && q.Num == math.Trunc(q.Num)
}

// Violate records API misuse that does not stop the strategy.
func (s *Stub) Violate(rule, msg string) {
	s.mu.Lock()
	s.violations = append(s.violations, Violation{Rule: rule, Message: msg})
	s.mu.Unlock()
}

func (s *Stub) Alert(msg string) {
	s.mu.Lock()
	s.alerts = append(s.alerts, msg)
	s.mu.Unlock()
}

func (s *Stub) Orders() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.orders)
}

func (s *Stub) Reads() []Read {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.reads)
}

func (s *Stub) Alerts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.alerts)
}

func (s *Stub) Violations() []Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.violations)
}

// TotalNotional sums the notional of every recorded order.
func (s *Stub) TotalNotional() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, o := range s.orders {
		total = total.Add(o.Notional)
	}
	return total
}
