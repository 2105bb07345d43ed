package platform

import (
	"fmt"
	"math"

	starmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/signalnine/stratgate/internal/scenario"
)

// enums mirrors the platform's constant namespaces. Members are plain
// strings so strategies can compare and print them.
var enums = map[string][]string{
	"AlgoStrategyType": {"SECURITY", "OPTION", "FUTURE"},
	"GlobalType":       {"INT", "FLOAT", "STRING", "BOOL"},
	"THType":           {"ALL", "RTH", "ETH"},
	"BarType":          {"D1", "H1", "M30", "M15", "M5", "M1", "W1"},
	"DataType":         {"CLOSE", "OPEN", "HIGH", "LOW", "VOLUME"},
	"OrderSide":        {SideBuy, SideSell},
	"TimeInForce":      {"DAY", "GTC", "IOC", "FOK"},
	"TSType":           {"RTH", "ETH", "ALL"},
	"OrdType":          {"LMT", "MKT"},
}

var shared = buildShared()

func buildShared() starlark.StringDict {
	d := starlark.StringDict{}
	for name, members := range enums {
		m := &starlarkstruct.Module{Name: name, Members: starlark.StringDict{}}
		for _, member := range members {
			m.Members[member] = starlark.String(member)
		}
		d[name] = m
	}

	mathMembers := starlark.StringDict{}
	for k, v := range starmath.Module.Members {
		mathMembers[k] = v
	}
	mathMembers["isnan"] = floatPredicate("isnan", math.IsNaN)
	mathMembers["isinf"] = floatPredicate("isinf", func(f float64) bool { return math.IsInf(f, 0) })
	mathMembers["isfinite"] = floatPredicate("isfinite", func(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) })
	mathMembers["inf"] = starlark.Float(math.Inf(1))
	mathMembers["nan"] = starlark.Float(math.NaN())
	d["math"] = &starlarkstruct.Module{Name: "math", Members: mathMembers}

	d.Freeze()
	return d
}

func floatPredicate(name string, pred func(float64) bool) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var x starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
			return nil, err
		}
		f, ok := starlark.AsFloat(x)
		if !ok {
			return nil, fmt.Errorf("%s: got %s, want int or float", b.Name(), x.Type())
		}
		return starlark.Bool(pred(f)), nil
	})
}

// PredeclaredNames reports whether name is bound by Predeclared. The
// loader resolves candidate programs against it before any stub exists.
func PredeclaredNames() map[string]bool {
	names := map[string]bool{}
	for k := range shared {
		names[k] = true
	}
	for k := range (&Stub{}).functions() {
		names[k] = true
	}
	return names
}

// Predeclared returns the platform API bound to this stub.
func (s *Stub) Predeclared() starlark.StringDict {
	d := starlark.StringDict{}
	for k, v := range shared {
		d[k] = v
	}
	for k, v := range s.functions() {
		d[k] = v
	}
	return d
}

type builtinFunc func(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

func (s *Stub) functions() map[string]*starlark.Builtin {
	fns := map[string]builtinFunc{
		"declare_strategy_type":    s.declareStrategyType,
		"declare_trig_symbol":      s.declareTrigSymbol,
		"show_variable":            s.showVariable,
		"current_price":            s.currentPrice,
		"ma":                       s.ma,
		"rsi":                      s.rsi,
		"bid":                      s.bid,
		"ask":                      s.ask,
		"position_holding_qty":     s.positionHoldingQty,
		"max_qty_to_buy_on_margin": s.maxQtyToBuyOnMargin,
		"place_limit":              s.placeLimit,
		"alert":                    s.alert,
	}
	out := make(map[string]*starlark.Builtin, len(fns))
	for name, fn := range fns {
		out[name] = starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			s.setSite(callerLine(thread))
			return fn(b, args, kwargs)
		})
	}
	return out
}

// callerLine is the line of the candidate call that invoked the current
// builtin. Frame 0 is the builtin itself.
func callerLine(thread *starlark.Thread) int {
	if thread == nil || thread.CallStackDepth() < 2 {
		return 0
	}
	return int(thread.CallFrame(1).Pos.Line)
}

func (s *Stub) declareStrategyType(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var t starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "strategy_type", &t); err != nil {
		return nil, err
	}
	if str, ok := starlark.AsString(t); ok {
		s.DeclareStrategyType(str)
	} else {
		s.DeclareStrategyType(t.String())
	}
	return starlark.None, nil
}

func (s *Stub) declareTrigSymbol(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return starlark.String(s.symbol), nil
}

func (s *Stub) showVariable(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value, globalType, name starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value", &value, "global_type?", &globalType, "name?", &name); err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Stub) currentPrice(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var symbol, priceType starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "symbol", &symbol, "price_type?", &priceType); err != nil {
		return nil, err
	}
	return toStarlark(s.CurrentPrice(), false), nil
}

func (s *Stub) ma(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var symbol, period, dataType, sel, session starlark.Value
	bar := "D1"
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"symbol", &symbol, "period", &period, "bar_type?", &bar,
		"data_type?", &dataType, "select?", &sel, "session_type?", &session); err != nil {
		return nil, err
	}
	n, ok := s.period(b.Name(), period)
	if !ok {
		return starlark.None, nil
	}
	return toStarlark(s.MA(n, bar), false), nil
}

func (s *Stub) rsi(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var symbol, period, sel starlark.Value
	bar := "D1"
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"symbol", &symbol, "period", &period, "bar_type?", &bar, "select?", &sel); err != nil {
		return nil, err
	}
	n, ok := s.period(b.Name(), period)
	if !ok {
		return starlark.None, nil
	}
	return toStarlark(s.RSI(n, bar), false), nil
}

// period validates an indicator lookback. Integral floats are accepted
// since show_variable values often arrive as floats.
func (s *Stub) period(call string, v starlark.Value) (int, bool) {
	f, ok := starlark.AsFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f != math.Trunc(f) {
		s.Violate(RuleArgumentInvalid, fmt.Sprintf("%s called with period %s", call, v))
		return 0, false
	}
	return int(f), true
}

func (s *Stub) bid(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var symbol, level starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "symbol", &symbol, "level?", &level); err != nil {
		return nil, err
	}
	return toStarlark(s.Bid(), false), nil
}

func (s *Stub) ask(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var symbol, level starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "symbol", &symbol, "level?", &level); err != nil {
		return nil, err
	}
	return toStarlark(s.Ask(), false), nil
}

func (s *Stub) positionHoldingQty(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var symbol starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "symbol", &symbol); err != nil {
		return nil, err
	}
	return toStarlark(s.PositionQty(), true), nil
}

func (s *Stub) maxQtyToBuyOnMargin(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var symbol, price, orderType starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "symbol", &symbol, "price?", &price, "order_type?", &orderType); err != nil {
		return nil, err
	}
	p := scenario.Num(1)
	if price != nil {
		p = s.number(b.Name(), "price", price)
	}
	return toStarlark(s.MaxBuyQty(p), true), nil
}

func (s *Stub) placeLimit(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var symbol, price, qty, side, tif, session starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"symbol", &symbol, "price", &price, "qty", &qty, "side", &side,
		"time_in_force?", &tif, "order_trade_session_type?", &session); err != nil {
		return nil, err
	}
	s.PlaceLimit(Order{
		Symbol:      text(symbol),
		Side:        text(side),
		Qty:         s.number(b.Name(), "qty", qty),
		Price:       s.number(b.Name(), "price", price),
		TimeInForce: text(tif),
		Session:     text(session),
	})
	return starlark.None, nil
}

func (s *Stub) alert(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var content starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "content", &content); err != nil {
		return nil, err
	}
	s.Alert(text(content))
	return starlark.None, nil
}

// number converts a numeric argument, treating anything non-numeric as
// null after recording the misuse.
func (s *Stub) number(call, param string, v starlark.Value) scenario.Value {
	if v == starlark.None {
		return scenario.Null()
	}
	if _, isBool := v.(starlark.Bool); !isBool {
		if f, ok := starlark.AsFloat(v); ok {
			return scenario.Num(f)
		}
	}
	s.Violate(RuleArgumentInvalid, fmt.Sprintf("%s: %s must be a number, got %s", call, param, v.Type()))
	return scenario.Null()
}

func text(v starlark.Value) string {
	if v == nil || v == starlark.None {
		return ""
	}
	if str, ok := starlark.AsString(v); ok {
		return str
	}
	return v.String()
}

// toStarlark renders a scenario value. Finite integral quantities come
// back as ints, as the platform returns share counts.
func toStarlark(v scenario.Value, quantity bool) starlark.Value {
	if v.Null {
		return starlark.None
	}
	if quantity && !v.Degenerate() && v.Num == math.Trunc(v.Num) && math.Abs(v.Num) < 1<<53 {
		return starlark.MakeInt64(int64(v.Num))
	}
	return starlark.Float(v.Num)
}
