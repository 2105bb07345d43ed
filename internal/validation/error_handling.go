package validation

import (
	"fmt"

	"go.starlark.net/syntax"

	"github.com/signalnine/stratgate/internal/loader"
	"github.com/signalnine/stratgate/internal/result"
	"github.com/signalnine/stratgate/internal/rules"
)

// scoreErrorHandling deducts for platform reads used before a null/NaN
// check, divisions by unchecked values and orders placed without any
// check on their price or quantity.
func scoreErrorHandling(a *analysis) result.DimensionScore {
	var d result.DimensionScore
	for _, sc := range a.scopes() {
		conds := a.conditions(sc.body)
		d.Findings = append(d.Findings, a.unguardedReads(sc, conds)...)
		d.Findings = append(d.Findings, a.unguardedDivisions(sc, conds)...)
		d.Findings = append(d.Findings, a.unguardedOrders(sc, conds)...)
	}
	d.Score = deduct(a.rules, d.Findings)
	return d
}

type binding struct {
	key  string
	call *syntax.CallExpr
	node *syntax.AssignStmt
	end  syntax.Position
}

// readSite is a platform read whose result reaches a use unchecked.
type readSite struct {
	call *syntax.CallExpr
	node syntax.Node
	msg  string
}

func (a *analysis) unguardedReads(sc scope, conds []*condition) []result.Finding {
	var out []result.Finding
	for _, site := range a.unguardedReadSites(sc, conds) {
		out = append(out, a.finding(rules.UnguardedData, site.msg, site.node))
	}
	return out
}

func (a *analysis) unguardedReadSites(sc scope, conds []*condition) []readSite {
	var bindings []binding
	var direct []*syntax.CallExpr
	bound := map[*syntax.CallExpr]bool{}

	inspectBody(sc.body, func(n syntax.Node) bool {
		if as, ok := n.(*syntax.AssignStmt); ok && as.Op == syntax.EQ {
			if call, ok := as.RHS.(*syntax.CallExpr); ok && dataCalls[callName(call)] {
				if key := keyOf(as.LHS); key != "" {
					bound[call] = true
					bindings = append(bindings, binding{key: key, call: call, node: as, end: syntax.End(as)})
				}
			}
		}
		if call, ok := n.(*syntax.CallExpr); ok && dataCalls[callName(call)] && !bound[call] {
			direct = append(direct, call)
		}
		return true
	})

	var out []readSite
	for _, call := range direct {
		if a.insideNullGuard(call, conds) {
			continue
		}
		out = append(out, readSite{call: call, node: call,
			msg: fmt.Sprintf("result of %s() used without a null/NaN check", callName(call))})
	}
	for _, b := range bindings {
		use, ok := a.firstUse(sc.body, b, conds)
		if !ok {
			continue
		}
		guarded := false
		for _, c := range conds {
			if c.nullGuards[b.key] && before(b.end, c.start) && !before(use, c.start) {
				guarded = true
				break
			}
		}
		if !guarded {
			out = append(out, readSite{call: b.call, node: b.node,
				msg: fmt.Sprintf("%s from %s() used before a null/NaN check", b.key, callName(b.call))})
		}
	}
	return out
}

// UnguardedReadLines returns the lines of platform reads whose result is
// used before any null/NaN check, keyed by the line of the call's opening
// parenthesis as the interpreter reports it. ok is false when src cannot
// be analyzed.
func UnguardedReadLines(src *loader.Source) (lines map[int]bool, ok bool) {
	if src == nil || src.File == nil {
		return nil, false
	}
	defer func() {
		if r := recover(); r != nil {
			lines, ok = nil, false
		}
	}()
	a := newAnalysis(src, rules.Default())
	lines = map[int]bool{}
	for _, sc := range a.scopes() {
		for _, site := range a.unguardedReadSites(sc, a.conditions(sc.body)) {
			lines[int(site.call.Lparen.Line)] = true
		}
	}
	return lines, true
}

// firstUse finds the earliest read of b.key after its assignment that is
// not itself part of a null check.
func (a *analysis) firstUse(body []syntax.Stmt, b binding, conds []*condition) (syntax.Position, bool) {
	var first syntax.Position
	found := false
	for _, stmt := range body {
		for _, r := range refs(stmt) {
			if !matchesKey(r.key, b.key) || !before(b.end, r.pos) {
				continue
			}
			if inNullCheck(r.pos, b.key, conds) {
				continue
			}
			if !found || before(r.pos, first) {
				first, found = r.pos, true
			}
		}
	}
	return first, found
}

func inNullCheck(p syntax.Position, key string, conds []*condition) bool {
	for _, c := range conds {
		if c.nullGuards[key] && within(p, c.start, c.end) {
			return true
		}
	}
	return false
}

// insideNullGuard accepts a read whose result is only checked in place,
// as in `if current_price(s) == None`.
func (a *analysis) insideNullGuard(call *syntax.CallExpr, conds []*condition) bool {
	start, end := call.Span()
	for _, c := range conds {
		if within(start, c.start, c.end) && within(end, c.start, c.end) && len(c.nullGuards) > 0 {
			return true
		}
	}
	return false
}

func (a *analysis) unguardedDivisions(sc scope, conds []*condition) []result.Finding {
	var out []result.Finding
	check := func(denom syntax.Expr, site syntax.Node) {
		if safeDenominator(denom) {
			return
		}
		pos := syntax.Start(site)
		for _, r := range refs(denom) {
			for _, c := range conds {
				if c.zeroGuards[r.key] && c.protects(pos) {
					return
				}
			}
		}
		out = append(out, a.finding(rules.UnguardedDivision, "division by a value never checked against zero", site))
	}
	inspectBody(sc.body, func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.BinaryExpr:
			switch n.Op {
			case syntax.SLASH, syntax.SLASHSLASH, syntax.PERCENT:
				if n.Op == syntax.PERCENT && isString(n.X) {
					return true
				}
				check(n.Y, n)
			}
		case *syntax.AssignStmt:
			switch n.Op {
			case syntax.SLASH_EQ, syntax.SLASHSLASH_EQ, syntax.PERCENT_EQ:
				check(n.RHS, n)
			}
		}
		return true
	})
	return out
}

// safeDenominator accepts non-zero literals and max(x, <non-zero literal>).
func safeDenominator(e syntax.Expr) bool {
	switch e := e.(type) {
	case *syntax.ParenExpr:
		return safeDenominator(e.X)
	case *syntax.Literal:
		return nonZero(e)
	case *syntax.UnaryExpr:
		if lit, ok := e.X.(*syntax.Literal); ok && e.Op == syntax.MINUS {
			return nonZero(lit)
		}
	case *syntax.CallExpr:
		if callName(e) == "max" {
			for _, arg := range e.Args {
				if lit, ok := arg.(*syntax.Literal); ok && nonZero(lit) && numeric(lit) > 0 {
					return true
				}
			}
		}
	}
	return false
}

func (a *analysis) unguardedOrders(sc scope, conds []*condition) []result.Finding {
	var out []result.Finding
	inspectBody(sc.body, func(n syntax.Node) bool {
		call, ok := n.(*syntax.CallExpr)
		if !ok || callName(call) != "place_limit" {
			return true
		}
		var keys []string
		for _, arg := range orderArgs(call) {
			for _, r := range refs(arg) {
				keys = append(keys, r.key)
			}
		}
		if len(keys) == 0 {
			return true
		}
		pos := syntax.Start(call)
		for _, c := range conds {
			if !c.protects(pos) {
				continue
			}
			for _, k := range keys {
				if c.mentions[k] {
					return true
				}
			}
		}
		out = append(out, a.finding(rules.UnguardedOrder, "order placed without checking its price or quantity", call))
		return true
	})
	return out
}

// orderArgs returns the price and qty arguments of a place_limit call.
func orderArgs(call *syntax.CallExpr) []syntax.Expr {
	var out []syntax.Expr
	pos := 0
	for _, arg := range call.Args {
		if kw, ok := arg.(*syntax.BinaryExpr); ok && kw.Op == syntax.EQ {
			if id, ok := kw.X.(*syntax.Ident); ok && (id.Name == "price" || id.Name == "qty") {
				out = append(out, kw.Y)
			}
			continue
		}
		if pos == 1 || pos == 2 {
			out = append(out, arg)
		}
		pos++
	}
	return out
}

func isString(e syntax.Expr) bool {
	lit, ok := e.(*syntax.Literal)
	return ok && lit.Token == syntax.STRING
}

func nonZero(lit *syntax.Literal) bool {
	switch lit.Token {
	case syntax.INT, syntax.FLOAT:
		return numeric(lit) != 0
	}
	return false
}

func numeric(lit *syntax.Literal) float64 {
	switch v := lit.Value.(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	}
	if lit.Token == syntax.INT {
		// big ints are never zero
		return 1
	}
	return 0
}
