package validation

import (
	"slices"
	"strings"

	"go.starlark.net/syntax"

	"github.com/signalnine/stratgate/internal/loader"
	"github.com/signalnine/stratgate/internal/result"
	"github.com/signalnine/stratgate/internal/rules"
)

// dataCalls are the platform reads whose results may be null or NaN.
var dataCalls = map[string]bool{
	"current_price":            true,
	"ma":                       true,
	"rsi":                      true,
	"bid":                      true,
	"ask":                      true,
	"position_holding_qty":     true,
	"max_qty_to_buy_on_margin": true,
}

var hookNames = []string{loader.HookInitialize, loader.HookHandleData, loader.HookCustomIndicator}

// analysis is the parsed view of one candidate shared by every dimension.
type analysis struct {
	src   *loader.Source
	file  *syntax.File
	lines []string
	rules *rules.Table

	defs     []*syntax.DefStmt
	byName   map[string]*syntax.DefStmt
	strategy *syntax.CallExpr
	hooks    map[string]*syntax.DefStmt

	commentLines map[int]bool
	suffixLines  map[int]bool
	docLines     map[int]bool

	guardHelpers map[string][]guardKind
}

type guardKind struct {
	null bool
	zero bool
}

func newAnalysis(src *loader.Source, tbl *rules.Table) *analysis {
	a := &analysis{
		src:          src,
		file:         src.File,
		lines:        src.Lines(),
		rules:        tbl,
		byName:       map[string]*syntax.DefStmt{},
		hooks:        map[string]*syntax.DefStmt{},
		commentLines: map[int]bool{},
		suffixLines:  map[int]bool{},
		docLines:     map[int]bool{},
	}
	for _, stmt := range a.file.Stmts {
		if def, ok := stmt.(*syntax.DefStmt); ok {
			a.defs = append(a.defs, def)
			a.byName[def.Name.Name] = def
		}
	}
	a.findStrategy()
	a.collectComments()
	a.collectDocstrings()
	a.guardHelpers = a.findGuardHelpers()
	return a
}

// findStrategy locates the Strategy(...) call and resolves the functions
// bound to each hook. Without a call, top-level defs named after hooks
// stand in.
func (a *analysis) findStrategy() {
	inspect(a.file, func(n syntax.Node) bool {
		call, ok := n.(*syntax.CallExpr)
		if !ok || a.strategy != nil {
			return a.strategy == nil
		}
		if id, ok := call.Fn.(*syntax.Ident); ok && id.Name == "Strategy" {
			a.strategy = call
			return false
		}
		return true
	})
	if a.strategy != nil {
		for _, arg := range a.strategy.Args {
			kw, ok := arg.(*syntax.BinaryExpr)
			if !ok || kw.Op != syntax.EQ {
				continue
			}
			key, _ := kw.X.(*syntax.Ident)
			val, _ := kw.Y.(*syntax.Ident)
			if key == nil || val == nil || !slices.Contains(hookNames, key.Name) {
				continue
			}
			if def, ok := a.byName[val.Name]; ok {
				a.hooks[key.Name] = def
			}
		}
		return
	}
	for _, h := range hookNames {
		if def, ok := a.byName[h]; ok {
			a.hooks[h] = def
		}
	}
}

func (a *analysis) isHook(def *syntax.DefStmt) bool {
	for _, h := range a.hooks {
		if h == def {
			return true
		}
	}
	return false
}

// helpers returns the top-level defs that are not hooks.
func (a *analysis) helpers() []*syntax.DefStmt {
	var out []*syntax.DefStmt
	for _, def := range a.defs {
		if !a.isHook(def) {
			out = append(out, def)
		}
	}
	return out
}

func (a *analysis) collectComments() {
	inspect(a.file, func(n syntax.Node) bool {
		c := n.Comments()
		if c == nil {
			return true
		}
		for _, cm := range c.Before {
			a.commentLines[int(cm.Start.Line)] = true
		}
		for _, cm := range c.After {
			a.commentLines[int(cm.Start.Line)] = true
		}
		for _, cm := range c.Suffix {
			a.suffixLines[int(cm.Start.Line)] = true
		}
		return true
	})
}

func (a *analysis) collectDocstrings() {
	mark := func(body []syntax.Stmt) {
		if lit := docstring(body); lit != nil {
			start, end := lit.Span()
			for l := start.Line; l <= end.Line; l++ {
				a.docLines[int(l)] = true
			}
		}
	}
	mark(a.file.Stmts)
	inspect(a.file, func(n syntax.Node) bool {
		if def, ok := n.(*syntax.DefStmt); ok {
			mark(def.Body)
		}
		return true
	})
}

// docstring returns the leading string literal of a body, if any.
func docstring(body []syntax.Stmt) *syntax.Literal {
	if len(body) == 0 {
		return nil
	}
	es, ok := body[0].(*syntax.ExprStmt)
	if !ok {
		return nil
	}
	lit, ok := es.X.(*syntax.Literal)
	if !ok || lit.Token != syntax.STRING {
		return nil
	}
	return lit
}

// explained reports whether line carries a trailing comment or sits
// under a comment line.
func (a *analysis) explained(line int) bool {
	if a.suffixLines[line] {
		return true
	}
	for l := line - 1; l >= 1; l-- {
		if a.commentLines[l] {
			return true
		}
		if l-1 < len(a.lines) && strings.TrimSpace(a.lines[l-1]) != "" {
			return false
		}
	}
	return false
}

func (a *analysis) finding(rule, msg string, n syntax.Node) result.Finding {
	return result.Finding{Rule: rule, Message: msg, Span: spanOf(n), Points: a.rules.Points(rule)}
}

func spanOf(n syntax.Node) result.Span {
	if n == nil {
		return result.Span{Line: 1, Col: 1}
	}
	start, end := n.Span()
	return result.Span{Line: int(start.Line), Col: int(start.Col), EndLine: int(end.Line), EndCol: int(end.Col)}
}

// inspect walks n depth-first, skipping the trailing nil visits.
func inspect(n syntax.Node, f func(syntax.Node) bool) {
	syntax.Walk(n, func(n syntax.Node) bool {
		if n == nil {
			return false
		}
		return f(n)
	})
}

// inspectBody walks statements without entering nested functions.
func inspectBody(body []syntax.Stmt, f func(syntax.Node) bool) {
	for _, stmt := range body {
		inspect(stmt, func(n syntax.Node) bool {
			switch n.(type) {
			case *syntax.DefStmt, *syntax.LambdaExpr:
				return false
			}
			return f(n)
		})
	}
}

// keyOf renders a name or attribute chain such as self.entry_price.
func keyOf(e syntax.Expr) string {
	switch e := e.(type) {
	case *syntax.Ident:
		return e.Name
	case *syntax.DotExpr:
		if k := keyOf(e.X); k != "" {
			return k + "." + e.Name.Name
		}
	case *syntax.ParenExpr:
		return keyOf(e.X)
	}
	return ""
}

func callName(call *syntax.CallExpr) string {
	return keyOf(call.Fn)
}

type ref struct {
	key string
	pos syntax.Position
}

// refs lists the names and attribute chains an expression reads.
// Keyword names in calls and attribute names are not reads.
func refs(n syntax.Node) []ref {
	var out []ref
	var visit func(syntax.Node) bool
	visit = func(n syntax.Node) bool {
		switch n := n.(type) {
		case nil, *syntax.DefStmt, *syntax.LambdaExpr:
			return false
		case *syntax.Ident:
			out = append(out, ref{n.Name, n.NamePos})
			return false
		case *syntax.DotExpr:
			if k := keyOf(n); k != "" {
				out = append(out, ref{k, syntax.Start(n)})
				return false
			}
			syntax.Walk(n.X, visit)
			return false
		case *syntax.CallExpr:
			syntax.Walk(n.Fn, visit)
			for _, arg := range n.Args {
				if kw, ok := arg.(*syntax.BinaryExpr); ok && kw.Op == syntax.EQ {
					syntax.Walk(kw.Y, visit)
					continue
				}
				syntax.Walk(arg, visit)
			}
			return false
		}
		return true
	}
	syntax.Walk(n, visit)
	return out
}

func matchesKey(use, key string) bool {
	return use == key || strings.HasPrefix(use, key+".")
}

func before(p, q syntax.Position) bool {
	return p.Line < q.Line || (p.Line == q.Line && p.Col < q.Col)
}

func within(p, start, end syntax.Position) bool {
	return !before(p, start) && !before(end, p)
}

// condition is a branch test inside a function along with what it
// protects.
type condition struct {
	start, end           syntax.Position
	scopeStart, scopeEnd syntax.Position
	mentions             map[string]bool
	nullGuards           map[string]bool
	zeroGuards           map[string]bool
}

// protects reports whether a site at p runs after or under the test.
func (c *condition) protects(p syntax.Position) bool {
	return !before(p, c.start) || within(p, c.scopeStart, c.scopeEnd)
}

func (a *analysis) newCondition(test syntax.Expr, scope syntax.Node) *condition {
	c := &condition{
		mentions:   map[string]bool{},
		nullGuards: map[string]bool{},
		zeroGuards: map[string]bool{},
	}
	c.start, c.end = test.Span()
	c.scopeStart, c.scopeEnd = scope.Span()
	for _, r := range refs(test) {
		c.mentions[r.key] = true
	}
	a.classify(test, c)
	return c
}

// classify records which keys a test checks for null/NaN and which it
// compares in a way that excludes zero.
func (a *analysis) classify(e syntax.Expr, c *condition) {
	guard := func(x syntax.Expr, null, zero bool) {
		if k := keyOf(x); k != "" {
			if null {
				c.nullGuards[k] = true
			}
			if zero {
				c.zeroGuards[k] = true
			}
		}
	}
	switch e := e.(type) {
	case *syntax.ParenExpr:
		a.classify(e.X, c)
	case *syntax.UnaryExpr:
		if e.Op == syntax.NOT {
			a.classify(e.X, c)
		}
	case *syntax.Ident, *syntax.DotExpr:
		guard(e, true, true)
	case *syntax.BinaryExpr:
		switch e.Op {
		case syntax.AND, syntax.OR:
			a.classify(e.X, c)
			a.classify(e.Y, c)
		case syntax.EQL, syntax.NEQ:
			if isNone(e.Y) {
				guard(e.X, true, false)
			} else if isNone(e.X) {
				guard(e.Y, true, false)
			} else {
				guard(e.X, false, true)
				guard(e.Y, false, true)
			}
		case syntax.LT, syntax.GT, syntax.LE, syntax.GE:
			guard(e.X, false, true)
			guard(e.Y, false, true)
		}
	case *syntax.CallExpr:
		name := callName(e)
		switch name {
		case "math.isnan", "math.isinf", "math.isfinite", "type":
			if len(e.Args) > 0 {
				guard(e.Args[0], true, false)
			}
			return
		}
		if kinds, ok := a.guardHelpers[name]; ok {
			for i, arg := range e.Args {
				if i < len(kinds) {
					guard(arg, kinds[i].null, kinds[i].zero)
				}
			}
		}
	}
}

func isNone(e syntax.Expr) bool {
	id, ok := e.(*syntax.Ident)
	return ok && id.Name == "None"
}

// conditions collects every test in a body: if, elif, while,
// conditional expressions and comprehension filters.
func (a *analysis) conditions(body []syntax.Stmt) []*condition {
	var out []*condition
	inspectBody(body, func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.IfStmt:
			out = append(out, a.newCondition(n.Cond, n))
		case *syntax.WhileStmt:
			out = append(out, a.newCondition(n.Cond, n))
		case *syntax.CondExpr:
			out = append(out, a.newCondition(n.Cond, n))
		case *syntax.IfClause:
			out = append(out, a.newCondition(n.Cond, n))
		}
		return true
	})
	return out
}

// findGuardHelpers finds top-level functions that check their own
// parameters, such as is_valid(x), so calls to them count as guards.
func (a *analysis) findGuardHelpers() map[string][]guardKind {
	out := map[string][]guardKind{}
	for _, def := range a.defs {
		params := paramNames(def)
		if len(params) == 0 {
			continue
		}
		conds := a.conditionsNoHelpers(def.Body)
		inspectBody(def.Body, func(n syntax.Node) bool {
			if ret, ok := n.(*syntax.ReturnStmt); ok && ret.Result != nil {
				conds = append(conds, a.newCondition(ret.Result, ret))
			}
			return true
		})
		kinds := make([]guardKind, len(params))
		found := false
		for i, p := range params {
			for _, c := range conds {
				if c.nullGuards[p] {
					kinds[i].null = true
					found = true
				}
				if c.zeroGuards[p] {
					kinds[i].zero = true
					found = true
				}
			}
		}
		if found {
			out[def.Name.Name] = kinds
		}
	}
	return out
}

// conditionsNoHelpers is conditions before guard helpers are known.
func (a *analysis) conditionsNoHelpers(body []syntax.Stmt) []*condition {
	saved := a.guardHelpers
	a.guardHelpers = nil
	defer func() { a.guardHelpers = saved }()
	return a.conditions(body)
}

func paramNames(def *syntax.DefStmt) []string {
	var names []string
	for _, p := range def.Params {
		switch p := p.(type) {
		case *syntax.Ident:
			names = append(names, p.Name)
		case *syntax.BinaryExpr:
			if id, ok := p.X.(*syntax.Ident); ok {
				names = append(names, id.Name)
			}
		case *syntax.UnaryExpr:
			if id, ok := p.X.(*syntax.Ident); ok {
				names = append(names, id.Name)
			}
		}
	}
	return names
}

// scope is a function body, or the module's top-level statements.
type scope struct {
	name string
	body []syntax.Stmt
}

func (a *analysis) scopes() []scope {
	var top []syntax.Stmt
	for _, stmt := range a.file.Stmts {
		if _, ok := stmt.(*syntax.DefStmt); !ok {
			top = append(top, stmt)
		}
	}
	out := []scope{{name: "<module>", body: top}}
	for _, def := range a.defs {
		out = append(out, scope{name: def.Name.Name, body: def.Body})
	}
	return out
}
