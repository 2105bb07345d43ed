package validation

import (
	"fmt"
	"regexp"

	"go.starlark.net/syntax"

	"github.com/signalnine/stratgate/internal/result"
	"github.com/signalnine/stratgate/internal/rules"
)

// minDuplicateLines is the smallest block reported as a copy.
const minDuplicateLines = 3

var (
	snakeCase = regexp.MustCompile(`^_*[a-z][a-z0-9_]*$`)
	upperCase = regexp.MustCompile(`^_*[A-Z][A-Z0-9_]*$`)
)

func scoreBestPractices(a *analysis) result.DimensionScore {
	var d result.DimensionScore
	d.Findings = append(d.Findings, a.namingFindings()...)
	d.Findings = append(d.Findings, a.suppressionFindings()...)
	d.Findings = append(d.Findings, a.magicNumberFindings()...)
	d.Findings = append(d.Findings, a.duplicateFindings()...)
	d.Findings = append(d.Findings, a.printFindings()...)
	d.Score = deduct(a.rules, d.Findings)
	return d
}

func (a *analysis) namingFindings() []result.Finding {
	var out []result.Finding
	seen := map[string]bool{}
	report := func(name string, n syntax.Node, constant bool) {
		if seen[name] || snakeCase.MatchString(name) || (constant && upperCase.MatchString(name)) {
			return
		}
		seen[name] = true
		out = append(out, a.finding(rules.Naming, fmt.Sprintf("%q is not snake_case", name), n))
	}
	topLevel := map[syntax.Node]bool{}
	for _, stmt := range a.file.Stmts {
		topLevel[stmt] = true
	}
	inspect(a.file, func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.DefStmt:
			report(n.Name.Name, n.Name, false)
			for _, p := range paramNames(n) {
				report(p, n.Name, false)
			}
		case *syntax.AssignStmt:
			for _, id := range targets(n.LHS) {
				report(id.Name, id, topLevel[n])
			}
		case *syntax.ForStmt:
			for _, id := range targets(n.Vars) {
				report(id.Name, id, false)
			}
		}
		return true
	})
	return out
}

// targets returns the names an assignment binds, including self.attr
// attribute names.
func targets(e syntax.Expr) []*syntax.Ident {
	switch e := e.(type) {
	case *syntax.Ident:
		return []*syntax.Ident{e}
	case *syntax.DotExpr:
		return []*syntax.Ident{e.Name}
	case *syntax.ParenExpr:
		return targets(e.X)
	case *syntax.TupleExpr:
		var out []*syntax.Ident
		for _, x := range e.List {
			out = append(out, targets(x)...)
		}
		return out
	case *syntax.ListExpr:
		var out []*syntax.Ident
		for _, x := range e.List {
			out = append(out, targets(x)...)
		}
		return out
	}
	return nil
}

func (a *analysis) suppressionFindings() []result.Finding {
	var out []result.Finding
	onlyPass := func(body []syntax.Stmt) bool {
		if len(body) != 1 {
			return false
		}
		br, ok := body[0].(*syntax.BranchStmt)
		return ok && br.Token == syntax.PASS
	}
	inspect(a.file, func(n syntax.Node) bool {
		ifs, ok := n.(*syntax.IfStmt)
		if !ok {
			return true
		}
		if onlyPass(ifs.True) {
			out = append(out, a.finding(rules.SilentSuppression, "branch does nothing but pass", ifs.True[0]))
		}
		if !isElif(ifs) && onlyPass(ifs.False) {
			out = append(out, a.finding(rules.SilentSuppression, "else branch does nothing but pass", ifs.False[0]))
		}
		return true
	})
	return out
}

func (a *analysis) magicNumberFindings() []result.Finding {
	var out []result.Finding
	var tests []syntax.Expr
	inspect(a.file, func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.IfStmt:
			tests = append(tests, n.Cond)
		case *syntax.WhileStmt:
			tests = append(tests, n.Cond)
		case *syntax.CondExpr:
			tests = append(tests, n.Cond)
		}
		return true
	})
	for _, test := range tests {
		inspect(test, func(n syntax.Node) bool {
			lit, ok := n.(*syntax.Literal)
			if !ok || (lit.Token != syntax.INT && lit.Token != syntax.FLOAT) {
				return true
			}
			if v := numeric(lit); v == 0 || v == 1 {
				return true
			}
			if a.explained(int(lit.TokenPos.Line)) {
				return true
			}
			out = append(out, a.finding(rules.MagicNumber, fmt.Sprintf("unexplained constant %s in condition", lit.Raw), lit))
			return true
		})
	}
	return out
}

func (a *analysis) duplicateFindings() []result.Finding {
	var out []result.Finding
	firstSeen := map[string]int{}
	for _, body := range a.bodies() {
		text, lines := a.blockText(body)
		if lines < minDuplicateLines {
			continue
		}
		if line, ok := firstSeen[text]; ok {
			start := syntax.Start(body[0])
			end := syntax.End(body[len(body)-1])
			out = append(out, result.Finding{
				Rule:    rules.DuplicateBlock,
				Message: fmt.Sprintf("%d-line block duplicates the one at line %d", lines, line),
				Span:    result.Span{Line: int(start.Line), Col: int(start.Col), EndLine: int(end.Line), EndCol: int(end.Col)},
				Points:  a.rules.Points(rules.DuplicateBlock),
			})
			continue
		}
		firstSeen[text] = int(syntax.Start(body[0]).Line)
	}
	return out
}

func (a *analysis) printFindings() []result.Finding {
	var out []result.Finding
	inspect(a.file, func(n syntax.Node) bool {
		if call, ok := n.(*syntax.CallExpr); ok && callName(call) == "print" {
			out = append(out, a.finding(rules.DebugPrint, "print call left in strategy", call))
		}
		return true
	})
	return out
}
