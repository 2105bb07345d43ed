package validation

import (
	"fmt"

	"go.starlark.net/syntax"

	"github.com/signalnine/stratgate/internal/result"
	"github.com/signalnine/stratgate/internal/rules"
)

// cyclomatic counts decision points in a function body. Nested functions
// are measured on their own.
func cyclomatic(body []syntax.Stmt) int {
	n := 1
	inspectBody(body, func(node syntax.Node) bool {
		switch node := node.(type) {
		case *syntax.IfStmt, *syntax.ForStmt, *syntax.WhileStmt, *syntax.CondExpr,
			*syntax.ForClause, *syntax.IfClause:
			n++
		case *syntax.BinaryExpr:
			if node.Op == syntax.AND || node.Op == syntax.OR {
				n++
			}
		}
		return true
	})
	return n
}

// scoreComplexity averages the hooks' scores and reports every function
// over the threshold.
func scoreComplexity(a *analysis, threshold int) result.DimensionScore {
	var d result.DimensionScore
	var funcs []*syntax.DefStmt
	inspect(a.file, func(n syntax.Node) bool {
		if def, ok := n.(*syntax.DefStmt); ok {
			funcs = append(funcs, def)
		}
		return true
	})

	per := a.rules.Points(rules.BranchExcess)
	sum, hooks := 0.0, 0
	for _, def := range funcs {
		cc := cyclomatic(def.Body)
		excess := max(0, cc-threshold)
		if excess > 0 {
			d.Findings = append(d.Findings, result.Finding{
				Rule:    rules.BranchExcess,
				Message: fmt.Sprintf("%s has complexity %d (threshold %d)", def.Name.Name, cc, threshold),
				Span:    spanOf(def.Name),
				Points:  per * float64(excess),
			})
		}
		if a.isHook(def) {
			sum += clamp(100 - per*float64(excess))
			hooks++
		}
	}
	d.Score = 100
	if hooks > 0 {
		d.Score = sum / float64(hooks)
	}
	return d
}
