package validation

import (
	"fmt"

	"go.starlark.net/syntax"

	"github.com/signalnine/stratgate/internal/loader"
	"github.com/signalnine/stratgate/internal/result"
	"github.com/signalnine/stratgate/internal/rules"
)

// fullCommentDensity is the comment-to-logic ratio that earns full credit.
const fullCommentDensity = 0.15

// scoreDocumentation credits docstrings, commented branches and overall
// comment density. Ratios earn partial credit.
func scoreDocumentation(a *analysis) result.DimensionScore {
	var d result.DimensionScore
	total, earned := 0.0, 0.0
	credit := func(rule string, share float64, msg string, span result.Span) {
		pts := a.rules.Points(rule)
		total += pts
		earned += pts * share
		if share < 1 {
			d.Findings = append(d.Findings, result.Finding{Rule: rule, Message: msg, Span: span, Points: pts * (1 - share)})
		}
	}
	top := result.Span{Line: 1, Col: 1}

	credit(rules.ModuleDoc, boolShare(a.hasModuleDoc()), "no module docstring or leading comment", top)
	for _, h := range []struct{ rule, hook string }{
		{rules.InitializeDoc, loader.HookInitialize},
		{rules.HandleDataDoc, loader.HookHandleData},
	} {
		def := a.hooks[h.hook]
		span := top
		if def != nil {
			span = spanOf(def.Name)
		}
		credit(h.rule, boolShare(def != nil && docstring(def.Body) != nil), h.hook+" has no docstring", span)
	}

	helpers := a.helpers()
	documented := 0
	for _, def := range helpers {
		if docstring(def.Body) != nil {
			documented++
		}
	}
	credit(rules.HelperDocs, ratio(documented, len(helpers)),
		fmt.Sprintf("%d of %d helper functions documented", documented, len(helpers)), top)

	branches := a.branchLines()
	commented := 0
	for _, line := range branches {
		if a.explained(line) {
			commented++
		}
	}
	credit(rules.BranchComments, ratio(commented, len(branches)),
		fmt.Sprintf("%d of %d branches commented", commented, len(branches)), top)

	comments := len(a.commentLines) + len(a.suffixLines)
	logic := a.logicLines()
	density := 1.0
	if logic > 0 {
		density = min(1, float64(comments)/float64(logic)/fullCommentDensity)
	}
	credit(rules.CommentDensity, density,
		fmt.Sprintf("%d comment lines for %d lines of logic", comments, logic), top)

	if total > 0 {
		d.Score = 100 * earned / total
	}
	return d
}

func (a *analysis) hasModuleDoc() bool {
	if docstring(a.file.Stmts) != nil {
		return true
	}
	first := len(a.lines) + 1
	if len(a.file.Stmts) > 0 {
		first = int(syntax.Start(a.file.Stmts[0]).Line)
	}
	for line := range a.commentLines {
		if line < first {
			return true
		}
	}
	return false
}

// branchLines lists the lines of every if, elif and else.
func (a *analysis) branchLines() []int {
	var out []int
	inspect(a.file, func(n syntax.Node) bool {
		if ifs, ok := n.(*syntax.IfStmt); ok {
			out = append(out, int(ifs.If.Line))
			if len(ifs.False) > 0 && !isElif(ifs) {
				out = append(out, int(ifs.ElsePos.Line))
			}
		}
		return true
	})
	return out
}

// isElif reports whether the else branch of ifs is an elif chain.
func isElif(ifs *syntax.IfStmt) bool {
	if len(ifs.False) != 1 {
		return false
	}
	inner, ok := ifs.False[0].(*syntax.IfStmt)
	return ok && inner.If == ifs.ElsePos
}

func boolShare(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

// ratio is n/of, with nothing to document counting as fully documented.
func ratio(n, of int) float64 {
	if of == 0 {
		return 1
	}
	return float64(n) / float64(of)
}
