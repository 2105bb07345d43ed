package validation

import (
	"go.starlark.net/syntax"

	"github.com/signalnine/stratgate/internal/loader"
	"github.com/signalnine/stratgate/internal/result"
	"github.com/signalnine/stratgate/internal/rules"
)

// scoreStructure credits the expected building blocks of a strategy.
func scoreStructure(a *analysis) result.DimensionScore {
	calls := map[string]bool{}
	inspect(a.file, func(n syntax.Node) bool {
		if call, ok := n.(*syntax.CallExpr); ok {
			calls[callName(call)] = true
		}
		return true
	})

	checks := []struct {
		rule string
		ok   bool
		msg  string
	}{
		{rules.StrategyDeclared, a.strategy != nil, "no Strategy(...) declaration"},
		{rules.InitializeHook, a.hooks[loader.HookInitialize] != nil, "no initialize function"},
		{rules.HandleDataHook, a.hooks[loader.HookHandleData] != nil, "no handle_data function"},
		{rules.DeclaresType, calls["declare_strategy_type"], "strategy type is never declared"},
		{rules.DeclaresSymbol, calls["declare_trig_symbol"], "trigger symbol is never declared"},
		{rules.CustomIndicator, a.hooks[loader.HookCustomIndicator] != nil, "no custom_indicator function"},
		{rules.Helpers, len(a.helpers()) > 0, "no helper functions"},
	}

	var d result.DimensionScore
	total, earned := 0.0, 0.0
	for _, c := range checks {
		pts := a.rules.Points(c.rule)
		total += pts
		if c.ok {
			earned += pts
			continue
		}
		d.Findings = append(d.Findings, result.Finding{Rule: c.rule, Message: c.msg, Span: result.Span{Line: 1, Col: 1}, Points: pts})
	}
	if total > 0 {
		d.Score = 100 * earned / total
	}
	return d
}
