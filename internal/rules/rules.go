// Package rules holds the point values the quality scorer assigns to each
// static rule. Dimension weights are fixed; per-rule points are tunable.
package rules

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Rule ids.
const (
	StrategyDeclared = "structure.strategy_declared"
	InitializeHook   = "structure.initialize_hook"
	HandleDataHook   = "structure.handle_data_hook"
	DeclaresType     = "structure.declares_type"
	DeclaresSymbol   = "structure.declares_symbol"
	CustomIndicator  = "structure.custom_indicator"
	Helpers          = "structure.helpers"

	UnguardedData     = "error_handling.unguarded_data"
	UnguardedDivision = "error_handling.unguarded_division"
	UnguardedOrder    = "error_handling.unguarded_order"

	ModuleDoc      = "documentation.module_doc"
	InitializeDoc  = "documentation.initialize_doc"
	HandleDataDoc  = "documentation.handle_data_doc"
	HelperDocs     = "documentation.helper_docs"
	BranchComments = "documentation.branch_comments"
	CommentDensity = "documentation.comment_density"

	BranchExcess = "complexity.branch_excess"

	Naming            = "best_practices.naming"
	SilentSuppression = "best_practices.silent_suppression"
	MagicNumber       = "best_practices.magic_number"
	DuplicateBlock    = "best_practices.duplicate_block"
	DebugPrint        = "best_practices.debug_print"
)

// Rule is the weight of one rule. For credit rules Points is the share of
// the dimension it earns; for deductions it is the cost per finding, with
// Cap bounding the total deduction (zero means uncapped).
type Rule struct {
	Points float64 `yaml:"points"`
	Cap    float64 `yaml:"cap"`
}

var defaults = map[string]Rule{
	StrategyDeclared: {Points: 20},
	InitializeHook:   {Points: 20},
	HandleDataHook:   {Points: 20},
	DeclaresType:     {Points: 10},
	DeclaresSymbol:   {Points: 10},
	CustomIndicator:  {Points: 10},
	Helpers:          {Points: 10},

	UnguardedData:     {Points: 20},
	UnguardedDivision: {Points: 20},
	UnguardedOrder:    {Points: 15},

	ModuleDoc:      {Points: 20},
	InitializeDoc:  {Points: 15},
	HandleDataDoc:  {Points: 15},
	HelperDocs:     {Points: 10},
	BranchComments: {Points: 20},
	CommentDensity: {Points: 20},

	BranchExcess: {Points: 5},

	Naming:            {Points: 5, Cap: 30},
	SilentSuppression: {Points: 15, Cap: 30},
	MagicNumber:       {Points: 5, Cap: 30},
	DuplicateBlock:    {Points: 10, Cap: 30},
	DebugPrint:        {Points: 3, Cap: 30},
}

type Table struct {
	Rules map[string]Rule
}

func Default() *Table {
	return &Table{Rules: maps.Clone(defaults)}
}

// Load reads overrides from a yaml map of rule id to {points, cap} and
// applies them over the defaults.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	var overrides map[string]Rule
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}
	t := Default()
	for id, r := range overrides {
		if _, ok := t.Rules[id]; !ok {
			return nil, fmt.Errorf("rules file %s: unknown rule %q", path, id)
		}
		if r.Points < 0 || r.Cap < 0 {
			return nil, fmt.Errorf("rules file %s: rule %q: negative value", path, id)
		}
		t.Rules[id] = r
	}
	return t, nil
}

// Points returns the configured points for a rule, zero if unknown.
func (t *Table) Points(id string) float64 {
	if t == nil || t.Rules == nil {
		return defaults[id].Points
	}
	return t.Rules[id].Points
}

func (t *Table) Cap(id string) float64 {
	if t == nil || t.Rules == nil {
		return defaults[id].Cap
	}
	return t.Rules[id].Cap
}

func (t *Table) IDs() []string {
	if t == nil || t.Rules == nil {
		return slices.Sorted(maps.Keys(defaults))
	}
	return slices.Sorted(maps.Keys(t.Rules))
}
