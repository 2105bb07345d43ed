package rules_test

import (
	"testing"

	"github.com/signalnine/stratgate/internal/rules"
)

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func TestDefaults(t *testing.T) {
	tbl := rules.Default()
	tests := []struct {
		id   string
		want float64
	}{
		{rules.StrategyDeclared, 20},
		{rules.UnguardedData, 20},
		{rules.BranchExcess, 5},
		{"missing.rule", 0},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := tbl.Points(tt.id); absf(got-tt.want) > 0.001 {
				t.Errorf("Points(%q) = %f, want %f", tt.id, got, tt.want)
			}
		})
	}
	if got := tbl.Cap(rules.Naming); got != 30 {
		t.Errorf("naming cap: got %f, want 30", got)
	}
}

func TestStructureCreditsSumToHundred(t *testing.T) {
	tbl := rules.Default()
	sum := 0.0
	for _, id := range []string{rules.StrategyDeclared, rules.InitializeHook, rules.HandleDataHook,
		rules.DeclaresType, rules.DeclaresSymbol, rules.CustomIndicator, rules.Helpers} {
		sum += tbl.Points(id)
	}
	if absf(sum-100) > 0.001 {
		t.Errorf("structure credits sum to %f", sum)
	}
}

func TestLoadOverrides(t *testing.T) {
	tbl, err := rules.Load("../../testdata/rules.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := tbl.Points(rules.UnguardedDivision); got != 30 {
		t.Errorf("override: got %f, want 30", got)
	}
	if got := tbl.Cap(rules.MagicNumber); got != 10 {
		t.Errorf("cap override: got %f, want 10", got)
	}
	if got := tbl.Points(rules.UnguardedOrder); got != 15 {
		t.Errorf("untouched default: got %f, want 15", got)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := rules.Load("nonexistent.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := rules.Load("../../testdata/rules_unknown.yaml"); err == nil {
		t.Error("expected error for unknown rule")
	}
}

func TestNilTableFallsBack(t *testing.T) {
	var tbl *rules.Table
	if got := tbl.Points(rules.HandleDataHook); got != 20 {
		t.Errorf("nil table: got %f, want 20", got)
	}
	if len(tbl.IDs()) == 0 {
		t.Error("nil table: expected ids")
	}
}
