package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/signalnine/stratgate/internal/scenario"
)

var flagWithRandom bool

func newScenariosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "List the scenarios candidates are run against",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			gen := scenario.NewGenerator(scenarioOptions(cfg))
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCATEGORY\tNAME\tINPUTS")
			seq := gen.Boundary()
			if flagWithRandom {
				seq = gen.All()
			}
			for sc := range seq {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", sc.ID, sc.Category, sc.Name, inputsString(sc))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("\n%d boundary, %d random (seed %d)\n", gen.BoundaryCount(), gen.RandomCount(), gen.Seed())
			return nil
		},
	}
	cmd.Flags().BoolVar(&flagWithRandom, "random", false, "include the random scenarios")
	return cmd
}

func inputsString(sc scenario.Scenario) string {
	parts := make([]string, 0, len(scenario.Slots))
	for _, slot := range sc.SlotNames() {
		v, _ := sc.Lookup(slot)
		parts = append(parts, fmt.Sprintf("%s=%s", slot, v))
	}
	return strings.Join(parts, " ")
}
