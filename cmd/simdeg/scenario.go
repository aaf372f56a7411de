package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lccanon/simdeg"
	"github.com/lccanon/simdeg/internal/scenario"
)

func newScenarioCmd() *cobra.Command {
	cfg := scenario.DefaultConfig()

	names := make([]string, 0, len(scenario.Names()))
	for _, n := range scenario.Names() {
		names = append(names, string(n))
	}

	cmd := &cobra.Command{
		Use:       "scenario <" + strings.Join(names, "|") + ">",
		Short:     "Replay a deterministic observation scenario and print the resulting groups",
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := scenario.Parse(args[0])
			if err != nil {
				return err
			}

			log, err := newLogger()
			if err != nil {
				return err
			}

			runner, err := scenario.NewRunner(cfg, log, simdeg.WithLogger(log))
			if err != nil {
				return err
			}

			res, err := runner.Run(cmd.Context(), name)
			if err != nil {
				return err
			}

			printResult(cmd.OutOrStdout(), res)

			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntSliceVar(&cfg.Populations, "populations", cfg.Populations, "size of each population")
	flags.IntVar(&cfg.Rounds, "rounds", cfg.Rounds, "rounds per convergence or fragmentation phase")
	flags.IntVar(&cfg.OscillationRounds, "oscillation-rounds", cfg.OscillationRounds, "50/50 rounds of the oscillation scenario")
	flags.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "seed of the oscillation outcomes")

	return cmd
}

func printResult(w io.Writer, res *scenario.Result) {
	groups := slices.Clone(res.Agreement.Groups)
	slices.SortStableFunc(groups, func(a, b []string) int { return len(b) - len(a) })

	fmt.Fprintf(w, "scenario:      %s\n", res.Scenario)
	fmt.Fprintf(w, "observations:  %d\n", res.Observations)
	fmt.Fprintf(w, "groups:        %d\n", len(groups))
	fmt.Fprintf(w, "fingerprint:   %016x\n", res.Agreement.Fingerprint)
	fmt.Fprintf(w, "general error: %.4f\n", res.Agreement.GeneralError)
	fmt.Fprintf(w, "cross:         %.4f ± %.4f\n", res.Cross.Estimate(), res.Cross.Error())

	for i, g := range groups {
		members := slices.Clone(g)
		slices.Sort(members)
		fmt.Fprintf(w, "  [%d] %3d  %s\n", i, len(members), strings.Join(members, " "))
	}
}
