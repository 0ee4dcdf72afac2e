package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/vango-dev/viewstate/internal/errors"
	"github.com/vango-dev/viewstate/internal/scenario"
	"github.com/vango-dev/viewstate/pkg/binding"
)

func replayCmd(g *globalFlags) *cobra.Command {
	var (
		strategy string
		payloads bool
	)

	cmd := &cobra.Command{
		Use:   "replay <scenario>",
		Short: "Replay a mutation scenario against a binding",
		Long: `Replay a scenario file against a fresh reactive runtime and print what
the view layer received.

With --strategy=both the scenario runs under the diff and the patch
engine and the command fails unless both views end in the same state.

Examples:
  viewstate replay testdata/todo.yaml
  viewstate replay --strategy=patch --payloads todo.yaml`,
		Args: exactArgs(1, "viewstate replay <scenario>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			logger, closeLog, err := g.logger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()

			s, err := scenario.Load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			ro := scenario.RunOptions{Logger: logger}

			switch strategy {
			case "both":
				diff, patch, err := scenario.Compare(cmd.Context(), s, ro)
				if diff != nil {
					printResult(out, diff, payloads)
					printResult(out, patch, payloads)
				}
				if err != nil {
					return err
				}
				success(out, "diff and patch converge on %d keys", len(diff.Remote))
				return nil
			case string(binding.StrategyDiff), string(binding.StrategyPatch):
				res, err := scenario.Run(cmd.Context(), s, binding.Strategy(strategy), ro)
				if err != nil {
					return err
				}
				printResult(out, res, payloads)
				return nil
			default:
				return errors.New("E501").
					WithDetail(fmt.Sprintf("unknown strategy %q", strategy)).
					WithSuggestion("Use --strategy=diff, patch or both")
			}
		},
	}

	cmd.Flags().StringVarP(&strategy, "strategy", "s", "both", "Engine to run: diff, patch or both")
	cmd.Flags().BoolVarP(&payloads, "payloads", "p", false, "Print every payload")
	return cmd
}

func printResult(w io.Writer, res *scenario.Result, payloads bool) {
	bytes := 0
	for _, d := range res.Debug {
		bytes += d.EstimatedBytes
	}
	fmt.Fprintf(w, "%s: %d flushes, ~%d bytes\n", res.Strategy, len(res.Payloads), bytes)

	fallbacks := res.Fallbacks()
	reasons := make([]string, 0, len(fallbacks))
	for r := range fallbacks {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		warn(w, "fell back to diff %d time(s): %s", fallbacks[r], r)
	}

	if payloads {
		for i, p := range res.Payloads {
			data, _ := json.Marshal(p)
			fmt.Fprintf(w, "  #%d %s\n", i, data)
		}
	}
	data, _ := json.Marshal(res.Remote)
	fmt.Fprintf(w, "  final %s\n", data)
}
