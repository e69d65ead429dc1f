// ABOUTME: The runs command group: list recent generation runs and show one by ID.
// ABOUTME: Output is indented JSON so it can be piped into jq.
package main

import (
	"github.com/spf13/cobra"

	"github.com/2389-research/pressroom/store"
)

func newRunsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect generation run history",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if runs == nil {
				runs = []store.Run{}
			}
			return a.printJSON(runs)
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			run, err := st.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJSON(run)
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}
