package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type tablesFlags struct {
	registryFlags
	protocols bool
}

func newTablesCmd() *cobra.Command {
	flags := &tablesFlags{}

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List dissector tables, their entries and heuristics",
		Example: `  tlvscope tables
  tlvscope tables --catalog catalogs/example.yaml
  tlvscope tables --protocols`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return runTables(cmd, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.protocols, "protocols", false, "List protocols instead of tables")
	flags.registryFlags.bind(cmd)

	return cmd
}

func runTables(cmd *cobra.Command, flags *tablesFlags) error {
	_, reg, err := flags.load()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if flags.protocols {
		fmt.Fprintf(out, "%-24s %s\n", "PROTOCOL", "TITLE")
		fmt.Fprintln(out, strings.Repeat("-", 60))
		for _, p := range reg.Protocols() {
			fmt.Fprintf(out, "%-24s %s\n", p.Name, p.Title)
		}
		return nil
	}

	tables := reg.Tables()
	for _, t := range tables {
		fmt.Fprintf(out, "%s (%s keys, %d entries)\n", t.Name, t.KeyType, len(t.Entries))
		for _, e := range t.Entries {
			fmt.Fprintf(out, "  %-20s %s\n", e.Key, e.Protocol)
		}
	}
	lists := reg.HeuristicLists()
	for _, list := range lists {
		fmt.Fprintf(out, "heuristics %s: %s\n", list, strings.Join(reg.Heuristics(list), ", "))
	}
	fmt.Fprintf(out, "\n%d tables, %d heuristic lists\n", len(tables), len(lists))
	return nil
}
