package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aretw0/llmfsm/internal/agents"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the bundled agents",
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tINITIAL\tDESCRIPTION")
		for _, s := range agents.Catalog() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, s.Initial, s.Description)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}
