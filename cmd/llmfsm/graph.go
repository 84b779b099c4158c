package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/llmfsm/internal/agents"
	"github.com/aretw0/llmfsm/internal/cli"
	"github.com/aretw0/llmfsm/internal/presentation/graph"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the agent graph",
	Long: `Outputs a Mermaid flowchart of the selected agent.
With --session the states visited by that session are highlighted.`,
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		sessionID, _ := cmd.Flags().GetString("session")

		spec, err := lookupAgent(cmd)
		if err != nil {
			fail("Error: %v", err)
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			fail("Error: %v", err)
		}
		reg, err := spec.Build(agents.Deps{Content: cli.ContentLoader(cfg.ContentDir)})
		if err != nil {
			fail("Error building agent: %v", err)
		}
		defs := reg.Definitions()

		if asJSON {
			data, err := json.MarshalIndent(graph.Describe(defs, spec.Initial, reg.Terminal()), "", "  ")
			if err != nil {
				fail("Error encoding graph: %v", err)
			}
			fmt.Println(string(data))
			return
		}

		var overlay *graph.Overlay
		if sessionID != "" {
			stores, err := cli.NewStores(cfg.Store)
			if err != nil {
				fail("Error opening store: %v", err)
			}
			defer stores.Close()
			snap, err := stores.Snapshots.Load(cmd.Context(), sessionID)
			if err != nil {
				fail("Error loading session '%s': %v", sessionID, err)
			}
			overlay = graph.OverlayFromHistory(snap.Current, snap.History)
		}
		fmt.Print(graph.Mermaid(defs, spec.Initial, reg.Terminal(), overlay))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Bool("json", false, "Print the graph as JSON instead of Mermaid")
	graphCmd.Flags().StringP("session", "s", "", "Highlight the path of a stored session")
}
