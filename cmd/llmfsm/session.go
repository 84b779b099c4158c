package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/llmfsm/internal/cli"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persistent sessions",
	Long:  `List, inspect, and remove sessions kept in the configured store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all stored sessions",
	Run: func(cmd *cobra.Command, args []string) {
		stores := openStores(cmd)
		defer stores.Close()

		sessions, err := stores.Snapshots.List(cmd.Context())
		if err != nil {
			fail("Error listing sessions: %v", err)
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return
		}
		fmt.Println("Sessions:")
		for _, s := range sessions {
			fmt.Println("- " + s)
		}
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Inspect the state of a session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sessionID := args[0]
		withAudit, _ := cmd.Flags().GetBool("audit")
		stores := openStores(cmd)
		defer stores.Close()

		var out any
		snap, err := stores.Snapshots.Load(cmd.Context(), sessionID)
		if err != nil {
			fail("Error loading session '%s': %v", sessionID, err)
		}
		out = snap
		if withAudit {
			recs, err := stores.Audit.List(cmd.Context(), sessionID)
			if err != nil {
				fail("Error loading audit of '%s': %v", sessionID, err)
			}
			out = map[string]any{"snapshot": snap, "audit": recs}
		}

		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fail("Error marshaling session: %v", err)
		}
		fmt.Println(string(data))
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		stores := openStores(cmd)
		defer stores.Close()
		hasError := false

		for _, sessionID := range args {
			if err := stores.Snapshots.Delete(cmd.Context(), sessionID); err != nil {
				fmt.Printf("Error removing '%s': %v\n", sessionID, err)
				hasError = true
			} else {
				fmt.Printf("Removed session '%s'\n", sessionID)
			}
		}
		if hasError {
			stores.Close()
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)

	sessionInspectCmd.Flags().Bool("audit", false, "Include the audit trail")
}

func openStores(cmd *cobra.Command) *cli.Stores {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fail("Error: %v", err)
	}
	stores, err := cli.NewStores(cfg.Store)
	if err != nil {
		fail("Error opening store: %v", err)
	}
	return stores
}
