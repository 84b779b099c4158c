package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/llmfsm"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of llmfsm",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("llmfsm version %s\n", strings.TrimSpace(llmfsm.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
