package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/llmfsm/internal/agents"
	"github.com/aretw0/llmfsm/internal/cli"
	"github.com/aretw0/llmfsm/internal/validator"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the agent graph for consistency",
	Long:  `Crawls the graph from the initial state and reports missing targets, unreachable states and dead ends.`,
	Run: func(cmd *cobra.Command, args []string) {
		report, err := runValidate(cmd)
		if err != nil {
			fail("Validation failed: %v", err)
		}
		for _, w := range report.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		if err := report.Err(); err != nil {
			fail("Validation failed: %v", err)
		}
		fmt.Printf("Graph is valid! %d states reachable.\n", len(report.Reachable))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command) (validator.Report, error) {
	spec, err := lookupAgent(cmd)
	if err != nil {
		return validator.Report{}, err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return validator.Report{}, err
	}
	reg, err := spec.Build(agents.Deps{Content: cli.ContentLoader(cfg.ContentDir)})
	if err != nil {
		return validator.Report{}, err
	}
	return validator.ValidateGraph(reg.Definitions(), spec.Initial, reg.Terminal()), nil
}
