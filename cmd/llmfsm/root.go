package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/llmfsm/internal/agents"
	"github.com/aretw0/llmfsm/internal/cli"
	"github.com/aretw0/llmfsm/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "llmfsm",
	Short: "llmfsm runs conversational agents modeled as state machines",
	Long: `llmfsm hosts agents whose every turn is one structured model call.
The model proposes the next state; handlers and the graph decide it.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", config.DefaultFile, "YAML config file")
	flags.String("env-file", ".env", "Dotenv file read before the environment")
	flags.StringP("agent", "a", "switch", "Bundled agent to host")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("store", "", "Session store: memory, file, redis or sqlite")
	flags.String("provider", "", "Model provider: openai, gemini or scripted")
	flags.String("model", "", "Model name")
	flags.String("script", "", "Reply file for the scripted provider")
	flags.Bool("trace", false, "Export OpenTelemetry spans to stderr")
}

// overrideFlags maps persistent flags to config keys.
var overrideFlags = map[string]string{
	"log-level": "log_level",
	"provider":  "provider",
	"model":     "model",
	"script":    "script",
}

// loadConfig reads the config file, the env file and the environment, then
// applies the flags the user set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	cfg, err := config.Load(file, envFile)
	if err != nil {
		return cfg, err
	}

	overrides := map[string]any{}
	for flag, key := range overrideFlags {
		if cmd.Flags().Changed(flag) {
			v, _ := cmd.Flags().GetString(flag)
			overrides[key] = v
		}
	}
	if cmd.Flags().Changed("store") {
		kind, _ := cmd.Flags().GetString("store")
		overrides["store"] = map[string]any{"kind": kind}
	}
	if len(overrides) == 0 {
		return cfg, nil
	}
	return cfg, cfg.ApplyOverrides(overrides)
}

// bootstrap loads the config and builds the App for the selected agent.
func bootstrap(cmd *cobra.Command, opts cli.Options, adjust func(*config.Config)) (*cli.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(&cfg)
	}
	opts.Agent, _ = cmd.Flags().GetString("agent")
	opts.Trace, _ = cmd.Flags().GetBool("trace")
	return cli.Bootstrap(cmd.Context(), cfg, opts)
}

func lookupAgent(cmd *cobra.Command) (agents.Spec, error) {
	name, _ := cmd.Flags().GetString("agent")
	spec, ok := agents.Lookup(name)
	if !ok {
		return agents.Spec{}, fmt.Errorf("unknown agent %q", name)
	}
	return spec, nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
