package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aretw0/llmfsm/internal/cli"
	"github.com/aretw0/llmfsm/internal/config"
	"github.com/aretw0/llmfsm/internal/presentation/tui"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Chat with an agent in the terminal",
	Long: `Starts an interactive conversation with the selected agent.
Type 'quit' or 'exit' to end the session. Sessions are persisted, so running
again with the same --session resumes where you left off.`,
	Run: func(cmd *cobra.Command, args []string) {
		sessionID, _ := cmd.Flags().GetString("session")
		jsonMode, _ := cmd.Flags().GetBool("json")
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()

		app, err := bootstrap(cmd, cli.Options{}, func(cfg *config.Config) {
			// Keep the conversation readable unless asked otherwise.
			if !cmd.Flags().Changed("log-level") && cfg.LogLevel == "info" {
				cfg.LogLevel = "warn"
			}
		})
		if err != nil {
			fail("Error: %v", err)
		}
		defer app.Close()

		fd := int(os.Stdout.Fd())
		interactive := !jsonMode && term.IsTerminal(fd)
		render := tui.Plain
		if interactive {
			width := 80
			if w, _, err := term.GetSize(fd); err == nil && w > 0 {
				width = w
			}
			render = tui.NewRenderer(width)
			tui.PrintBanner(os.Stdout)
			fmt.Println(tui.Status(os.Stdout, fmt.Sprintf("agent %s, session %s", app.Spec.Name, sessionID)))
		}

		chat := &cli.Chat{
			Sessions: app.Sessions,
			Terminal: app.Agent.Terminal(),
			In:       os.Stdin,
			Out:      os.Stdout,
			Render:   render,
			JSON:     jsonMode,
			Timeout:  app.Config.Timeout,
			Greeting: app.Spec.Greeting,
			Logger:   app.Logger,
		}
		err = chat.Run(sc, sessionID)
		if sig := sc.Signal(); sig != nil && !jsonMode {
			fmt.Printf("\n>>> [%v] Interrupted. Resume with --session %s\n", sig, sessionID)
		}
		if err != nil {
			fail("Error: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("session", "s", "", "Session id to start or resume (random when empty)")
	runCmd.Flags().Bool("json", false, "Run in JSON mode (NDJSON input/output)")

	rootCmd.Run = runCmd.Run
	rootCmd.Flags().AddFlagSet(runCmd.Flags())
}
