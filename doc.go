/*
Package llmfsm is a finite state machine engine for conversational agents whose transitions are chosen by a language model.

Each state declares a prompt, the structured reply it expects and the edges it may take. On every turn the engine asks the model, in one structured call, for the reply fields plus a "transition" field restricted to the state's declared targets. The reply is validated, the transition is resolved, the state's handler runs and the turn commits atomically.

# Concept

The graph is declared up front and validated once. Conditions on edges are plain text for the model; the engine never evaluates them. Handlers stay in control: they can rewrite the reply, stage context writes, or return an ImmediateOverride that beats whatever the model proposed.

# Key Features

  - Structured Transitions: the model picks the next state from an enumerated set, alongside the content it produced.
  - Atomic Turns: a failed turn (bad reply, unknown transition, handler error, client error) leaves state, context and history untouched.
  - Immediate Overrides: handlers can jump anywhere in the graph and optionally cascade the same payload into the target's handler.
  - Audit Trail: every committed turn produces an immutable TurnRecord.
  - Persistence: machines snapshot to memory, files, Redis or SQLite through pkg/session.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/llmfsm"
		"github.com/aretw0/llmfsm/pkg/adapters/openai"
		"github.com/aretw0/llmfsm/pkg/dsl"
	)

	func main() {
		b := dsl.New("END")
		b.Add("START").
			Prompt("Greet the user and ask whether to turn the light on.").
			Edge("ON", "If the user wants the light on").
			Edge("END", "If the user wants to stop")
		b.Add("ON").Prompt("The light is on.").Edge("END", "If the user is done")
		b.Add("END").Prompt("Say goodbye.")

		client, err := openai.New(openai.WithModel("gpt-4o-mini"))
		if err != nil {
			log.Fatal(err)
		}
		agent, err := llmfsm.New(b.MustBuild(), client)
		if err != nil {
			log.Fatal(err)
		}

		m, err := agent.NewMachine("START")
		if err != nil {
			log.Fatal(err)
		}
		for !m.IsCompleted() {
			rec, err := m.RunTurn(context.Background(), readLine())
			if err != nil {
				log.Println("retry:", err)
				continue
			}
			fmt.Println(rec.Response)
		}
	}
*/
package llmfsm
