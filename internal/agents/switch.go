package agents

import (
	"context"

	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/dsl"
	"github.com/aretw0/llmfsm/pkg/registry"
	"github.com/aretw0/llmfsm/pkg/schema"
)

// LightKey holds "ON" or "OFF".
const LightKey = "light"

// Switch builds the light switch agent.
func Switch() (*registry.Registry, error) {
	b := dsl.New("END")
	b.Add("START").
		Prompt("You are a light switcher. Ask the user if they want to turn on/off the light.").
		Edge("STATE_ON", "If user wants to turn on the light").
		Edge("END", "If user wants to end the conversation").
		Handle(toggle("STATE_ON", "ON"))
	b.Add("STATE_ON").
		Prompt("The light is now on. Ask the user if they want to turn off the light or end the conversation.").
		Edge("START", "If user wants to turn off the light").
		Edge("END", "If user wants to end the conversation").
		Handle(toggle("START", "OFF"))
	b.Add("END").
		Prompt("Goodbye!").
		Handle(func(context.Context, domain.TurnScope, schema.Payload, bool) (domain.Outcome, error) {
			return domain.Reply("Goodbye!"), nil
		})
	return b.Build()
}

func toggle(target, light string) domain.Handler {
	return func(_ context.Context, turn domain.TurnScope, _ schema.Payload, will bool) (domain.Outcome, error) {
		if !will {
			return nil, nil
		}
		switch turn.NextState() {
		case target:
			return nil, turn.SetContext(LightKey, light)
		case "END":
			return domain.Reply("Goodbye!"), nil
		}
		return nil, nil
	}
}
