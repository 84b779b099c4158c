/*
Package dsl provides a fluent builder for declaring the states of an llmfsm agent.

States are collected in declaration order and validated in one step by Build,
which registers them and finalizes the resulting registry. This replaces ad hoc
registration spread across an application.

Example usage:

	b := dsl.New("END")

	b.Add("START").
		Prompt("You are a light switch. Ask the user whether to turn the light on.").
		Edge("STATE_ON", "If the user wants the light on").
		Edge("END", "If the user wants to stop").
		Handle(onStart)

	b.Add("STATE_ON").
		Prompt("The light is on. Ask whether to turn it off.").
		Edge("START", "If the user wants the light off").
		Edge("END", "If the user wants to stop")

	b.Add("END").Prompt("Say goodbye.")

	reg, err := b.Build()
*/
package dsl
