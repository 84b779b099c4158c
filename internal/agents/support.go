package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/dsl"
	"github.com/aretw0/llmfsm/pkg/registry"
	"github.com/aretw0/llmfsm/pkg/schema"
)

// VerifiedUserKey holds the identified customer.
const VerifiedUserKey = "verified_user"

var (
	identificationSchema = schema.New("UserIdentificationResponse",
		schema.Required("user_name", schema.String(), "The customer's full name."),
		schema.Required("phone_number", schema.String(), "The customer's phone number."),
	)
	confirmationSchema = schema.New("ConfirmationResponse",
		schema.Required("confirmation", schema.Enum("yes", "no", "unclear"), "Whether the user confirmed the details."),
	)
)

// Support builds the customer identification agent.
func Support() (*registry.Registry, error) {
	b := dsl.New("END")
	b.Add("START").
		Prompt("You are a customer support bot. Your first task is to ask the user for their " +
			"name and phone number. Please ensure the user provides both details before proceeding.").
		Schema(identificationSchema).
		Edge("CONFIRM", "Once the user provides their name and phone number").
		Handle(identify)
	b.Add("CONFIRM").
		Prompt("Please confirm the information you provided. Reply with 'yes' or 'no'.").
		Schema(confirmationSchema).
		Edge("IDENTIFIED", "If the user confirms the details are correct").
		Edge("START", "If the user indicates the details are incorrect").
		Handle(confirm)
	b.Add("IDENTIFIED").
		Prompt("Thank you for identifying yourself. Is there anything else you need help with?").
		Edge("END", "When the user indicates the conversation is over").
		Handle(func(_ context.Context, turn domain.TurnScope, p schema.Payload, will bool) (domain.Outcome, error) {
			if will && turn.NextState() == "END" {
				return domain.Reply("Thank you! Have a great day!"), nil
			}
			if c := p.Content(); c != "" {
				return domain.Reply(c), nil
			}
			return domain.Reply("You have been identified successfully. How can I assist you further?"), nil
		})
	b.Add("END").
		Prompt("Thank you! Goodbye.").
		Handle(func(context.Context, domain.TurnScope, schema.Payload, bool) (domain.Outcome, error) {
			return domain.Reply("Goodbye! If you need further assistance, feel free to reach out again."), nil
		})
	return b.Build()
}

func identify(_ context.Context, turn domain.TurnScope, p schema.Payload, will bool) (domain.Outcome, error) {
	if !will || turn.NextState() != "CONFIRM" {
		return domain.Reply("Please provide your name and phone number."), nil
	}
	name, phone := p.String("user_name"), p.String("phone_number")
	err := turn.SetContext(VerifiedUserKey, map[string]any{
		"user_name":    name,
		"phone_number": phone,
	})
	if err != nil {
		return nil, err
	}
	return domain.Reply(fmt.Sprintf(
		"Thank you! You provided the following details:\nName: %s\nPhone Number: %s\nIs this information correct? (yes/no)",
		name, phone,
	)), nil
}

// confirm routes on the confirmation field rather than the model's transition.
func confirm(_ context.Context, turn domain.TurnScope, p schema.Payload, _ bool) (domain.Outcome, error) {
	switch strings.ToLower(p.String("confirmation")) {
	case "yes":
		if err := turn.SetNextState("IDENTIFIED"); err != nil {
			return nil, err
		}
		return domain.Reply("Thank you for confirming your details. How can I help you?"), nil
	case "no":
		if err := turn.SetNextState("START"); err != nil {
			return nil, err
		}
		turn.DeleteContext(VerifiedUserKey)
		return domain.Reply("Let's try again. Please provide your name and phone number."), nil
	}
	if err := turn.SetNextState(turn.CurrentState()); err != nil {
		return nil, err
	}
	return domain.Reply("Invalid response. Please reply with 'yes' or 'no'."), nil
}
