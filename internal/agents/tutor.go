package agents

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/llmfsm/internal/agents/content"
	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/dsl"
	"github.com/aretw0/llmfsm/pkg/prompt"
	"github.com/aretw0/llmfsm/pkg/registry"
	"github.com/aretw0/llmfsm/pkg/schema"
)

// Context keys written by the tutors.
const (
	ContentIDKey    = "content_id"
	TopicContentKey = "topic_content"
	TopicExampleKey = "topic_example"
)

const (
	tutorContent = "show_content"
	tutorExample = "show_example"
	tutorQuiz    = "quiz"
)

// Tutor builds the tutor whose prompts interpolate the topic kept in context.
func Tutor(deps Deps) (*registry.Registry, error) {
	t := &tutor{content: deps.withDefaults().Content}
	return t.build(map[string]string{
		tutorContent: "You are a tutor. Present the content for topic {{.content_id}}:\n{{.topic_content}}",
		tutorExample: "You are a tutor. Provide an example for topic {{.content_id}}:\n{{.topic_example}}",
		tutorQuiz:    "You are a tutor. Create a quiz for topic {{.content_id}}:\n{{.topic_content}}",
	}, false)
}

// TutorFiles builds the tutor whose prompts are rendered from the content
// files on every turn.
func TutorFiles(deps Deps) (*registry.Registry, error) {
	t := &tutor{content: deps.withDefaults().Content}
	return t.build(map[string]string{
		tutorContent: showContentTemplate,
		tutorExample: showExampleTemplate,
		tutorQuiz:    quizTemplate,
	}, true)
}

func tutorContext(deps Deps) (map[string]any, error) {
	t := &tutor{content: deps.withDefaults().Content}
	values := map[string]any{}
	scope := mapScope(values)
	if _, err := t.load(scope, 1); err != nil {
		return nil, err
	}
	return values, nil
}

type tutor struct {
	content *content.Loader
}

func (t *tutor) build(templates map[string]string, preprocess bool) (*registry.Registry, error) {
	b := dsl.New("END")
	conditions := map[string]string{
		tutorContent: "If the user wants more content or to move to the next section.",
		tutorExample: "If the user asks for an example.",
		tutorQuiz:    "If the user asks for a quiz.",
	}
	for _, id := range []string{tutorContent, tutorExample, tutorQuiz} {
		s := b.Add(id)
		if preprocess {
			s.Preprocess(t.preprocess(templates[id]))
		} else {
			s.Prompt(templates[id])
		}
		for _, to := range []string{tutorContent, tutorExample, tutorQuiz} {
			s.Edge(to, conditions[to])
		}
		s.Edge("END", "If the user wants to end the session.").Handle(t.handle)
	}
	b.Add("END").
		Prompt("The learning session has concluded. Goodbye!").
		Handle(func(context.Context, domain.TurnScope, schema.Payload, bool) (domain.Outcome, error) {
			return domain.Reply("Thank you for learning! Goodbye!"), nil
		})
	return b.Build()
}

// handle serves all three tutoring states. Staying in show_content or leaving
// show_example for show_content advances to the next topic.
func (t *tutor) handle(_ context.Context, turn domain.TurnScope, p schema.Payload, _ bool) (domain.Outcome, error) {
	id := currentTopic(turn)
	from, next := turn.CurrentState(), turn.NextState()

	var msg string
	switch next {
	case "END":
		return domain.Reply("Thank you for learning! Goodbye!"), nil
	case tutorQuiz:
		msg = fmt.Sprintf("Let's test your knowledge on content ID %d.", id)
		if from == tutorQuiz {
			msg = fmt.Sprintf("Here's your quiz for content ID %d.", id)
		}
	case tutorExample:
		ex, err := t.content.Example(id)
		if err != nil {
			return nil, err
		}
		if err := turn.SetContext(TopicExampleKey, ex); err != nil {
			return nil, err
		}
		msg = fmt.Sprintf("Here's an example for content ID %d:\n%s", id, ex)
		if from == tutorExample {
			msg = fmt.Sprintf("Here's another example for content ID %d.", id)
		}
	case tutorContent:
		if from == tutorQuiz {
			text, err := t.content.Content(id)
			if err != nil {
				return nil, err
			}
			msg = "Returning to the content for topic " + text
			break
		}
		text, err := t.load(turn, id+1)
		if errors.Is(err, content.ErrNotFound) {
			msg = "That was the last topic. Ask for an example or a quiz, or end the session."
			break
		}
		if err != nil {
			return nil, err
		}
		msg = fmt.Sprintf("Here's the content for topic %d:\n%s", id+1, text)
	}

	if c := p.Content(); c != "" {
		msg += "\n\n" + c
	}
	return domain.Reply(msg), nil
}

// load moves the session to topic id and caches its texts in context.
func (t *tutor) load(turn contextWriter, id int) (string, error) {
	text, err := t.content.Content(id)
	if err != nil {
		return "", err
	}
	ex, err := t.content.Example(id)
	if err != nil && !errors.Is(err, content.ErrNotFound) {
		return "", err
	}
	for k, v := range map[string]any{ContentIDKey: id, TopicContentKey: text, TopicExampleKey: ex} {
		if err := turn.SetContext(k, v); err != nil {
			return "", err
		}
	}
	return text, nil
}

func (t *tutor) preprocess(tmpl string) domain.PromptFunc {
	return func(input string, vars map[string]any) (string, error) {
		id := topicID(vars[ContentIDKey])
		text, err := t.content.Content(id)
		if err != nil {
			text = err.Error()
		}
		ex, err := t.content.Example(id)
		if err != nil {
			ex = err.Error()
		}
		return prompt.DefaultInterpolator(context.Background(), tmpl, map[string]any{
			"user_input":    input,
			"topic_id":      id,
			"topic_content": text,
			"topic_example": ex,
		})
	}
}

type contextWriter interface {
	SetContext(key string, value any) error
}

type mapScope map[string]any

func (m mapScope) SetContext(key string, value any) error {
	m[key] = value
	return nil
}

func currentTopic(turn domain.TurnScope) int {
	v, _ := turn.GetContext(ContentIDKey)
	return topicID(v)
}

// topicID reads an id stored as int, or as float64 after a JSON round trip.
func topicID(v any) int {
	switch n := v.(type) {
	case int:
		return max(n, 1)
	case float64:
		return max(int(n), 1)
	}
	return 1
}

const showContentTemplate = `You are a friendly and helpful calculus tutor.
The user said: "{{.user_input}}"

Current Topic ID: {{.topic_id}}
Content for this topic:
{{.topic_content}}

Explain this content in a helpful way. If the user wants more content, you can move to show_content.
If they want an example, move to show_example.
If they want a quiz, move to quiz.
If they want to end, move to END.

Include the content above in your explanation to the user.`

const showExampleTemplate = `You are a friendly and helpful calculus tutor.
The user said: "{{.user_input}}"

Current Topic ID: {{.topic_id}}
Previously shown content:
{{.topic_content}}

Example for this topic:
{{.topic_example}}

Explain the example and how it relates to the content. If the user wants more content, move to show_content.
If they want another example, move to show_example.
If they want a quiz, move to quiz.
If they want to end, move to END.`

const quizTemplate = `You are a friendly and helpful calculus tutor.
The user said: "{{.user_input}}"

Current Topic ID: {{.topic_id}}
Previously shown content:
{{.topic_content}}

Please create a short quiz related to the above content. Include a few questions and maybe some hints.
If the user wants more content after this, move to show_content.
If they want an example, move to show_example.
If they want another quiz, move to quiz.
If they want to end, move to END.`
