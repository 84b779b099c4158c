package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/llmfsm/internal/logging"
	"github.com/aretw0/llmfsm/internal/presentation/tui"
	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/session"
)

// Chat drives one session from a line-oriented stream.
// In text mode every line is a user message; "quit" and "exit" end the
// session. In JSON mode every line is a JSON string or {"input": "..."} and
// every turn is answered with one JSON object.
type Chat struct {
	Sessions *session.Manager
	Terminal string
	In       io.Reader
	Out      io.Writer
	Render   tui.Renderer
	JSON     bool
	// Timeout bounds each turn. Zero means no limit.
	Timeout  time.Duration
	Greeting string
	Logger   *slog.Logger
}

// TurnOutput is the JSON-mode answer to one input line.
type TurnOutput struct {
	State     string `json:"state"`
	Response  string `json:"response,omitempty"`
	Completed bool   `json:"completed"`
	Error     string `json:"error,omitempty"`
}

var quitCommands = map[string]bool{"quit": true, "exit": true}

// Run loads or starts sessionID and chats until the session completes, the
// input ends or ctx is cancelled.
func (c *Chat) Run(ctx context.Context, sessionID string) error {
	if c.Render == nil {
		c.Render = tui.Plain
	}
	if c.Logger == nil {
		c.Logger = logging.NewNop()
	}

	snap, err := c.Sessions.LoadOrStart(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to init session: %w", err)
	}
	if snap.Completed {
		c.system("Session '%s' already finished at '%s'.", sessionID, snap.Current)
		return nil
	}
	if len(snap.History) > 0 {
		c.system("Resuming at '%s' state...", snap.Current)
	} else if c.Greeting != "" && !c.JSON {
		c.print(c.Greeting)
	}

	lines := readLines(ctx, c.In)
	for {
		c.prompt()
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = l
		}

		input, err := c.parse(line)
		if err != nil {
			c.emitError("", err)
			continue
		}
		if input == "" {
			continue
		}
		if quitCommands[strings.ToLower(input)] {
			return c.quit(ctx, sessionID)
		}

		done, err := c.turn(ctx, sessionID, input)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// turn runs one message. It reports true when the session is over.
func (c *Chat) turn(ctx context.Context, sessionID, input string) (bool, error) {
	turnCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	rec, err := c.Sessions.RunTurn(turnCtx, sessionID, input)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return true, nil
	case errors.Is(err, domain.ErrAlreadyCompleted):
		c.system("Session already finished.")
		return true, nil
	default:
		c.Logger.Warn("Turn failed", "session_id", sessionID, "err", err)
		c.emitError("", err)
		return false, nil
	}

	completed := rec.NextState == c.Terminal
	if c.JSON {
		return completed, c.encode(TurnOutput{
			State:     rec.NextState,
			Response:  rec.Response,
			Completed: completed,
		})
	}

	out, err := c.Render(rec.Response)
	if err != nil {
		out = rec.Response
	}
	c.print(strings.TrimRight(out, "\n"))
	if completed {
		c.system("Finished at '%s' state.", rec.NextState)
	}
	return completed, nil
}

func (c *Chat) quit(ctx context.Context, sessionID string) error {
	snap, err := c.Sessions.Force(ctx, sessionID, c.Terminal)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if c.JSON {
		return c.encode(TurnOutput{State: snap.Current, Completed: true})
	}
	c.print("Goodbye!")
	return nil
}

func (c *Chat) parse(line string) (string, error) {
	line = strings.TrimSpace(line)
	if !c.JSON || line == "" {
		return line, nil
	}
	var s string
	if err := json.Unmarshal([]byte(line), &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var obj struct {
		Input *string `json:"input"`
	}
	if err := json.Unmarshal([]byte(line), &obj); err != nil || obj.Input == nil {
		return "", fmt.Errorf("expected a JSON string or {\"input\": ...}")
	}
	return strings.TrimSpace(*obj.Input), nil
}

func (c *Chat) emitError(state string, err error) {
	if c.JSON {
		_ = c.encode(TurnOutput{State: state, Error: err.Error()})
		return
	}
	c.system("Error: %v", err)
}

func (c *Chat) encode(v TurnOutput) error {
	return json.NewEncoder(c.Out).Encode(v)
}

func (c *Chat) prompt() {
	if !c.JSON {
		fmt.Fprint(c.Out, "> ")
	}
}

func (c *Chat) print(text string) {
	fmt.Fprintln(c.Out, text)
}

func (c *Chat) system(format string, args ...any) {
	if c.JSON {
		return
	}
	fmt.Fprintf(c.Out, ">>> %s\n", fmt.Sprintf(format, args...))
}

// readLines feeds lines from r until EOF or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case out <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
