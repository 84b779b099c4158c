package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/llmfsm/pkg/adapters/scripted"
)

func newChat(app *App, input string, out *bytes.Buffer) *Chat {
	return &Chat{
		Sessions: app.Sessions,
		Terminal: app.Agent.Terminal(),
		In:       strings.NewReader(input),
		Out:      out,
		Greeting: app.Spec.Greeting,
	}
}

func TestChat_Conversation(t *testing.T) {
	app := newTestApp(t, Options{Client: scripted.New([]scripted.Step{
		say("The light is on.", "STATE_ON"),
		say("See you.", "END"),
	})})
	var out bytes.Buffer

	require.NoError(t, newChat(app, "turn it on\n\nbye\nignored\n", &out).Run(context.Background(), "s1"))

	text := out.String()
	assert.Contains(t, text, "Hello! I am your light switch assistant.")
	assert.Contains(t, text, "The light is on.")
	assert.Contains(t, text, "Goodbye!")
	assert.Contains(t, text, ">>> Finished at 'END' state.")
	assert.NotContains(t, text, "ignored")

	snap, err := app.Sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, snap.Completed)
	assert.Len(t, snap.History, 2)
}

func TestChat_QuitAndResume(t *testing.T) {
	app := newTestApp(t, Options{Client: scripted.New([]scripted.Step{
		say("The light is on.", "STATE_ON"),
	})})
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, newChat(app, "turn it on\n", &out).Run(ctx, "s1"))

	out.Reset()
	require.NoError(t, newChat(app, "EXIT\n", &out).Run(ctx, "s1"))
	assert.Contains(t, out.String(), ">>> Resuming at 'STATE_ON' state...")
	assert.Contains(t, out.String(), "Goodbye!")
	assert.NotContains(t, out.String(), "Hello!")

	snap, err := app.Sessions.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "END", snap.Current)
	assert.True(t, snap.Completed)

	out.Reset()
	require.NoError(t, newChat(app, "hello?\n", &out).Run(ctx, "s1"))
	assert.Contains(t, out.String(), "already finished")
}

func TestChat_ErrorsKeepSession(t *testing.T) {
	app := newTestApp(t, Options{Client: scripted.New([]scripted.Step{
		scripted.Fail(errors.New("model offline")),
		say("The light is on.", "STATE_ON"),
	})})
	var out bytes.Buffer

	require.NoError(t, newChat(app, "on\non\n", &out).Run(context.Background(), "s1"))
	assert.Contains(t, out.String(), ">>> Error:")
	assert.Contains(t, out.String(), "The light is on.")

	snap, err := app.Sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "STATE_ON", snap.Current)
	assert.Len(t, snap.History, 1)
}

func TestChat_JSON(t *testing.T) {
	app := newTestApp(t, Options{Client: scripted.New([]scripted.Step{
		say("The light is on.", "STATE_ON"),
	})})
	var out bytes.Buffer
	c := newChat(app, "\"turn it on\"\nnot json\n{\"input\": \"quit\"}\n", &out)
	c.JSON = true

	require.NoError(t, c.Run(context.Background(), "s1"))

	var got []TurnOutput
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var o TurnOutput
		require.NoError(t, json.Unmarshal(sc.Bytes(), &o), sc.Text())
		got = append(got, o)
	}
	require.Len(t, got, 3)
	assert.Equal(t, TurnOutput{State: "STATE_ON", Response: "The light is on."}, got[0])
	assert.NotEmpty(t, got[1].Error)
	assert.Equal(t, TurnOutput{State: "END", Completed: true}, got[2])
}

func TestChat_Cancelled(t *testing.T) {
	app := newTestApp(t, Options{Client: scripted.New(nil)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		var out bytes.Buffer
		done <- newChat(app, "", &out).Run(ctx, "s1")
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("chat did not stop")
	}
}
