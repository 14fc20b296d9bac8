package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationMessagesRoundTrip(t *testing.T) {
	c := &Conversation{}
	msgs, err := c.Messages()
	require.NoError(t, err)
	assert.Empty(t, msgs)

	in := []Message{
		{Role: RoleSystem, Content: DefaultPersona},
		{Role: RoleUser, Content: "hi"},
	}
	require.NoError(t, c.SetMessages(in))
	out, err := c.Messages()
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestConversationMessagesRejectsGarbage(t *testing.T) {
	c := &Conversation{Context: []byte(`{"not":"a list"}`)}
	_, err := c.Messages()
	require.Error(t, err)
}

func TestWithoutFunctionMessages(t *testing.T) {
	in := []Message{
		{Role: RoleSystem, Content: "s"},
		{Role: RoleUser, Content: "u"},
		{Role: RoleFunction, Name: "webSearch", Content: "[]"},
		{Role: RoleAssistant, Content: "a"},
	}
	out := WithoutFunctionMessages(in)
	require.Len(t, out, 3)
	for _, m := range out {
		assert.NotEqual(t, RoleFunction, m.Role)
	}
	assert.Len(t, in, 4)
}

func TestAgentPersona(t *testing.T) {
	cases := []struct {
		name     string
		agent    *Agent
		wantText string
		wantTemp float64
	}{
		{"nil agent", nil, DefaultPersona, DefaultTemperature},
		{"empty prompt", &Agent{Temperature: 0.9}, DefaultPersona, 0.9},
		{"custom", &Agent{Prompt: "You are a pirate", Temperature: 1.1}, "You are a pirate", 1.1},
		{"zero temperature falls back", &Agent{Prompt: "p"}, "p", DefaultTemperature},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			text, temp := tc.agent.Persona()
			assert.Equal(t, tc.wantText, text)
			assert.InDelta(t, tc.wantTemp, temp, 1e-9)
		})
	}
}
