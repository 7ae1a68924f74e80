package model

import (
	"errors"
	"testing"

	"github.com/hupe1980/reviewmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseErrorPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{"nested", `{"error":{"message":"Invalid API key","type":"auth"}}`, "Invalid API key", true},
		{"flat", `{"message":"rate limited"}`, "rate limited", true},
		{"string error", `{"error":"model overloaded"}`, "model overloaded", true},
		{"list", `[{"error":{"message":"quota exceeded"}}]`, "quota exceeded", true},
		{"list flat", `[{"message":"bad request"}]`, "bad request", true},
		{"empty", ``, "", false},
		{"not json", `<html>502</html>`, "", false},
		{"no message", `{"detail":"x"}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := ParseErrorPayload([]byte(tt.body))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, msg)
		})
	}
}

type fakeAPIError struct{ raw string }

func (e fakeAPIError) Error() string   { return "401 Unauthorized" }
func (e fakeAPIError) RawJSON() string { return e.raw }

func TestClassifyError(t *testing.T) {
	err := ClassifyError("openai", errors.New("dial tcp: connection refused"), nil, 0)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindTransport))
	assert.Contains(t, err.Error(), "connection refused")

	apiErr := fakeAPIError{raw: `{"error":{"message":"Invalid API key"}}`}
	err = ClassifyError("openai", apiErr, apiErr, 401)
	var ce *core.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, core.KindProviderAPI, ce.Kind)
	assert.Equal(t, "Invalid API key", ce.Message)
	assert.Equal(t, 401, ce.StatusCode)

	apiErr = fakeAPIError{raw: `not json`}
	err = ClassifyError("openai", apiErr, apiErr, 500)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "401 Unauthorized", ce.Message)

	assert.NoError(t, ClassifyError("openai", nil, nil, 0))
}

func TestScriptedClient(t *testing.T) {
	c := NewScriptedClient("a", "b").Reply("one").Fail(core.NewTransportError("x", errors.New("down")))

	msg, err := c.Complete(t.Context(), Request{Messages: []core.Message{core.UserMessage("q")}})
	require.NoError(t, err)
	assert.Equal(t, "one", msg.Content)

	_, err = c.Complete(t.Context(), Request{})
	assert.True(t, core.IsKind(err, core.KindTransport))

	_, err = c.Complete(t.Context(), Request{})
	assert.Error(t, err, "exhausted script")
	assert.Equal(t, 3, c.Calls())
	assert.Equal(t, "q", c.Requests()[0].Messages[0].Content)

	models, err := c.ListModels(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, models)
}
