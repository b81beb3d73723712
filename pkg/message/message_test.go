package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcknowledgeLeavesOriginalUntouched(t *testing.T) {
	t.Parallel()

	original := Message{
		MessageID: MessageID{ChannelMessageID: "m1", ReplyID: "r1"},
		State:     StateReplied,
		Payload: Payload{
			Text:          "pick one",
			ButtonChoices: []ButtonChoice{{Key: "A", Text: "first"}},
		},
	}

	acked := original.Acknowledge("abc123")
	acked.Payload.ButtonChoices[0].Text = "changed"

	require.Equal(t, "abc123", acked.MessageID.ChannelMessageID)
	require.Equal(t, "r1", acked.MessageID.ReplyID)
	require.Equal(t, StateSent, acked.State)

	require.Equal(t, "m1", original.MessageID.ChannelMessageID)
	require.Equal(t, StateReplied, original.State)
	require.Equal(t, "first", original.Payload.ButtonChoices[0].Text)
}

func TestCloneNilChoicesStayNil(t *testing.T) {
	t.Parallel()

	clone := Message{Payload: Payload{Text: "hi"}}.Clone()
	require.Nil(t, clone.Payload.ButtonChoices)
}

func TestStateJSONNames(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(struct {
		State State `json:"state"`
		Type  Type  `json:"type"`
	}{State: StateReplied, Type: TypeText})
	require.NoError(t, err)
	require.JSONEq(t, `{"state":"REPLIED","type":"TEXT"}`, string(data))

	var decoded struct {
		State State `json:"state"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"state":"SENT"}`), &decoded))
	require.Equal(t, StateSent, decoded.State)

	require.Error(t, json.Unmarshal([]byte(`{"state":"LOST"}`), &decoded))
}

func TestStateStringOutOfRange(t *testing.T) {
	t.Parallel()

	if got := State(42).String(); got != "State(42)" {
		t.Fatalf("State(42).String() = %q, want %q", got, "State(42)")
	}
	if _, err := json.Marshal(Type(-1)); err == nil {
		t.Fatal("expected error marshaling unknown type")
	}
}
