package sunbird

import (
	"testing"

	"sunbird-adapter/pkg/message"

	"github.com/stretchr/testify/require"
)

func TestEncodeChoices(t *testing.T) {
	t.Parallel()

	got := EncodeChoices([]message.ButtonChoice{
		{Text: "YES please continue"},
		{Text: ""},
		{Text: "   "},
		{Text: "  NO  stop here "},
		{Text: "single"},
	})

	require.Equal(t, []message.ButtonChoice{
		{Key: "YES", Text: "please continue"},
		{Key: "", Text: ""},
		{Key: "", Text: "   "},
		{Key: "NO", Text: "stop here"},
		{Key: "single", Text: ""},
	}, got)
}

func TestEncodeChoicesDoesNotModifyInput(t *testing.T) {
	t.Parallel()

	in := []message.ButtonChoice{{Text: "A first"}}
	_ = EncodeChoices(in)

	require.Equal(t, message.ButtonChoice{Text: "A first"}, in[0])
	require.Nil(t, EncodeChoices(nil))
}

func TestEncodeChoicesTwiceConsumesSecondWord(t *testing.T) {
	t.Parallel()

	once := EncodeChoices([]message.ButtonChoice{{Text: "YES please continue"}})
	twice := EncodeChoices(once)

	require.Equal(t, message.ButtonChoice{Key: "please", Text: "continue"}, twice[0])
}

func TestEncodeUnkeyedSkipsKeyedChoices(t *testing.T) {
	t.Parallel()

	got := EncodeUnkeyed([]message.ButtonChoice{
		{Key: "YES", Text: "please continue"},
		{Text: "NO stop"},
	})

	require.Equal(t, []message.ButtonChoice{
		{Key: "YES", Text: "please continue"},
		{Key: "NO", Text: "stop"},
	}, got)
}

func TestRenderChoices(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", RenderChoices(nil))
	require.Equal(t, "please continue\nstop", RenderChoices([]message.ButtonChoice{
		{Key: "YES", Text: "please continue"},
		{Key: "NO", Text: "stop"},
	}))
}
