package sunbird

import (
	"strings"

	"sunbird-adapter/pkg/message"
)

// EncodeChoices derives each choice's key from the first word of its text and
// removes that word from the text. It recomputes every choice on every call:
// running it twice consumes a second word. Choices with blank text are kept as is.
func EncodeChoices(choices []message.ButtonChoice) []message.ButtonChoice {
	if choices == nil {
		return nil
	}

	encoded := make([]message.ButtonChoice, len(choices))
	for i, choice := range choices {
		encoded[i] = encodeChoice(choice)
	}
	return encoded
}

func encodeChoice(choice message.ButtonChoice) message.ButtonChoice {
	words := strings.Fields(choice.Text)
	if len(words) == 0 {
		return choice
	}

	key := words[0]
	return message.ButtonChoice{
		Key:  key,
		Text: strings.TrimSpace(strings.Replace(choice.Text, key, "", 1)),
	}
}

// EncodeUnkeyed applies EncodeChoices only to choices that have no key yet, so
// a message that already went through the codec is not encoded a second time.
func EncodeUnkeyed(choices []message.ButtonChoice) []message.ButtonChoice {
	if choices == nil {
		return nil
	}

	encoded := make([]message.ButtonChoice, len(choices))
	for i, choice := range choices {
		if choice.Key != "" {
			encoded[i] = choice
			continue
		}
		encoded[i] = encodeChoice(choice)
	}
	return encoded
}

// RenderChoices lists choice texts one per line, for channels without buttons.
func RenderChoices(choices []message.ButtonChoice) string {
	if len(choices) == 0 {
		return ""
	}

	var b strings.Builder
	for i, choice := range choices {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(choice.Text)
	}
	return b.String()
}
