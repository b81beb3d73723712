package sunbird

import (
	"encoding/json"
	"fmt"
	"strings"

	"sunbird-adapter/pkg/channel"
	"sunbird-adapter/pkg/message"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = validator.New()

// InboundMessage is the web portal webhook payload.
type InboundMessage struct {
	Text      string `json:"text" validate:"required"`
	From      string `json:"from" validate:"required"`
	MessageID string `json:"messageId" validate:"required"`
	// To is the id the reply must reference.
	To string `json:"to" validate:"required"`
}

// Choice is one button as the web portal expects it.
type Choice struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Body is the portal-specific message: a title and its reply options.
type Body struct {
	Title   string   `json:"title"`
	Choices []Choice `json:"choices"`
}

// OutboundMessage is the envelope posted to the transport endpoint.
type OutboundMessage struct {
	Message   Body   `json:"message"`
	To        string `json:"to"`
	MessageID string `json:"messageId"`
}

// ParseInbound decodes and validates a webhook body.
func ParseInbound(data []byte) (InboundMessage, error) {
	var inbound InboundMessage
	if err := json.Unmarshal(data, &inbound); err != nil {
		return InboundMessage{}, channel.Serialization("parse inbound", err)
	}
	if err := inbound.Validate(); err != nil {
		return InboundMessage{}, err
	}
	return inbound, nil
}

// Validate reports every missing required field by its JSON name.
func (m InboundMessage) Validate() error {
	err := validate.Struct(m)
	if err == nil {
		return nil
	}

	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return channel.Validation("validate inbound", err.Error())
	}

	fields := lo.Map(fieldErrors, func(fe validator.FieldError, _ int) string {
		return jsonFieldName(fe.StructField())
	})
	return channel.Validation("validate inbound", fmt.Sprintf("missing required fields: %s", strings.Join(fields, ", ")))
}

func jsonFieldName(structField string) string {
	switch structField {
	case "MessageID":
		return "messageId"
	default:
		return strings.ToLower(structField)
	}
}

// BuildOutbound maps a canonical reply onto the portal envelope. It also
// returns the normalized payload (cleaned title, keyed choices) that the
// acknowledged message should carry. msg itself is not modified.
func BuildOutbound(msg message.Message) (OutboundMessage, message.Payload) {
	payload := message.Payload{
		Text:          CleanText(msg.Payload.Text),
		ButtonChoices: EncodeUnkeyed(msg.Payload.ButtonChoices),
	}

	choices := lo.Map(payload.ButtonChoices, func(c message.ButtonChoice, _ int) Choice {
		return Choice{Key: c.Key, Text: c.Text}
	})

	return OutboundMessage{
		Message: Body{
			Title:   payload.Text,
			Choices: choices,
		},
		To:        msg.MessageID.ReplyID,
		MessageID: msg.MessageID.ChannelMessageID,
	}, payload
}
