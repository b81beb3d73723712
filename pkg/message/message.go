// Package message defines the canonical message exchanged between channel
// adapters and the conversation platform.
package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// State tracks where a canonical message is in its delivery lifecycle.
type State int

const (
	StateCreated State = iota
	StateReplied
	StateSent
	StateDelivered
	StateRead
)

var stateNames = [...]string{"CREATED", "REPLIED", "SENT", "DELIVERED", "READ"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalJSON() ([]byte, error) {
	if s < 0 || int(s) >= len(stateNames) {
		return nil, fmt.Errorf("unknown message state %d", int(s))
	}
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("decode message state: %w", err)
	}
	for i, candidate := range stateNames {
		if candidate == name {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown message state %q", name)
}

// Type is the kind of content a message carries.
type Type int

const (
	TypeText Type = iota
	TypeMedia
	TypeLocation
	TypeDocument
)

var typeNames = [...]string{"TEXT", "MEDIA", "LOCATION", "DOCUMENT"}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

func (t Type) MarshalJSON() ([]byte, error) {
	if t < 0 || int(t) >= len(typeNames) {
		return nil, fmt.Errorf("unknown message type %d", int(t))
	}
	return json.Marshal(t.String())
}

func (t *Type) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("decode message type: %w", err)
	}
	for i, candidate := range typeNames {
		if candidate == name {
			*t = Type(i)
			return nil
		}
	}
	return fmt.Errorf("unknown message type %q", name)
}

// Address identifies one side of a conversation.
type Address struct {
	UserID     string `json:"userID"`
	DeviceType string `json:"deviceType,omitempty"`
}

// MessageID carries the channel-assigned id and the id a reply must reference.
//
// ChannelMessageID stays empty on outbound messages until the channel
// acknowledges a send.
type MessageID struct {
	ChannelMessageID string `json:"channelMessageId,omitempty"`
	ReplyID          string `json:"replyId,omitempty"`
}

// ButtonChoice is one reply option offered to the user.
type ButtonChoice struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Payload is the user-visible content of a message.
type Payload struct {
	Text          string         `json:"text"`
	ButtonChoices []ButtonChoice `json:"buttonChoices,omitempty"`
}

// Message is the platform-wide canonical message.
type Message struct {
	From      Address   `json:"from"`
	To        Address   `json:"to"`
	MessageID MessageID `json:"messageId"`
	State     State     `json:"messageState"`
	Type      Type      `json:"messageType"`
	Channel   string    `json:"channelURI"`
	Provider  string    `json:"providerURI"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload"`
}

// Clone returns a copy that shares no mutable state with m.
func (m Message) Clone() Message {
	if m.Payload.ButtonChoices != nil {
		choices := make([]ButtonChoice, len(m.Payload.ButtonChoices))
		copy(choices, m.Payload.ButtonChoices)
		m.Payload.ButtonChoices = choices
	}
	return m
}

// Acknowledge returns a copy of m marked as sent under the channel-assigned id.
// It is the only way an outbound message gains a ChannelMessageID.
func (m Message) Acknowledge(channelMessageID string) Message {
	acked := m.Clone()
	acked.MessageID.ChannelMessageID = channelMessageID
	acked.State = StateSent
	return acked
}
