package bus

import (
	"context"
	"encoding/json"
)

// Message is one inbound bus delivery. Payloads are JSON almost always;
// when decoding fails the raw bytes are kept so a malformed message
// degrades instead of invoking the callback with an inconsistent shape.
type Message struct {
	Channel string
	Data    map[string]any // nil when the payload was not a JSON object
	Raw     []byte
}

// Decoded reports whether the payload parsed as a JSON object.
func (m *Message) Decoded() bool { return m.Data != nil }

// Handler consumes one bus message. Errors are logged by the bridge, not
// retried; delivery semantics are inherited from the underlying bus.
type Handler func(ctx context.Context, msg Message)

// Bridge abstracts publish-to-channel and subscribe-with-callback over the
// message bus. Both directions of the gateway go through it: client events
// out to backend channels, broadcast instructions back in.
type Bridge interface {
	Publish(ctx context.Context, channel string, v any) error
	Subscribe(channel string, h Handler) error
	Close() error
}

func decodePayload(channel string, raw []byte) Message {
	msg := Message{Channel: channel, Raw: raw}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err == nil {
		msg.Data = data
	}
	return msg
}

func encodePayload(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	default:
		return json.Marshal(v)
	}
}
