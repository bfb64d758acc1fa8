package gateway

import (
	"encoding/json"

	errs "RTGateway/tools/errs"

	"github.com/pkg/errors"
)

// Reserved protocol event names. Anything else arriving from a client is
// a namespaced business event.
const (
	EventAuthenticate  = "authenticate"
	EventDisconnect    = "disconnect"
	EventAuthenticated = "authenticated"
	EventError         = "error"
)

// Frame is the wire unit in both directions: a named event with a JSON
// payload.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "unmarshal frame")
	}
	if f.Event == "" {
		return nil, errors.New("frame missing event name")
	}
	return &f, nil
}

// AuthPayload is the body of an authenticate frame.
type AuthPayload struct {
	Token  string `json:"token"`
	RoomID string `json:"roomId"`
}

func (f *Frame) AuthPayload() (*AuthPayload, error) {
	var p AuthPayload
	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return nil, errors.Wrap(err, "unmarshal authenticate payload")
		}
	}
	return &p, nil
}

// GatewayEvent is the envelope published to a backend service channel for
// every forwarded client event.
type GatewayEvent struct {
	EventType string          `json:"eventType"`
	UserID    string          `json:"userId"`
	ConnID    string          `json:"connectionHandle"`
	RoomID    string          `json:"roomId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// BroadcastInstruction arrives on the outgoing channel from backend
// services. An empty recipient list means "everyone currently present in
// payload.roomId", resolved at delivery time.
type BroadcastInstruction struct {
	Type           string         `mapstructure:"type"`
	Recipients     []string       `mapstructure:"recipients"`
	Payload        map[string]any `mapstructure:"payload"`
	ExcludeHandles []string       `mapstructure:"excludeConnectionHandles"`
}

// RoomID extracts payload.roomId when present.
func (b *BroadcastInstruction) RoomID() string {
	if b.Payload == nil {
		return ""
	}
	if v, ok := b.Payload["roomId"].(string); ok {
		return v
	}
	return ""
}

func marshalFrame(event string, data any) []byte {
	body, err := json.Marshal(data)
	if err != nil {
		body = nil
	}
	out, _ := json.Marshal(Frame{Event: event, Data: body})
	return out
}

func buildErrorFrame(ce *errs.CodeError) []byte {
	return marshalFrame(EventError, map[string]string{
		"code":    ce.Code,
		"message": ce.Msg,
	})
}

func buildAuthAck(userID, roomID string) []byte {
	return marshalFrame(EventAuthenticated, map[string]any{
		"success": true,
		"userId":  userID,
		"roomId":  roomID,
	})
}

func buildBroadcastFrame(eventType string, payload map[string]any) []byte {
	return marshalFrame(eventType, payload)
}
