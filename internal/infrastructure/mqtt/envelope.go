package mqtt

import (
	"encoding/json"
	"time"
)

// msgIDLayout is ISO-8601 UTC with millisecond precision.
const msgIDLayout = "2006-01-02T15:04:05.000Z"

// Header identifies the sender of a message and correlates responses.
type Header struct {
	OriginID string `json:"originID"`
	MsgID    string `json:"msgID,omitempty"`
}

// Envelope is the outbound message shape for health, state and responses.
type Envelope struct {
	Header  Header      `json:"header"`
	Payload BodyPayload `json:"payload"`
}

// BodyPayload carries a status code and a body.
type BodyPayload struct {
	Status int `json:"status,omitempty"`
	Body   any `json:"body"`
}

// NewMessageID returns a timestamp message id for broadcasts.
func NewMessageID(now time.Time) string {
	return now.UTC().Format(msgIDLayout)
}

// aliveMessage is the health payload. alive=false is registered as the last will.
func aliveMessage(originName string, alive bool) []byte {
	data, _ := json.Marshal(Envelope{
		Header: Header{OriginID: originName},
		Payload: BodyPayload{
			Body: map[string]bool{"alive": alive},
		},
	})
	return data
}

// encodePayload serialises a publish payload. Strings and byte slices pass
// through unchanged; anything else is encoded as JSON.
func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(p)
	}
}
