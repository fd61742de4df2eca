package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/thirdumpire/crease/internal/events"
)

// Envelope is the wire format for frames sent over the subscription
// WebSocket. Seq is the match's event-log sequence at the moment the
// frame was produced; subscribers hand it back as ?resume_from= after a
// reconnect.
type Envelope struct {
	Type      string          `json:"type"`
	MatchID   string          `json:"matchId"`
	Seq       int64           `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// MarshalEvent serializes a bus event into a JSON-encoded Envelope.
func MarshalEvent(evt events.Event) ([]byte, error) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{
		Type:      string(evt.Type),
		MatchID:   evt.MatchID,
		Seq:       evt.Seq,
		Timestamp: evt.Timestamp,
		Data:      payload,
	}
	return json.Marshal(env)
}
