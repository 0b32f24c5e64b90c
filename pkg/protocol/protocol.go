// Package protocol defines the JSON frame envelope spoken over the
// collaboration websocket. Document update payloads are opaque bytes owned by
// the client-side CRDT engine; the envelope only carries them.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

const (
	// client -> server
	TypeHandshake = "handshake"
	TypeUpdate    = "update"

	// server -> client
	TypeHandshakeAck = "handshake_ack"
	TypeSync         = "sync"
)

var ErrMalformedFrame = errors.New("malformed protocol frame")

// Message is one wire frame. Doc is set on handshake frames only; Update on
// update frames; Updates on sync frames.
type Message struct {
	Type    string   `json:"type"`
	Doc     string   `json:"doc,omitempty"`
	Update  string   `json:"update,omitempty"`
	Updates []string `json:"updates,omitempty"`
}

// Decode parses an inbound frame. The type field is sniffed first so a
// garbage frame is rejected before any payload decoding happens.
func Decode(raw []byte) (*Message, error) {
	typ := gjson.GetBytes(raw, "type")
	if !typ.Exists() || typ.Type != gjson.String {
		return nil, ErrMalformedFrame
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return &msg, nil
}

// UpdatePayload decodes the opaque update bytes carried by an update frame.
func (m *Message) UpdatePayload() ([]byte, error) {
	payload, err := base64.StdEncoding.DecodeString(m.Update)
	if err != nil {
		return nil, fmt.Errorf("%w: bad update encoding", ErrMalformedFrame)
	}
	return payload, nil
}

func encode(m Message) []byte {
	raw, err := json.Marshal(m)
	if err != nil {
		// Message contains only strings; marshalling cannot fail.
		panic(err)
	}
	return raw
}

// EncodeUpdate wraps a merged delta for broadcast to peers.
func EncodeUpdate(update []byte) []byte {
	return encode(Message{
		Type:   TypeUpdate,
		Update: base64.StdEncoding.EncodeToString(update),
	})
}

// EncodeHandshakeAck acknowledges a completed handshake.
func EncodeHandshakeAck() []byte {
	return encode(Message{Type: TypeHandshakeAck})
}

// EncodeSync carries the room's full document state to a late joiner.
func EncodeSync(updates [][]byte) []byte {
	encoded := make([]string, len(updates))
	for i, u := range updates {
		encoded[i] = base64.StdEncoding.EncodeToString(u)
	}
	return encode(Message{Type: TypeSync, Updates: encoded})
}
