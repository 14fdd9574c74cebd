package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrProtocol marks an inbound frame that is not structured data or
	// carries no recognized type tag. The frame is dropped.
	ErrProtocol = errors.New("protocol: malformed frame")
	// ErrSerialization marks an outbound message that cannot be encoded.
	// The send is abandoned.
	ErrSerialization = errors.New("protocol: unencodable message")
)

// Envelope is one decoded inbound frame: its header plus the raw JSON object
// for kind-specific binding.
type Envelope struct {
	Header
	Raw json.RawMessage
}

// Bind decodes the envelope body into m.
//
// Precondition: m is a pointer whose Kind matches e.Type.
// Postcondition: m holds the frame's fields, absent fields left at their zero value.
func (e Envelope) Bind(m Message) error {
	if m.Kind() != e.Type {
		return fmt.Errorf("%w: cannot bind %s frame to %s", ErrProtocol, e.Type, m.Kind())
	}
	if err := json.Unmarshal(e.Raw, m); err != nil {
		return fmt.Errorf("%w: binding %s: %v", ErrProtocol, e.Type, err)
	}
	return nil
}

// Stamper assigns the per-send metadata of an outbound message.
type Stamper struct {
	now   func() time.Time
	newID func() string
}

// NewStamper returns a Stamper using UTC wall time and random UUIDs.
func NewStamper() *Stamper {
	return &Stamper{
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
}

// Stamp overwrites m's type, id, created and sender fields.
//
// Postcondition: m carries a fresh id and the current UTC epoch second.
func (s *Stamper) Stamp(m Message, sender string) {
	h := m.header()
	h.Type = m.Kind()
	h.ID = s.newID()
	h.Created = s.now().Unix()
	h.Sender = sender
}

// Encode serializes m as one JSON text frame. The type tag is always taken
// from m.Kind().
func Encode(m Message) ([]byte, error) {
	m.header().Type = m.Kind()
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSerialization, m.Kind(), err)
	}
	return data, nil
}

// Decode parses one inbound frame.
//
// Postcondition: returns an Envelope with a known Type, or an error wrapping ErrProtocol.
func Decode(data []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, fmt.Errorf("%w: not a JSON object", ErrProtocol)
	}
	var head struct {
		Type    *MessageType `json:"type"`
		ID      string       `json:"id"`
		Created int64        `json:"created"`
		Sender  string       `json:"sender"`
	}
	if err := json.Unmarshal(trimmed, &head); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if head.Type == nil {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrProtocol)
	}
	if !head.Type.Known() {
		return Envelope{}, fmt.Errorf("%w: unknown type %s", ErrProtocol, *head.Type)
	}
	raw := make(json.RawMessage, len(trimmed))
	copy(raw, trimmed)
	return Envelope{
		Header: Header{
			Type:    *head.Type,
			ID:      head.ID,
			Created: head.Created,
			Sender:  head.Sender,
		},
		Raw: raw,
	}, nil
}

// Summary renders m for logs, eliding bulk import bodies.
func Summary(m Message) string {
	if m.Kind() == TypeImportRecords {
		return "import records request"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return m.Kind().String()
	}
	return string(data)
}
