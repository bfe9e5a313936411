// Package protocol defines the JSON envelope exchanged with clients and
// validates inbound frames.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind tags the payload carried by an Envelope.
type Kind string

const (
	KindInitWorld   Kind = "init_world"
	KindUpdateVoxel Kind = "update_voxel"
	KindUserJoined  Kind = "user_joined"
	KindUserLeft    Kind = "user_left"
)

// Payload is implemented only by the message types in this package.
type Payload interface {
	kind() Kind
}

// Envelope is the top-level frame: {"type": ..., "payload": {...}}.
type Envelope struct {
	Type    Kind    `json:"type"`
	Payload Payload `json:"payload"`
}

// InitWorld is sent once to a newly connected client.
type InitWorld struct {
	World       [][][]int `json:"world"`
	ClientID    int       `json:"clientId"`
	ClientColor string    `json:"clientColor"`
}

// UpdateVoxel announces an accepted edit. Clients send it without the
// attribution fields.
type UpdateVoxel struct {
	Pos         [3]int `json:"pos"`
	BlockType   int    `json:"blockType"`
	ClientID    int    `json:"clientId"`
	ClientColor string `json:"clientColor"`
}

// ClientInfo is one roster entry.
type ClientInfo struct {
	ID    int    `json:"id"`
	Color string `json:"color"`
	IP    string `json:"ip,omitempty"`
}

// UserJoined announces a new session together with the full roster.
type UserJoined struct {
	ClientID int          `json:"clientId"`
	Clients  []ClientInfo `json:"clients"`
}

// UserLeft announces a departed session.
type UserLeft struct {
	ClientID int `json:"clientId"`
}

func (InitWorld) kind() Kind   { return KindInitWorld }
func (UpdateVoxel) kind() Kind { return KindUpdateVoxel }
func (UserJoined) kind() Kind  { return KindUserJoined }
func (UserLeft) kind() Kind    { return KindUserLeft }

// Wrap builds an Envelope whose Type matches p.
func Wrap(p Payload) Envelope {
	return Envelope{Type: p.kind(), Payload: p}
}

// NewInitWorld builds an init_world envelope.
func NewInitWorld(world [][][]int, clientID int, clientColor string) Envelope {
	return Wrap(InitWorld{World: world, ClientID: clientID, ClientColor: clientColor})
}

// NewUpdateVoxel builds an attributed update_voxel envelope.
func NewUpdateVoxel(pos [3]int, blockType, clientID int, clientColor string) Envelope {
	return Wrap(UpdateVoxel{Pos: pos, BlockType: blockType, ClientID: clientID, ClientColor: clientColor})
}

// NewUserJoined builds a user_joined envelope.
func NewUserJoined(clientID int, clients []ClientInfo) Envelope {
	if clients == nil {
		clients = []ClientInfo{}
	}
	return Wrap(UserJoined{ClientID: clientID, Clients: clients})
}

// NewUserLeft builds a user_left envelope.
func NewUserLeft(clientID int) Envelope {
	return Wrap(UserLeft{ClientID: clientID})
}

// Encode serializes env to a JSON text frame.
//
// Precondition: env.Payload must be non-nil and env.Type must match it.
func Encode(env Envelope) ([]byte, error) {
	if env.Payload == nil {
		return nil, fmt.Errorf("encoding %q: nil payload", env.Type)
	}
	if env.Type != env.Payload.kind() {
		return nil, fmt.Errorf("encoding %q: payload is %q", env.Type, env.Payload.kind())
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding %q: %w", env.Type, err)
	}
	return b, nil
}

type rawEnvelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses any server-to-client frame into its typed Envelope.
//
// Postcondition: Returns an error wrapping ErrMalformedMessage for unknown
// kinds or payloads that do not match their kind.
func Decode(data []byte) (Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	var p Payload
	var err error
	switch raw.Type {
	case KindInitWorld:
		var v InitWorld
		err = json.Unmarshal(raw.Payload, &v)
		p = v
	case KindUpdateVoxel:
		var v UpdateVoxel
		err = json.Unmarshal(raw.Payload, &v)
		p = v
	case KindUserJoined:
		var v UserJoined
		err = json.Unmarshal(raw.Payload, &v)
		p = v
	case KindUserLeft:
		var v UserLeft
		err = json.Unmarshal(raw.Payload, &v)
		p = v
	default:
		return Envelope{}, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, raw.Type)
	}
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %s payload: %v", ErrMalformedMessage, raw.Type, err)
	}
	return Envelope{Type: raw.Type, Payload: p}, nil
}
