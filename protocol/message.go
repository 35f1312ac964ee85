/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package protocol encodes and decodes the two messages participants exchange
// over the relay: presence announcements and driver handoffs.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	TypeNotify = "notify"
	TypeSwitch = "switch"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// Kind identifies which message a Message carries.
type Kind int

const (
	KindNotify Kind = iota + 1
	KindSwitch
)

func (k Kind) String() string {
	switch k {
	case KindNotify:
		return TypeNotify
	case KindSwitch:
		return TypeSwitch
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is a decoded relay message.
//
// For KindNotify, ID is the announcing participant and Master reports whether
// it currently drives the character. For KindSwitch, ID is the participant
// being handed the driver role and Master is unused.
type Message struct {
	Kind   Kind
	ID     string
	Master bool
}

func Notify(id string, master bool) Message {
	return Message{Kind: KindNotify, ID: id, Master: master}
}

func Switch(id string) Message {
	return Message{Kind: KindSwitch, ID: id}
}

type notifyWire struct {
	Type   string `json:"type"`   // "notify"
	ID     string `json:"id"`     // announcing participant
	Master bool   `json:"master"` // announcer is driving
}

type switchWire struct {
	Type string `json:"type"` // "switch"
	ID   string `json:"id"`   // next driver
}

// inbound is permissive on purpose so missing fields can be told apart from
// zero values.
type inbound struct {
	Type   *string `json:"type"`
	ID     *string `json:"id"`
	Master *bool   `json:"master"`
}

// Encode renders m in its JSON wire form.
func Encode(m Message) ([]byte, error) {
	if m.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrMalformed)
	}

	switch m.Kind {
	case KindNotify:
		return json.Marshal(notifyWire{Type: TypeNotify, ID: m.ID, Master: m.Master})
	case KindSwitch:
		return json.Marshal(switchWire{Type: TypeSwitch, ID: m.ID})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, m.Kind)
	}
}

// Decode parses a wire message. Anything that is not valid JSON, lacks a
// required field or carries an unrecognised type returns an error wrapping
// ErrMalformed or ErrUnknownType; callers drop such frames.
func Decode(data []byte) (Message, error) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if in.Type == nil {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if in.ID == nil || *in.ID == "" {
		return Message{}, fmt.Errorf("%w: missing id", ErrMalformed)
	}

	switch *in.Type {
	case TypeNotify:
		if in.Master == nil {
			return Message{}, fmt.Errorf("%w: missing master", ErrMalformed)
		}
		return Notify(*in.ID, *in.Master), nil
	case TypeSwitch:
		return Switch(*in.ID), nil
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, *in.Type)
	}
}
