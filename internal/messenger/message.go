package messenger

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrUnknownKind is returned when a message carries a type tag outside the union.
var ErrUnknownKind = errors.New("unknown message type")

// Kind tags every application message.
type Kind string

// Application message kinds.
const (
	KindChat         Kind = "chat"
	KindStroke       Kind = "wb"
	KindErase        Kind = "erase"
	KindShape        Kind = "shape"
	KindText         Kind = "text"
	KindClear        Kind = "clear"
	KindRequestState Kind = "request-state"
	KindFullState    Kind = "full-state"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindChat, KindStroke, KindErase, KindShape, KindText, KindClear, KindRequestState, KindFullState:
		return true
	}
	return false
}

// Point is a surface coordinate.
type Point struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Properties is the drawing style attached to an action.
type Properties struct {
	Color     string  `json:"color,omitempty" msgpack:"color,omitempty"`
	Thickness float64 `json:"thickness,omitempty" msgpack:"thickness,omitempty"`
	Opacity   float64 `json:"opacity,omitempty" msgpack:"opacity,omitempty"`
	FontSize  float64 `json:"fontSize,omitempty" msgpack:"fontSize,omitempty"`
	Underline bool    `json:"underline,omitempty" msgpack:"underline,omitempty"`
}

// Action is the serialized form of one whiteboard operation.
type Action struct {
	Type Kind `json:"type" msgpack:"type"`

	// wb
	Stroke []Point `json:"stroke,omitempty" msgpack:"stroke,omitempty"`
	Tool   string  `json:"toolType,omitempty" msgpack:"toolType,omitempty"`

	// shape
	Shape  string `json:"shape,omitempty" msgpack:"shape,omitempty"`
	A      *Point `json:"a,omitempty" msgpack:"a,omitempty"`
	B      *Point `json:"b,omitempty" msgpack:"b,omitempty"`
	Filled bool   `json:"filled,omitempty" msgpack:"filled,omitempty"`

	// erase, text
	X float64 `json:"x,omitempty" msgpack:"x,omitempty"`
	Y float64 `json:"y,omitempty" msgpack:"y,omitempty"`
	R float64 `json:"r,omitempty" msgpack:"r,omitempty"`

	// text, chat
	Text string `json:"text,omitempty" msgpack:"text,omitempty"`

	Properties *Properties `json:"properties,omitempty" msgpack:"properties,omitempty"`
}

// Message is one application message, identical on both transports.
type Message struct {
	Action `msgpack:",inline"`

	// From is the sender's connection id, filled in on receipt.
	From string `json:"from,omitempty" msgpack:"from,omitempty"`

	// Name is the chat display name.
	Name string `json:"name,omitempty" msgpack:"name,omitempty"`

	// Data holds the operations of a full-state message.
	Data []Action `json:"data,omitempty" msgpack:"data,omitempty"`

	// Page and Pages split a large full-state over several messages.
	// Page counts from zero; Pages of zero means a single message.
	Page  int `json:"page,omitempty" msgpack:"page,omitempty"`
	Pages int `json:"pages,omitempty" msgpack:"pages,omitempty"`
}

// NewChat builds a chat message.
func NewChat(name, text string) Message {
	return Message{Action: Action{Type: KindChat, Text: text}, Name: name}
}

func validate(m Message) (Message, error) {
	if !m.Type.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, m.Type)
	}
	return m, nil
}

// EncodeDirect serializes m for the data channel.
func EncodeDirect(m Message) ([]byte, error) {
	return msgpack.Marshal(&m)
}

// DecodeDirect parses a data channel frame.
func DecodeDirect(b []byte) (Message, error) {
	var m Message
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("decode direct message: %w", err)
	}
	return validate(m)
}

// EncodeFallback serializes m as a wb-fallback payload.
func EncodeFallback(m Message) (json.RawMessage, error) {
	return json.Marshal(m)
}

// DecodeFallback parses a wb-fallback payload.
func DecodeFallback(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("decode fallback message: %w", err)
	}
	return validate(m)
}
