package command

import (
	"encoding/json"
	"maps"
	"strings"

	"github.com/tidwall/gjson"
)

// Keep-alive literals exchanged on the command socket.
const (
	Ping = "PING"
	Pong = "PONG"
)

// FieldCommand is the field carrying the command name.
const FieldCommand = "command"

// Kind tells how a command arrived on the wire.
type Kind int

const (
	KindRaw Kind = iota
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindStructured:
		return "structured"
	default:
		return "unknown"
	}
}

// Command is a push command: either a structured JSON object or a raw string.
type Command struct {
	kind   Kind
	raw    string
	fields map[string]any
}

// Raw wraps a plain-text command.
func Raw(text string) Command {
	return Command{kind: KindRaw, raw: text}
}

// Structured wraps a decoded JSON object. The map is copied.
func Structured(fields map[string]any) Command {
	return Command{kind: KindStructured, fields: maps.Clone(fields)}
}

// Kind returns how the command arrived.
func (c Command) Kind() Kind { return c.kind }

// Name returns the command name.
func (c Command) Name() string {
	if c.kind == KindRaw {
		return c.raw
	}
	name, _ := c.fields[FieldCommand].(string)
	return name
}

// Fields returns the payload handed to sessions. Raw commands become
// {"command": text}; structured commands keep every field.
func (c Command) Fields() map[string]any {
	if c.kind == KindRaw {
		return map[string]any{FieldCommand: c.raw}
	}
	return maps.Clone(c.fields)
}

// MarshalJSON encodes the unified payload.
func (c Command) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Fields())
}

// FrameKind classifies an inbound text frame.
type FrameKind int

const (
	FrameEmpty FrameKind = iota
	FramePong
	FrameCommand
)

// Classify decides what an inbound frame is. Only FrameCommand carries a
// usable Command. Malformed JSON is never an error: it falls back to a raw
// command.
func Classify(frame []byte) (Command, FrameKind) {
	if len(frame) == 0 {
		return Command{}, FrameEmpty
	}
	text := string(frame)
	if text == Pong {
		return Command{}, FramePong
	}
	if fields, ok := parseObject(text); ok {
		return Command{kind: KindStructured, fields: fields}, FrameCommand
	}
	return Raw(text), FrameCommand
}

// parseObject returns the fields of a JSON object carrying a non-empty
// string command. Arrays and scalars are rejected.
func parseObject(text string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || !gjson.Valid(trimmed) {
		return nil, false
	}

	result := gjson.Parse(trimmed)
	if !result.IsObject() {
		return nil, false
	}

	fields, ok := result.Value().(map[string]any)
	if !ok {
		return nil, false
	}

	// Checked on the decoded map so a repeated key resolves the same way
	// for validation and dispatch.
	if name, _ := fields[FieldCommand].(string); name == "" {
		return nil, false
	}
	return fields, true
}

// Encode builds the JSON frame a server sends for a named command with
// extra fields. The name always wins over a "command" key in payload.
func Encode(name string, payload map[string]any) ([]byte, error) {
	data := make(map[string]any, len(payload)+1)
	maps.Copy(data, payload)
	data[FieldCommand] = name
	return json.Marshal(data)
}
