// Package command defines the commands a push server delivers over the
// command socket and how raw frames are classified into them.
//
// Two inbound shapes exist on the wire:
//   - a JSON object with a non-empty string "command" field, kept whole
//   - anything else (plain text, arrays, scalars), kept as the command name
//
// Both are unified into Command before reaching a session.
package command
