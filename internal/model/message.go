// Package model defines the wire envelope and shared domain types.
package model

import (
	"encoding/json"
	"strings"
	"time"
)

// MessageType represents the type of a WebSocket envelope.
type MessageType string

const (
	// Client -> Server message types
	MessageTypeCommand MessageType = "command"
	MessageTypePing    MessageType = "ping"
	MessageTypePong    MessageType = "pong"

	// Server -> Client message types
	MessageTypeCommandOutput MessageType = "command_output"
	MessageTypeSystemMessage MessageType = "system_message"
)

// WhisperPrefix marks a legacy plain-text message addressed to a single
// session: `\w <targetSessionId> <text>`.
const WhisperPrefix = `\w`

// InboundKind identifies the decoded variant of an inbound text frame.
type InboundKind int

const (
	// InboundLegacy is any frame that is not a JSON envelope. It is handled
	// by the legacy whisper/broadcast protocol.
	InboundLegacy InboundKind = iota
	InboundCommand
	InboundPing
	InboundPong
	// InboundUnrecognized is a JSON envelope with a type the broker does not
	// handle. It is logged and dropped.
	InboundUnrecognized
)

// Inbound is the decoded form of an inbound text frame.
type Inbound struct {
	Kind    InboundKind
	Type    MessageType
	Command string
}

type inboundEnvelope struct {
	Type    MessageType `json:"type"`
	Payload struct {
		Command string `json:"command"`
	} `json:"payload"`
}

// DecodeInbound classifies a raw text frame into one of the closed set of
// inbound variants. Frames that do not parse as a JSON envelope, or parse
// without a type field, fall back to the legacy text protocol.
func DecodeInbound(raw string) Inbound {
	var env inboundEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || env.Type == "" {
		return Inbound{Kind: InboundLegacy}
	}

	switch env.Type {
	case MessageTypeCommand:
		return Inbound{Kind: InboundCommand, Type: env.Type, Command: env.Payload.Command}
	case MessageTypePing:
		return Inbound{Kind: InboundPing, Type: env.Type}
	case MessageTypePong:
		return Inbound{Kind: InboundPong, Type: env.Type}
	default:
		return Inbound{Kind: InboundUnrecognized, Type: env.Type}
	}
}

// WhisperTarget extracts the target session id from a legacy whisper message.
// Returns false if the message is not a whisper.
func WhisperTarget(raw string) (string, bool) {
	if !strings.HasPrefix(raw, WhisperPrefix) {
		return "", false
	}
	parts := strings.Split(raw, " ")
	if len(parts) < 2 {
		return "", false
	}
	return parts[1], true
}

// CommandOutput is the payload of a command_output envelope.
type CommandOutput struct {
	Command          string `json:"command"`
	Stdout           string `json:"stdout"`
	Stderr           string `json:"stderr"`
	ExitCode         int    `json:"exitCode"`
	CurrentDirectory string `json:"currentDirectory"`
}

// SystemMessage is the payload of a system_message envelope, sent once on
// connection.
type SystemMessage struct {
	Message          string `json:"message"`
	Timestamp        string `json:"timestamp"`
	CurrentDirectory string `json:"currentDirectory"`
}

// PongPayload is the payload of the broker's pong reply to an application
// ping.
type PongPayload struct {
	Timestamp string `json:"timestamp"`
}

type outboundEnvelope struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}

// ServerPing is the actor-level keepalive envelope. Unlike the payload-style
// envelopes it carries its fields at the top level, matching what clients
// expect.
type ServerPing struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
	ServerID  string      `json:"server_id"`
}

// NewCommandOutput encodes a command_output envelope.
func NewCommandOutput(out CommandOutput) []byte {
	return mustEncode(outboundEnvelope{Type: MessageTypeCommandOutput, Payload: out})
}

// NewSystemMessage encodes a system_message envelope.
func NewSystemMessage(message, currentDirectory string) []byte {
	return mustEncode(outboundEnvelope{
		Type: MessageTypeSystemMessage,
		Payload: SystemMessage{
			Message:          message,
			Timestamp:        time.Now().UTC().Format(time.RFC3339),
			CurrentDirectory: currentDirectory,
		},
	})
}

// NewPong encodes the broker's pong reply.
func NewPong() []byte {
	return mustEncode(outboundEnvelope{
		Type:    MessageTypePong,
		Payload: PongPayload{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

// NewServerPing encodes the keepalive ping pushed by the session actor.
func NewServerPing(serverID string) []byte {
	return mustEncode(ServerPing{
		Type:      MessageTypePing,
		Timestamp: time.Now().Unix(),
		ServerID:  serverID,
	})
}

// NewServerPong encodes the session actor's direct reply to an application
// ping. Same top-level shape as the keepalive ping.
func NewServerPong(serverID string) []byte {
	return mustEncode(ServerPing{
		Type:      MessageTypePong,
		Timestamp: time.Now().Unix(),
		ServerID:  serverID,
	})
}

func mustEncode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// All envelope payloads are plain structs; marshal cannot fail.
		panic(err)
	}
	return data
}
