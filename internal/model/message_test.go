package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInboundCommand(t *testing.T) {
	in := DecodeInbound(`{"type":"command","payload":{"command":"echo hi"}}`)

	assert.Equal(t, InboundCommand, in.Kind)
	assert.Equal(t, "echo hi", in.Command)
}

func TestDecodeInboundCommandEmpty(t *testing.T) {
	in := DecodeInbound(`{"type":"command","payload":{}}`)

	assert.Equal(t, InboundCommand, in.Kind)
	assert.Equal(t, "", in.Command)
}

func TestDecodeInboundPingPong(t *testing.T) {
	assert.Equal(t, InboundPing, DecodeInbound(`{"type":"ping"}`).Kind)
	assert.Equal(t, InboundPing, DecodeInbound(`{"type":"ping","timestamp":123}`).Kind)
	assert.Equal(t, InboundPong, DecodeInbound(`{"type":"pong","timestamp":123}`).Kind)
}

func TestDecodeInboundUnrecognized(t *testing.T) {
	in := DecodeInbound(`{"type":"resize","payload":{"rows":40}}`)

	assert.Equal(t, InboundUnrecognized, in.Kind)
	assert.Equal(t, MessageType("resize"), in.Type)
}

func TestDecodeInboundLegacy(t *testing.T) {
	assert.Equal(t, InboundLegacy, DecodeInbound("hello everyone").Kind)
	assert.Equal(t, InboundLegacy, DecodeInbound(`\w abc secret`).Kind)
	// JSON without a type field falls back to the legacy protocol too.
	assert.Equal(t, InboundLegacy, DecodeInbound(`{"payload":{"command":"ls"}}`).Kind)
	assert.Equal(t, InboundLegacy, DecodeInbound(`42`).Kind)
	assert.Equal(t, InboundLegacy, DecodeInbound(``).Kind)
}

func TestWhisperTarget(t *testing.T) {
	target, ok := WhisperTarget(`\w 9b2d6b3c-8f62-4a1e-94a5-0e9a3c3c7a10 secret`)
	require.True(t, ok)
	assert.Equal(t, "9b2d6b3c-8f62-4a1e-94a5-0e9a3c3c7a10", target)

	_, ok = WhisperTarget("hello everyone")
	assert.False(t, ok)

	_, ok = WhisperTarget(`\w`)
	assert.False(t, ok)
}

func TestNewCommandOutputShape(t *testing.T) {
	data := NewCommandOutput(CommandOutput{
		Command:          "cd /tmp",
		ExitCode:         0,
		CurrentDirectory: "/tmp",
	})

	var decoded struct {
		Type    string `json:"type"`
		Payload struct {
			Command          string `json:"command"`
			Stdout           string `json:"stdout"`
			Stderr           string `json:"stderr"`
			ExitCode         int    `json:"exitCode"`
			CurrentDirectory string `json:"currentDirectory"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "command_output", decoded.Type)
	assert.Equal(t, "cd /tmp", decoded.Payload.Command)
	assert.Equal(t, "", decoded.Payload.Stdout)
	assert.Equal(t, "", decoded.Payload.Stderr)
	assert.Equal(t, 0, decoded.Payload.ExitCode)
	assert.Equal(t, "/tmp", decoded.Payload.CurrentDirectory)
}

func TestNewSystemMessageShape(t *testing.T) {
	data := NewSystemMessage("Connected!", "/srv")

	var decoded struct {
		Type    string `json:"type"`
		Payload struct {
			Message          string `json:"message"`
			Timestamp        string `json:"timestamp"`
			CurrentDirectory string `json:"currentDirectory"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "system_message", decoded.Type)
	assert.Equal(t, "Connected!", decoded.Payload.Message)
	assert.NotEmpty(t, decoded.Payload.Timestamp)
	assert.Equal(t, "/srv", decoded.Payload.CurrentDirectory)
}

func TestNewServerPingShape(t *testing.T) {
	data := NewServerPing("http-ssh-server")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	// Keepalive pings carry their fields at the top level, not in a payload.
	assert.Equal(t, "ping", decoded["type"])
	assert.Equal(t, "http-ssh-server", decoded["server_id"])
	assert.Contains(t, decoded, "timestamp")
	assert.NotContains(t, decoded, "payload")
}

func TestNewPongShape(t *testing.T) {
	data := NewPong()

	var decoded struct {
		Type    string `json:"type"`
		Payload struct {
			Timestamp string `json:"timestamp"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "pong", decoded.Type)
	assert.NotEmpty(t, decoded.Payload.Timestamp)
}
