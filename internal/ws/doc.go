// Package ws runs one session actor per WebSocket connection.
//
// The package implements:
//   - Conn: one live session; owns the read and write pumps
//   - heartbeat liveness: transport and application pings refresh a
//     timestamp checked on a short interval
//   - keepalive: a periodic application-level ping pushed to the peer
//
// Conn decodes inbound frames just far enough to answer ping/pong locally;
// everything else is forwarded verbatim to the broker, and broker-originated
// messages are written back out as text frames.
package ws
