// Package broker owns all live session and room state. A single goroutine
// consumes a request channel, so the session map, room map, and per-session
// working directories are mutated without locks.
package broker

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/http-ssh-server/backend/internal/model"
	"github.com/http-ssh-server/backend/internal/repository"
	"github.com/http-ssh-server/backend/internal/shell"
)

// Recipient is a session's outbound sink. Deliver must not block: it either
// enqueues the message or returns an error, which the broker logs and
// otherwise ignores.
type Recipient interface {
	Deliver(message []byte) error
}

type request interface{ isRequest() }

type connectRequest struct {
	id        uuid.UUID
	room      uuid.UUID
	recipient Recipient
	done      chan struct{}
}

type disconnectRequest struct {
	id   uuid.UUID
	room uuid.UUID
}

type clientMessageRequest struct {
	id   uuid.UUID
	room uuid.UUID
	raw  string
}

// executionDone carries a finished command result back onto the request
// channel, so result delivery is linearized like every other operation.
type executionDone struct {
	id     uuid.UUID
	room   uuid.UUID
	result shell.Result
}

type statsRequest struct {
	reply chan Stats
}

func (connectRequest) isRequest()       {}
func (disconnectRequest) isRequest()    {}
func (clientMessageRequest) isRequest() {}
func (executionDone) isRequest()        {}
func (statsRequest) isRequest()         {}

// Stats is a point-in-time snapshot of broker state, for operational
// introspection.
type Stats struct {
	Sessions int
	// RoomSizes maps each live room to its member count.
	RoomSizes map[uuid.UUID]int
}

// session is the broker-owned record for one live connection.
type session struct {
	recipient Recipient
	room      uuid.UUID

	// workdir is the session's current working directory, absolute and
	// canonicalized.
	workdir string

	// pending holds commands waiting behind the in-flight one. A session has
	// at most one command executing at a time, so its results come back in
	// the order the commands were issued.
	pending  []string
	inFlight bool
}

// queuedExec is a command the execution pool refused because its backlog was
// full. It waits on the broker until a worker frees a slot.
type queuedExec struct {
	id      uuid.UUID
	room    uuid.UUID
	command string
	workdir string
}

// Config holds broker configuration.
type Config struct {
	// StartDir is the initial working directory for every new session.
	// Defaults to the server process's working directory.
	StartDir string

	// ExecWorkers bounds how many commands run concurrently across all
	// sessions.
	ExecWorkers int
}

// Broker serializes every mutation of session and room state.
type Broker struct {
	requests chan request
	stopped  chan struct{}

	sessions map[uuid.UUID]*session
	rooms    map[uuid.UUID]map[uuid.UUID]struct{}

	executor *shell.Executor
	pool     *execPool
	overflow []queuedExec
	history  *repository.HistoryRepository
	startDir string
}

// New creates a Broker. history may be nil to disable command-history
// recording.
func New(executor *shell.Executor, history *repository.HistoryRepository, cfg Config) *Broker {
	startDir := cfg.StartDir
	if startDir == "" {
		if wd, err := os.Getwd(); err == nil {
			startDir = wd
		} else {
			startDir = "/"
		}
	}
	workers := cfg.ExecWorkers
	if workers <= 0 {
		workers = defaultExecWorkers
	}

	return &Broker{
		requests: make(chan request, 256),
		stopped:  make(chan struct{}),
		sessions: make(map[uuid.UUID]*session),
		rooms:    make(map[uuid.UUID]map[uuid.UUID]struct{}),
		executor: executor,
		pool:     newExecPool(workers),
		history:  history,
		startDir: startDir,
	}
}

// Run consumes requests until ctx is cancelled. It must be called exactly
// once, typically as `go b.Run(ctx)`.
func (b *Broker) Run(ctx context.Context) {
	// stopped must close before the pool drains: workers still finishing a
	// command report their result via submit, which bails out once stopped
	// is closed.
	defer b.pool.close()
	defer close(b.stopped)

	for {
		select {
		case req := <-b.requests:
			b.handle(req)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Broker) handle(req request) {
	switch r := req.(type) {
	case connectRequest:
		b.handleConnect(r)
	case disconnectRequest:
		b.handleDisconnect(r)
	case clientMessageRequest:
		b.handleClientMessage(r)
	case executionDone:
		b.handleExecutionDone(r)
	case statsRequest:
		sizes := make(map[uuid.UUID]int, len(b.rooms))
		for room, members := range b.rooms {
			sizes[room] = len(members)
		}
		r.reply <- Stats{Sessions: len(b.sessions), RoomSizes: sizes}
	}
}

// submit enqueues a request unless the broker has stopped.
func (b *Broker) submit(req request) error {
	select {
	case b.requests <- req:
		return nil
	case <-b.stopped:
		return model.ErrBrokerClosed
	}
}

// Connect registers a new session with its delivery handle and pushes the
// welcome message. It blocks until the broker has processed the registration
// so the caller knows the session is live before reading frames.
func (b *Broker) Connect(id, room uuid.UUID, recipient Recipient) error {
	done := make(chan struct{})
	if err := b.submit(connectRequest{id: id, room: room, recipient: recipient, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-b.stopped:
		return model.ErrBrokerClosed
	}
}

// Disconnect removes a session. Safe to call for ids the broker no longer
// knows; duplicate disconnects are no-ops.
func (b *Broker) Disconnect(id, room uuid.UUID) {
	if err := b.submit(disconnectRequest{id: id, room: room}); err != nil {
		log.Printf("broker: dropping disconnect for %s: %v", id, err)
	}
}

// Stats returns a snapshot of broker state.
func (b *Broker) Stats() (Stats, error) {
	reply := make(chan Stats, 1)
	if err := b.submit(statsRequest{reply: reply}); err != nil {
		return Stats{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-b.stopped:
		return Stats{}, model.ErrBrokerClosed
	}
}

// ClientMessage forwards a raw text frame from a session.
func (b *Broker) ClientMessage(id, room uuid.UUID, raw string) {
	if err := b.submit(clientMessageRequest{id: id, room: room, raw: raw}); err != nil {
		log.Printf("broker: dropping message from %s: %v", id, err)
	}
}

func (b *Broker) handleConnect(r connectRequest) {
	members, ok := b.rooms[r.room]
	if !ok {
		members = make(map[uuid.UUID]struct{})
		b.rooms[r.room] = members
	}
	members[r.id] = struct{}{}

	b.sessions[r.id] = &session{
		recipient: r.recipient,
		room:      r.room,
		workdir:   b.startDir,
	}

	welcome := fmt.Sprintf("Connected! Your session ID is %s", r.id)
	b.sendTo(r.id, model.NewSystemMessage(welcome, b.startDir))
	close(r.done)
}

func (b *Broker) handleDisconnect(r disconnectRequest) {
	if _, ok := b.sessions[r.id]; !ok {
		return
	}
	delete(b.sessions, r.id)

	if len(b.overflow) > 0 {
		kept := b.overflow[:0]
		for _, q := range b.overflow {
			if q.id != r.id {
				kept = append(kept, q)
			}
		}
		b.overflow = kept
	}

	if members, ok := b.rooms[r.room]; ok {
		delete(members, r.id)
		notice := []byte(fmt.Sprintf("%s disconnected.", r.id))
		for memberID := range members {
			b.sendTo(memberID, notice)
		}
		if len(members) == 0 {
			delete(b.rooms, r.room)
		}
	}
}

func (b *Broker) handleClientMessage(r clientMessageRequest) {
	sess, ok := b.sessions[r.id]
	if !ok {
		log.Printf("broker: message from unknown session %s", r.id)
		return
	}

	inbound := model.DecodeInbound(r.raw)
	switch inbound.Kind {
	case model.InboundCommand:
		if inbound.Command == "" {
			return
		}
		b.enqueueCommand(r.id, sess, inbound.Command)
	case model.InboundPing:
		b.sendTo(r.id, model.NewPong())
	case model.InboundPong, model.InboundUnrecognized:
		log.Printf("broker: received message type %q from %s", inbound.Type, r.id)
	case model.InboundLegacy:
		b.handleLegacy(r, sess)
	}
}

// handleLegacy implements the plain-text whisper/broadcast protocol.
func (b *Broker) handleLegacy(r clientMessageRequest, sess *session) {
	if target, ok := model.WhisperTarget(r.raw); ok {
		targetID, err := uuid.Parse(target)
		if err != nil {
			log.Printf("broker: whisper with unparseable target %q from %s", target, r.id)
			return
		}
		b.sendTo(targetID, []byte(r.raw))
		return
	}

	members, ok := b.rooms[sess.room]
	if !ok {
		return
	}
	raw := []byte(r.raw)
	for memberID := range members {
		b.sendTo(memberID, raw)
	}
}

// enqueueCommand dispatches a command through the execution pool, or queues
// it behind the session's in-flight command to keep per-session results in
// issue order.
func (b *Broker) enqueueCommand(id uuid.UUID, sess *session, command string) {
	if sess.inFlight {
		sess.pending = append(sess.pending, command)
		return
	}
	sess.inFlight = true
	b.dispatch(id, sess.room, command, sess.workdir)
}

// dispatch hands one command to the pool, or parks it on the overflow queue
// when every worker is busy and the pool backlog is full. The broker
// goroutine never blocks here; drainOverflow retries parked commands each
// time a worker frees a slot.
func (b *Broker) dispatch(id, room uuid.UUID, command, workdir string) {
	if !b.pool.trySubmit(b.execTask(id, room, command, workdir)) {
		b.overflow = append(b.overflow, queuedExec{id: id, room: room, command: command, workdir: workdir})
	}
}

// execTask builds the pool task for one command: execute, record, report the
// result back through the request channel. The worker blocks on the
// subprocess, never the broker goroutine.
func (b *Broker) execTask(id, room uuid.UUID, command, workdir string) func() {
	return func() {
		result := b.executor.Execute(command, workdir)
		// Recording happens on the worker so a slow write never occupies
		// the broker goroutine.
		b.record(id, room, result)
		if err := b.submit(executionDone{id: id, room: room, result: result}); err != nil {
			log.Printf("broker: dropping result for %s: %v", id, err)
		}
	}
}

// drainOverflow moves parked commands into the pool until it refuses again.
func (b *Broker) drainOverflow() {
	for len(b.overflow) > 0 {
		next := b.overflow[0]
		if !b.pool.trySubmit(b.execTask(next.id, next.room, next.command, next.workdir)) {
			return
		}
		b.overflow = b.overflow[1:]
	}
}

func (b *Broker) handleExecutionDone(r executionDone) {
	// A worker just freed a slot.
	b.drainOverflow()

	sess, ok := b.sessions[r.id]
	if !ok {
		// Session went away while the command ran.
		log.Printf("broker: discarding result for disconnected session %s", r.id)
		return
	}

	sess.workdir = r.result.Dir
	b.sendTo(r.id, model.NewCommandOutput(model.CommandOutput{
		Command:          r.result.Command,
		Stdout:           r.result.Stdout,
		Stderr:           r.result.Stderr,
		ExitCode:         r.result.ExitCode,
		CurrentDirectory: r.result.Dir,
	}))

	if len(sess.pending) > 0 {
		next := sess.pending[0]
		sess.pending = sess.pending[1:]
		b.dispatch(r.id, r.room, next, sess.workdir)
	} else {
		sess.inFlight = false
	}
}

// record persists the command outcome, best-effort. Called from execution
// workers, never from the broker goroutine.
func (b *Broker) record(id, room uuid.UUID, result shell.Result) {
	if b.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rec := &repository.CommandRecord{
		SessionID:  id.String(),
		RoomID:     room.String(),
		Command:    result.Command,
		ExitCode:   result.ExitCode,
		WorkingDir: result.Dir,
		ExecutedAt: time.Now().UTC(),
	}
	if err := b.history.Insert(ctx, rec); err != nil {
		log.Printf("broker: failed to record command history: %v", err)
	}
}

// sendTo pushes a message to one session. A stale or missing recipient is a
// log line, never a fault.
func (b *Broker) sendTo(id uuid.UUID, message []byte) {
	sess, ok := b.sessions[id]
	if !ok {
		log.Printf("broker: attempting to send message but couldn't find session %s", id)
		return
	}
	if err := sess.recipient.Deliver(message); err != nil {
		log.Printf("broker: failed to deliver to %s: %v", id, err)
	}
}
