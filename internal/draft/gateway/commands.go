package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/courtvision/draftroom/internal/draft/coordinator"
	"github.com/courtvision/draftroom/internal/draft/engine"
	"github.com/courtvision/draftroom/internal/draft/events"
)

// DraftService is the slice of the coordinator the gateway needs to route
// client commands. Satisfied by *coordinator.Coordinator.
type DraftService interface {
	Room(draftID uuid.UUID) (*coordinator.Room, bool)
}

// Client command types. Everything a connected participant can do mid-draft
// arrives through these; administrative operations (configure, start, reset)
// stay on the HTTP surface.
const (
	CommandJoin            = "join"
	CommandLeave           = "leave"
	CommandSubmitPick      = "submit_pick"
	CommandRequestAutopick = "request_autopick"
	CommandQueueAdd        = "queue_add"
	CommandQueueRemove     = "queue_remove"
	CommandQueueReorder    = "queue_reorder"
)

// clientCommand is the inbound message shape. Fields beyond Type are
// interpreted per command; unused ones are simply ignored.
type clientCommand struct {
	Type          string    `json:"type"`
	DraftID       uuid.UUID `json:"draft_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	PlayerID      uuid.UUID `json:"player_id"`
	Position      int       `json:"position"`
}

type errorReply struct {
	Command string `json:"command"`
	Reason  string `json:"reason"`
}

type queueReply struct {
	ParticipantID uuid.UUID   `json:"participant_id"`
	PlayerIDs     []uuid.UUID `json:"player_ids"`
}

// CommandDispatcher routes parsed client commands to the owning draft room.
// Error replies and queue acks go only to the originating connection;
// everything state-changing is broadcast by the room itself.
type CommandDispatcher struct {
	service DraftService
	manager *ConnectionManager
}

// NewCommandDispatcher creates a dispatcher backed by the given draft
// service and connection manager.
func NewCommandDispatcher(service DraftService, manager *ConnectionManager) *CommandDispatcher {
	return &CommandDispatcher{service: service, manager: manager}
}

// Dispatch parses one inbound frame and executes it. Called from the
// connection's read pump, so it must not block on room broadcasts.
func (d *CommandDispatcher) Dispatch(c *Connection, raw []byte) {
	var cmd clientCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		d.replyError(c, "", "malformed command")
		return
	}

	switch cmd.Type {
	case CommandJoin:
		d.handleJoin(c, cmd)
	case CommandLeave:
		d.manager.leaveRoom(c)
	case CommandSubmitPick:
		d.handleSubmitPick(c, cmd)
	case CommandRequestAutopick:
		d.handleRequestAutopick(c, cmd)
	case CommandQueueAdd, CommandQueueRemove, CommandQueueReorder:
		d.handleQueue(c, cmd)
	default:
		d.replyError(c, cmd.Type, "unknown command")
	}
}

// handleJoin subscribes the connection to a draft room and pushes the full
// snapshot, so a reconnecting client resyncs without any replay. The
// snapshot rides the broadcast channel so it cannot land behind a newer
// room fanout.
func (d *CommandDispatcher) handleJoin(c *Connection, cmd clientCommand) {
	room, ok := d.service.Room(cmd.DraftID)
	if !ok {
		d.replyError(c, cmd.Type, "unknown draft")
		return
	}
	if cmd.ParticipantID == uuid.Nil {
		d.replyError(c, cmd.Type, "participant_id is required")
		return
	}

	d.manager.joinRoom(c, cmd.DraftID, cmd.ParticipantID)

	room.SyncSnapshot(func(snap events.Snapshot) {
		ev, err := events.New(cmd.DraftID, events.EventTypeDraftSnapshot, time.Now(), snap)
		if err != nil {
			log.Error().Err(err).Str("draft_id", cmd.DraftID.String()).Msg("failed to build join snapshot")
			return
		}
		data, err := json.Marshal(ev)
		if err != nil {
			log.Error().Err(err).Str("draft_id", cmd.DraftID.String()).Msg("failed to marshal join snapshot")
			return
		}
		d.manager.queueDirect(c, cmd.DraftID, data)
	})
}

func (d *CommandDispatcher) handleSubmitPick(c *Connection, cmd clientCommand) {
	room, participantID, ok := d.roomFor(c, cmd)
	if !ok {
		return
	}
	if cmd.PlayerID == uuid.Nil {
		d.replyError(c, cmd.Type, "player_id is required")
		return
	}
	if err := room.SubmitPick(context.Background(), participantID, cmd.PlayerID); err != nil {
		d.replyError(c, cmd.Type, reasonFor(err))
	}
}

func (d *CommandDispatcher) handleRequestAutopick(c *Connection, cmd clientCommand) {
	room, participantID, ok := d.roomFor(c, cmd)
	if !ok {
		return
	}
	if err := room.RequestAutopick(context.Background(), participantID); err != nil {
		d.replyError(c, cmd.Type, reasonFor(err))
	}
}

// handleQueue mutates the participant's personal queue and acks with the
// resulting list. Queue edits never broadcast to the room.
func (d *CommandDispatcher) handleQueue(c *Connection, cmd clientCommand) {
	room, participantID, ok := d.roomFor(c, cmd)
	if !ok {
		return
	}
	if cmd.PlayerID == uuid.Nil {
		d.replyError(c, cmd.Type, "player_id is required")
		return
	}

	switch cmd.Type {
	case CommandQueueAdd:
		room.QueueAdd(participantID, cmd.PlayerID)
	case CommandQueueRemove:
		room.QueueRemove(participantID, cmd.PlayerID)
	case CommandQueueReorder:
		room.QueueReorder(participantID, cmd.PlayerID, cmd.Position)
	}

	ev, err := events.New(room.DraftID(), events.EventTypeQueueState, time.Now(), queueReply{
		ParticipantID: participantID,
		PlayerIDs:     room.Queue(participantID),
	})
	if err != nil {
		log.Error().Err(err).Str("draft_id", room.DraftID().String()).Msg("failed to build queue ack")
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("draft_id", room.DraftID().String()).Msg("failed to marshal queue ack")
		return
	}
	d.manager.sendDirect(c, data)
}

// roomFor resolves the room and acting participant for a command, preferring
// the identity bound at join time over whatever the frame claims.
func (d *CommandDispatcher) roomFor(c *Connection, cmd clientCommand) (*coordinator.Room, uuid.UUID, bool) {
	draftID, participantID := c.Identity()
	if draftID == uuid.Nil {
		draftID = cmd.DraftID
	}
	room, ok := d.service.Room(draftID)
	if !ok {
		d.replyError(c, cmd.Type, "unknown draft")
		return nil, uuid.Nil, false
	}
	if participantID == uuid.Nil {
		participantID = cmd.ParticipantID
	}
	if participantID == uuid.Nil {
		d.replyError(c, cmd.Type, "participant_id is required")
		return nil, uuid.Nil, false
	}
	return room, participantID, true
}

func (d *CommandDispatcher) replyError(c *Connection, command, reason string) {
	draftID, _ := c.Identity()
	ev, err := events.New(draftID, events.EventTypeCommandError, time.Now(), errorReply{
		Command: command,
		Reason:  reason,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build error reply")
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal error reply")
		return
	}
	d.manager.sendDirect(c, data)
}

// reasonFor maps arbitration errors to the short reasons clients display.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, engine.ErrNotOnClock):
		return "not your turn"
	case errors.Is(err, engine.ErrPlayerUnavailable):
		return "player is not available"
	case errors.Is(err, engine.ErrStaleTurn):
		return "the turn already advanced"
	case errors.Is(err, engine.ErrInvalidState):
		return "draft is not in progress"
	case errors.Is(err, engine.ErrDraftStalled):
		return "no eligible players remain"
	default:
		return "internal error"
	}
}
