package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/courtvision/draftroom/internal/draft/events"
)

// ConnectionManager tracks which connections are subscribed to which draft
// room and fans events out to them. A connection belongs to at most one
// room; membership is ephemeral, created on join and destroyed on
// disconnect. Reconnection is just a fresh join that resyncs from the full
// snapshot.
type ConnectionManager struct {
	rooms map[uuid.UUID]map[*Connection]bool
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	// All broadcasts for all drafts flow through one channel and one
	// goroutine, which preserves per-draft delivery order end to end.
	broadcastCh chan broadcastMessage
}

// Connection represents one WebSocket client. Its identity is zero until
// the client issues a join command.
type Connection struct {
	ID      uuid.UUID
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time

	// identityMu guards the join-bound identity, which the manager's
	// goroutines write and the read pump's dispatcher reads.
	identityMu    sync.Mutex
	draftID       uuid.UUID
	participantID uuid.UUID

	// done signals the write pump to exit. Send is never closed, so a
	// broadcast racing a disconnect lands in a buffer nobody drains instead
	// of panicking.
	done     chan struct{}
	stopOnce sync.Once
}

// Identity returns the draft and participant bound at join time, both Nil
// before the first join and after leaving.
func (c *Connection) Identity() (draftID, participantID uuid.UUID) {
	c.identityMu.Lock()
	defer c.identityMu.Unlock()
	return c.draftID, c.participantID
}

func (c *Connection) setIdentity(draftID, participantID uuid.UUID) {
	c.identityMu.Lock()
	c.draftID = draftID
	c.participantID = participantID
	c.identityMu.Unlock()
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

type broadcastMessage struct {
	DraftID uuid.UUID
	Data    []byte
	// Target narrows delivery to a single connection; nil fans out to the
	// whole room. Targeted messages share the broadcast goroutine so they
	// are ordered with room fanout.
	Target *Connection
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		rooms: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// BroadcastSnapshot wraps the post-mutation snapshot in an envelope and
// queues it for the room. Called from the coordinator's arbitration
// section, so it must stay a channel hand-off.
func (cm *ConnectionManager) BroadcastSnapshot(draftID uuid.UUID, snap events.Snapshot) {
	ev, err := events.New(draftID, events.EventTypeDraftSnapshot, time.Now(), snap)
	if err != nil {
		log.Error().Err(err).Str("draft_id", draftID.String()).Msg("failed to build snapshot event")
		return
	}
	cm.BroadcastEvent(draftID, ev)
}

// BroadcastEvent queues an already-built event for every member of a room.
func (cm *ConnectionManager) BroadcastEvent(draftID uuid.UUID, ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("draft_id", draftID.String()).Msg("failed to marshal event")
		return
	}
	select {
	case cm.broadcastCh <- broadcastMessage{DraftID: draftID, Data: data}:
	default:
		log.Warn().Str("draft_id", draftID.String()).Msg("broadcast channel full, dropping message")
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket connection and
// starts its pumps. The connection is not in any room until it joins.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, dispatcher *CommandDispatcher) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
		done:        make(chan struct{}),
	}

	go connection.writePump()
	go connection.readPump(dispatcher)

	log.Info().
		Str("connection_id", connection.ID.String()).
		Msg("websocket connection established")
	return nil
}

// joinRoom subscribes the connection to a draft, leaving any previous room
// first.
func (cm *ConnectionManager) joinRoom(conn *Connection, draftID, participantID uuid.UUID) {
	cm.mu.Lock()
	if current, _ := conn.Identity(); current != uuid.Nil {
		cm.removeLocked(conn)
	}
	conn.setIdentity(draftID, participantID)
	if cm.rooms[draftID] == nil {
		cm.rooms[draftID] = make(map[*Connection]bool)
	}
	cm.rooms[draftID][conn] = true
	total := len(cm.rooms[draftID])
	cm.mu.Unlock()

	log.Info().
		Str("connection_id", conn.ID.String()).
		Str("participant_id", participantID.String()).
		Str("draft_id", draftID.String()).
		Int("room_size", total).
		Msg("connection joined draft room")
}

// leaveRoom removes the connection from its room without closing it.
func (cm *ConnectionManager) leaveRoom(conn *Connection) {
	cm.mu.Lock()
	cm.removeLocked(conn)
	cm.mu.Unlock()
}

// unregisterConnection removes the connection from its room and stops its
// write pump. Safe to call from both pumps' exit paths.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	cm.removeLocked(conn)
	cm.mu.Unlock()
	conn.stopOnce.Do(func() { close(conn.done) })
}

func (cm *ConnectionManager) removeLocked(conn *Connection) {
	draftID, _ := conn.Identity()
	if conns, exists := cm.rooms[draftID]; exists {
		if conns[conn] {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(cm.rooms, draftID)
			}
			log.Info().
				Str("connection_id", conn.ID.String()).
				Str("draft_id", draftID.String()).
				Msg("connection left draft room")
		}
	}
	conn.setIdentity(uuid.Nil, uuid.Nil)
}

func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	if message.Target != nil {
		cm.deliver(message.Target, message.Data)
		return
	}

	cm.mu.RLock()
	conns, exists := cm.rooms[message.DraftID]
	if !exists {
		cm.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(conns))
	for conn := range conns {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		cm.deliver(conn, message.Data)
	}
}

func (cm *ConnectionManager) deliver(conn *Connection, data []byte) {
	select {
	case conn.Send <- data:
	default:
		// Slow or dead client: drop it rather than block the room.
		log.Warn().
			Str("connection_id", conn.ID.String()).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

// queueDirect routes a single-connection message through the broadcast
// goroutine. Join snapshots use this so they cannot arrive after a newer
// room broadcast.
func (cm *ConnectionManager) queueDirect(conn *Connection, draftID uuid.UUID, data []byte) {
	select {
	case cm.broadcastCh <- broadcastMessage{DraftID: draftID, Data: data, Target: conn}:
	default:
		log.Warn().
			Str("connection_id", conn.ID.String()).
			Msg("broadcast channel full, dropping direct message")
	}
}

// sendDirect delivers a message to a single connection, best-effort. Used
// for join snapshots, error replies, and queue acks.
func (cm *ConnectionManager) sendDirect(conn *Connection, data []byte) {
	select {
	case conn.Send <- data:
	default:
		log.Warn().
			Str("connection_id", conn.ID.String()).
			Msg("connection send buffer full on direct send, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

// RoomSize returns the number of live connections subscribed to a draft.
func (cm *ConnectionManager) RoomSize(draftID uuid.UUID) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.rooms[draftID])
}

// Stats returns per-draft connection counts for the stats endpoint.
func (cm *ConnectionManager) Stats() (total int, perDraft map[string]int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	perDraft = make(map[string]int, len(cm.rooms))
	for draftID, conns := range cm.rooms {
		perDraft[draftID.String()] = len(conns)
		total += len(conns)
	}
	return total, perDraft
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID.String()).
					Msg("failed to write message to websocket")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump reads client commands and hands them to the dispatcher.
func (c *Connection) readPump(dispatcher *CommandDispatcher) {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID.String()).
					Msg("unexpected websocket close")
			}
			break
		}
		dispatcher.Dispatch(c, message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
