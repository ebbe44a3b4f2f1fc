// Package channel provides the session registry shared by the lobby and
// game channels: short-id admission, unicast and broadcast delivery over
// per-session outboxes.
package channel

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maeldubois/numduel-backend/internal/protocol"
)

const (
	shortIDLength = 8
	maxIDAttempts = 16
)

var (
	ErrIDSpaceExhausted = errors.New("channel: session id space exhausted")
	ErrUnknownSession   = errors.New("channel: unknown session")
	ErrDuplicateID      = errors.New("channel: session id already registered")
)

// Session is one admitted connection plus its per-channel state. The
// outbox is drained by the transport's writer goroutine; the registry
// never blocks on it.
type Session struct {
	ID       string
	Username string
	Outbox   chan []byte
}

// Core is a registry of duplex sessions. It is not safe for concurrent
// use: exactly one channel loop owns a Core and drives it serially.
type Core struct {
	logger   *zap.Logger
	sessions map[string]*Session
	order    []string // admission order, drives broadcast order
}

func NewCore(logger *zap.Logger) *Core {
	return &Core{
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

func newShortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:shortIDLength]
}

// Admit registers a new session under a fresh channel-scoped id.
// Collisions are retried a bounded number of times over the short-id
// space; on exhaustion the id widens to a full UUID.
func (c *Core) Admit(username string, outbox chan []byte) (string, error) {
	var id string
	for attempt := 0; ; attempt++ {
		if attempt == maxIDAttempts {
			id = uuid.NewString()
			if _, taken := c.sessions[id]; taken {
				return "", ErrIDSpaceExhausted
			}
			break
		}
		id = newShortID()
		if _, taken := c.sessions[id]; !taken {
			break
		}
	}
	c.sessions[id] = &Session{ID: id, Username: username, Outbox: outbox}
	c.order = append(c.order, id)
	return id, nil
}

// Rekey replaces a session's id in place, preserving its admission
// order. Game channels use it to swap the generic id for the player
// identity at admission time.
func (c *Core) Rekey(oldID, newID string) error {
	s, ok := c.sessions[oldID]
	if !ok {
		return ErrUnknownSession
	}
	if newID == oldID {
		return nil
	}
	if _, taken := c.sessions[newID]; taken {
		return ErrDuplicateID
	}
	delete(c.sessions, oldID)
	s.ID = newID
	c.sessions[newID] = s
	for i, id := range c.order {
		if id == oldID {
			c.order[i] = newID
			break
		}
	}
	return nil
}

// Remove drops a session from the registry and closes its outbox, which
// tells the transport's writer to finish. Unknown ids are a no-op.
func (c *Core) Remove(id string) {
	s, ok := c.sessions[id]
	if !ok {
		return
	}
	close(s.Outbox)
	delete(c.sessions, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Core) Get(id string) (*Session, bool) {
	s, ok := c.sessions[id]
	return s, ok
}

func (c *Core) Len() int { return len(c.sessions) }

// Roster lists the connected users in admission order.
func (c *Core) Roster() []protocol.UserInfo {
	users := make([]protocol.UserInfo, 0, len(c.order))
	for _, id := range c.order {
		s := c.sessions[id]
		users = append(users, protocol.UserInfo{ID: id, Username: s.Username})
	}
	return users
}

// Send delivers a payload to one session. Non-[]byte payloads are
// JSON-marshaled. Sending to a departed or unknown id is a no-op, and a
// recipient that is not draining its outbox loses the frame rather than
// delaying anyone.
func (c *Core) Send(id string, payload any) {
	s, ok := c.sessions[id]
	if !ok {
		return
	}
	data, err := marshal(payload)
	if err != nil {
		c.logger.Warn("marshal outgoing payload", zap.Error(err))
		return
	}
	c.logger.Debug("send", zap.String("to", id), zap.ByteString("payload", data))
	select {
	case s.Outbox <- data:
	default:
		c.logger.Warn("outbox full, dropping frame", zap.String("to", id))
	}
}

// BroadcastAll fans a payload out to every session in admission order.
// The payload is marshaled once.
func (c *Core) BroadcastAll(payload any) {
	data, err := marshal(payload)
	if err != nil {
		c.logger.Warn("marshal broadcast payload", zap.Error(err))
		return
	}
	for _, id := range c.order {
		c.Send(id, data)
	}
}

// CloseAll closes every outbox and empties the registry. The transport
// closes the underlying connection when it sees the outbox close.
func (c *Core) CloseAll() {
	for _, id := range c.order {
		close(c.sessions[id].Outbox)
	}
	c.sessions = make(map[string]*Session)
	c.order = nil
}

func marshal(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	default:
		return json.Marshal(p)
	}
}
