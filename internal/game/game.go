// Package game implements the per-room channel: a two-seat duel where
// both players pick a number and both picks are revealed at once.
package game

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/maeldubois/numduel-backend/internal/channel"
	"github.com/maeldubois/numduel-backend/internal/protocol"
)

var (
	ErrMissingIdentity = errors.New("game: missing player identity")
	ErrUnknownIdentity = errors.New("game: identity not authorized for this room")
	ErrSeatTaken       = errors.New("game: identity already seated")
)

type Msg interface{ isGameMsg() }

// Join seats a player. Reply always receives exactly one JoinReply.
type Join struct {
	UID    string
	Outbox chan []byte
	Reply  chan JoinReply
}

type JoinReply struct {
	Err      error
	RoomFull bool
}

type Leave struct{ UID string }

type FromClient struct {
	UID  string
	Data []byte
}

// GetView reflects internal state without data races; test-only.
type GetView struct{ Reply chan View }

type Shutdown struct{}

func (Join) isGameMsg()       {}
func (Leave) isGameMsg()      {}
func (FromClient) isGameMsg() {}
func (GetView) isGameMsg()    {}
func (Shutdown) isGameMsg()   {}

// player is one of the two authorized identities. Its Choice is the
// single source of truth: live seats hold no copy, so a reconnect keeps
// whatever the identity already picked.
type player struct {
	id       string
	username string
	choice   *int
}

type View struct {
	RoomFull bool
	Seats    []protocol.UserInfo
	Answers  []protocol.PlayerAnswer
}

// Channel is one game room's actor. Sessions are keyed by player
// identity rather than the generic session id, so lookups stay stable
// across reconnects.
type Channel struct {
	inbox     chan Msg
	core      *channel.Core
	roomID    string
	players   [2]*player
	roomFull  bool
	createdAt time.Time
	onClose   func()
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewChannel creates a room for the two invited players. onClose fires
// exactly once, when the last occupied seat disconnects or the room is
// shut down.
func NewChannel(parent context.Context, logger *zap.Logger, roomID string, u1, u2 protocol.UserInfo, onClose func()) *Channel {
	ctx, cancel := context.WithCancel(parent)
	log := logger.Named("ws-game-" + roomID)
	g := &Channel{
		inbox:  make(chan Msg, 64),
		core:   channel.NewCore(log),
		roomID: roomID,
		players: [2]*player{
			{id: u1.ID, username: u1.Username},
			{id: u2.ID, username: u2.Username},
		},
		createdAt: time.Now(),
		onClose:   onClose,
		logger:    log,
		ctx:       ctx,
		cancel:    cancel,
	}
	go g.loop()
	return g
}

func (g *Channel) Inbox() chan<- Msg { return g.inbox }

// Done is closed once the room stops processing messages.
func (g *Channel) Done() <-chan struct{} { return g.ctx.Done() }

// CreatedAt is immutable after construction; the directory's reaper
// reads it across goroutines.
func (g *Channel) CreatedAt() time.Time { return g.createdAt }

func (g *Channel) RoomID() string { return g.roomID }

func (g *Channel) loop() {
	for {
		select {
		case <-g.ctx.Done():
			g.close()
			return

		case m := <-g.inbox:
			switch msg := m.(type) {
			case Join:
				g.handleJoin(msg)

			case Leave:
				if g.handleLeave(msg.UID) {
					return
				}

			case FromClient:
				g.handleMessage(msg.UID, msg.Data)

			case GetView:
				msg.Reply <- View{
					RoomFull: g.roomFull,
					Seats:    g.core.Roster(),
					Answers:  g.answers(),
				}

			case Shutdown:
				g.close()
				return
			}
		}
	}
}

func (g *Channel) player(uid string) *player {
	for _, p := range g.players {
		if p.id == uid {
			return p
		}
	}
	return nil
}

func (g *Channel) handleJoin(msg Join) {
	if msg.UID == "" {
		msg.Reply <- JoinReply{Err: ErrMissingIdentity}
		return
	}
	p := g.player(msg.UID)
	if p == nil {
		msg.Reply <- JoinReply{Err: ErrUnknownIdentity}
		return
	}
	if _, seated := g.core.Get(msg.UID); seated {
		msg.Reply <- JoinReply{Err: ErrSeatTaken}
		return
	}

	id, err := g.core.Admit(p.username, msg.Outbox)
	if err != nil {
		msg.Reply <- JoinReply{Err: err}
		return
	}
	// The generic session id is replaced by the authorized identity as
	// the seat's key.
	if err := g.core.Rekey(id, msg.UID); err != nil {
		g.core.Remove(id)
		msg.Reply <- JoinReply{Err: err}
		return
	}

	g.logger.Info("player joined", zap.String("uid", msg.UID))
	g.broadcastRoster()
	if g.core.Len() == 2 {
		g.roomFull = true
		g.core.BroadcastAll(protocol.AskNumber{Event: protocol.EvtAskNumber})
	}
	msg.Reply <- JoinReply{RoomFull: g.roomFull}
}

// handleLeave frees the seat and reports whether the room closed.
func (g *Channel) handleLeave(uid string) bool {
	if _, seated := g.core.Get(uid); !seated {
		return false
	}
	g.logger.Info("player leaving", zap.String("uid", uid))
	g.core.Remove(uid)
	g.roomFull = false
	if g.core.Len() == 0 {
		g.close()
		return true
	}
	g.broadcastRoster()
	return false
}

func (g *Channel) handleMessage(uid string, data []byte) {
	event, err := protocol.DecodeEvent(data)
	if err != nil {
		g.logger.Warn("dropping malformed message", zap.String("from", uid), zap.Error(err))
		return
	}
	g.logger.Debug("recv", zap.String("from", uid), zap.ByteString("payload", data))

	switch event {
	case protocol.EvtNumberPicked:
		g.onNumberPicked(uid, data)
	case protocol.EvtRetry:
		g.onRetry()
	}
}

func (g *Channel) onNumberPicked(uid string, data []byte) {
	var msg protocol.NumberPicked
	if err := json.Unmarshal(data, &msg); err != nil {
		g.logger.Warn("dropping malformed pick", zap.String("from", uid), zap.Error(err))
		return
	}
	p := g.player(uid)
	if p == nil {
		return
	}
	choice := msg.Choice
	p.choice = &choice
	g.logger.Info("choice submitted", zap.String("uid", uid), zap.Int("choice", choice))

	// Reveal once every currently connected seat has picked.
	for _, seat := range g.core.Roster() {
		if sp := g.player(seat.ID); sp == nil || sp.choice == nil {
			return
		}
	}
	g.logger.Info("revealing")
	g.core.BroadcastAll(protocol.RevealChoice{
		Event:   protocol.EvtRevealChoice,
		Answers: g.answers(),
	})
}

func (g *Channel) onRetry() {
	for _, p := range g.players {
		p.choice = nil
	}
	g.core.BroadcastAll(protocol.AskNumber{Event: protocol.EvtAskNumber})
}

func (g *Channel) answers() []protocol.PlayerAnswer {
	out := make([]protocol.PlayerAnswer, 0, len(g.players))
	for _, p := range g.players {
		out = append(out, protocol.PlayerAnswer{ID: p.id, Username: p.username, Choice: p.choice})
	}
	return out
}

func (g *Channel) broadcastRoster() {
	g.core.BroadcastAll(protocol.UsersUpdate{
		Event:     protocol.EvtUserUpdate,
		Usernames: g.core.Roster(),
	})
}

func (g *Channel) close() {
	g.logger.Info("closing room")
	g.core.CloseAll()
	if g.onClose != nil {
		g.onClose()
		g.onClose = nil
	}
	g.cancel()
}
