// Package lobby implements the shared lobby channel: roster broadcasts,
// chat fan-out, and the two-step invite/accept protocol that produces a
// game room id.
package lobby

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maeldubois/numduel-backend/internal/channel"
	"github.com/maeldubois/numduel-backend/internal/protocol"
)

type Msg interface{ isLobbyMsg() }

// Join admits a new connection. Reply always receives exactly one
// JoinReply.
type Join struct {
	Username string
	Outbox   chan []byte
	Reply    chan JoinReply
}

type JoinReply struct {
	ID  string
	Err error
}

type Leave struct{ ID string }

// FromClient carries one raw inbound message body.
type FromClient struct {
	ID   string
	Data []byte
}

// ResolveInvite looks up a pending invite by room id on behalf of the
// room directory.
type ResolveInvite struct {
	RoomID string
	Reply  chan ResolveReply
}

type ResolveReply struct {
	Invite Invite
	OK     bool
}

// RetireInvite removes a pending invite once its room is full, closed,
// or gone.
type RetireInvite struct{ RoomID string }

// GetView reflects internal state without data races; test-only.
type GetView struct{ Reply chan View }

type Shutdown struct{}

func (Join) isLobbyMsg()          {}
func (Leave) isLobbyMsg()         {}
func (FromClient) isLobbyMsg()    {}
func (ResolveInvite) isLobbyMsg() {}
func (RetireInvite) isLobbyMsg()  {}
func (GetView) isLobbyMsg()       {}
func (Shutdown) isLobbyMsg()      {}

// Invite links two user snapshots to a not-yet-created game room. The
// usernames are frozen at invite time.
type Invite struct {
	U1       protocol.UserInfo
	U2       protocol.UserInfo
	RoomID   string
	Accepted bool
}

type View struct {
	NumClients     int
	Roster         []protocol.UserInfo
	PendingInvites []Invite
}

const defaultUsername = "AnonymousGuest"

// Channel is the lobby actor. All state is owned by its loop goroutine;
// the only way in is the inbox.
type Channel struct {
	inbox          chan Msg
	core           *channel.Core
	pendingInvites []Invite
	logger         *zap.Logger
	ctx            context.Context
	cancel         context.CancelFunc
}

func NewChannel(parent context.Context, logger *zap.Logger) *Channel {
	ctx, cancel := context.WithCancel(parent)
	log := logger.Named("ws-lobby")
	l := &Channel{
		inbox:  make(chan Msg, 64),
		core:   channel.NewCore(log),
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
	go l.loop()
	return l
}

func (l *Channel) Inbox() chan<- Msg { return l.inbox }

// Done is closed once the lobby stops processing messages.
func (l *Channel) Done() <-chan struct{} { return l.ctx.Done() }

func (l *Channel) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.handleJoin(msg)

			case Leave:
				l.core.Remove(msg.ID)
				l.broadcastRoster()

			case FromClient:
				l.handleMessage(msg.ID, msg.Data)

			case ResolveInvite:
				inv, ok := l.findInvite(msg.RoomID)
				msg.Reply <- ResolveReply{Invite: inv, OK: ok}

			case RetireInvite:
				l.removeInviteByRoom(msg.RoomID)

			case GetView:
				msg.Reply <- View{
					NumClients:     l.core.Len(),
					Roster:         l.core.Roster(),
					PendingInvites: append([]Invite(nil), l.pendingInvites...),
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Channel) shutdown() {
	l.core.CloseAll()
	l.cancel()
}

func (l *Channel) handleJoin(msg Join) {
	username := msg.Username
	if username == "" {
		username = defaultUsername
	}
	id, err := l.core.Admit(username, msg.Outbox)
	if err != nil {
		msg.Reply <- JoinReply{Err: err}
		return
	}
	l.logger.Info("user joined", zap.String("id", id), zap.String("username", username))
	l.broadcastRoster()
	l.core.Send(id, protocol.UserRegistrated{Event: protocol.EvtUserRegistrated, ID: id})
	msg.Reply <- JoinReply{ID: id}
}

func (l *Channel) handleMessage(senderID string, data []byte) {
	event, err := protocol.DecodeEvent(data)
	if err != nil {
		l.logger.Warn("dropping malformed message",
			zap.String("from", senderID), zap.Error(err))
		return
	}
	l.logger.Debug("recv", zap.String("from", senderID), zap.ByteString("payload", data))

	switch event {
	case protocol.EvtNewTextChat:
		l.onNewTextChat(senderID, data)
	case protocol.EvtNewGameInvite:
		l.onNewInvite(senderID, data)
	case protocol.EvtUserAnsweredInvite:
		l.onHandleInvite(senderID, data)
	}
}

func (l *Channel) onNewTextChat(senderID string, data []byte) {
	var msg protocol.NewTextChat
	if err := json.Unmarshal(data, &msg); err != nil {
		l.logger.Warn("dropping malformed chat", zap.String("from", senderID), zap.Error(err))
		return
	}
	sender, ok := l.core.Get(senderID)
	if !ok {
		return
	}
	l.core.BroadcastAll(protocol.UserNewMsg{
		Event:    protocol.EvtUserNewMsg,
		Username: senderID + "#" + sender.Username,
		Message:  msg.Message,
	})
}

func (l *Channel) onNewInvite(senderID string, data []byte) {
	var msg protocol.NewGameInvite
	if err := json.Unmarshal(data, &msg); err != nil {
		l.logger.Warn("dropping malformed invite", zap.String("from", senderID), zap.Error(err))
		return
	}
	// Self-invites and invites to absent users fail silently.
	target, ok := l.core.Get(msg.TargetUser)
	if msg.TargetUser == senderID || !ok {
		return
	}
	l.core.Send(msg.TargetUser, protocol.UserNewInvite{
		Event: protocol.EvtUserNewInvite,
		From:  senderID,
	})
	// At most one outstanding invite per sender; a second invite while
	// the first is unresolved still notifies the target but records
	// nothing.
	for _, inv := range l.pendingInvites {
		if inv.U1.ID == senderID {
			return
		}
	}
	sender, ok := l.core.Get(senderID)
	if !ok {
		return
	}
	l.pendingInvites = append(l.pendingInvites, Invite{
		U1:     protocol.UserInfo{ID: senderID, Username: sender.Username},
		U2:     protocol.UserInfo{ID: msg.TargetUser, Username: target.Username},
		RoomID: uuid.NewString(),
	})
	l.logger.Info("invite created",
		zap.String("from", senderID), zap.String("to", msg.TargetUser))
}

func (l *Channel) onHandleInvite(senderID string, data []byte) {
	var msg protocol.UserAnsweredInvite
	if err := json.Unmarshal(data, &msg); err != nil {
		l.logger.Warn("dropping malformed invite answer", zap.String("from", senderID), zap.Error(err))
		return
	}
	idx := -1
	for i, inv := range l.pendingInvites {
		if inv.U2.ID == senderID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}

	if !msg.Answer {
		l.pendingInvites = append(l.pendingInvites[:idx], l.pendingInvites[idx+1:]...)
		l.core.Send(msg.From, protocol.UserRefusedInvite{Event: protocol.EvtUserRefusedInvite})
		return
	}

	l.pendingInvites[idx].Accepted = true
	inv := l.pendingInvites[idx]
	move := protocol.UserMoveRoom{Event: protocol.EvtUserMoveRoom, RoomID: inv.RoomID}
	l.core.Send(inv.U1.ID, move)
	l.core.Send(inv.U2.ID, move)
	l.logger.Info("invite accepted", zap.String("roomId", inv.RoomID))
}

func (l *Channel) broadcastRoster() {
	l.core.BroadcastAll(protocol.UsersUpdate{
		Event:     protocol.EvtUsersUpdate,
		Usernames: l.core.Roster(),
	})
}

func (l *Channel) findInvite(roomID string) (Invite, bool) {
	for _, inv := range l.pendingInvites {
		if inv.RoomID == roomID {
			return inv, true
		}
	}
	return Invite{}, false
}

func (l *Channel) removeInviteByRoom(roomID string) {
	for i, inv := range l.pendingInvites {
		if inv.RoomID == roomID {
			l.pendingInvites = append(l.pendingInvites[:i], l.pendingInvites[i+1:]...)
			l.logger.Info("invite retired", zap.String("roomId", roomID))
			return
		}
	}
}
