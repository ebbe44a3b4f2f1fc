// Package directory routes room ids to game channels: it resolves an id
// against the lobby's pending invites, lazily creates one channel per
// room, and reaps rooms past their TTL on every incoming join request.
package directory

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/maeldubois/numduel-backend/internal/game"
	"github.com/maeldubois/numduel-backend/internal/lobby"
)

var ErrRoomNotFound = errors.New("directory: room id not found")

type Msg interface{ isDirectoryMsg() }

// Resolve maps a room id to its game channel, creating it on first use.
// Reply always receives exactly one ResolveReply.
type Resolve struct {
	RoomID string
	Reply  chan ResolveReply
}

type ResolveReply struct {
	Game *game.Channel
	Err  error
}

// Remove drops a room; posted by the room's own close callback.
type Remove struct{ RoomID string }

// GetView reflects internal state without data races; test-only.
type GetView struct{ Reply chan View }

type Shutdown struct{}

func (Resolve) isDirectoryMsg()  {}
func (Remove) isDirectoryMsg()   {}
func (GetView) isDirectoryMsg()  {}
func (Shutdown) isDirectoryMsg() {}

type View struct {
	RoomIDs []string
}

// Directory is the room-routing actor. It owns roomId -> channel and is
// the only component allowed to create or retire game channels.
type Directory struct {
	inbox  chan Msg
	rooms  map[string]*game.Channel
	lobby  *lobby.Channel
	ttl    time.Duration
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewDirectory(parent context.Context, logger *zap.Logger, lb *lobby.Channel, ttl time.Duration) *Directory {
	ctx, cancel := context.WithCancel(parent)
	d := &Directory{
		inbox:  make(chan Msg, 64),
		rooms:  make(map[string]*game.Channel),
		lobby:  lb,
		ttl:    ttl,
		logger: logger.Named("directory"),
		ctx:    ctx,
		cancel: cancel,
	}
	go d.loop()
	return d
}

func (d *Directory) Inbox() chan<- Msg { return d.inbox }

// Done is closed once the directory stops processing messages.
func (d *Directory) Done() <-chan struct{} { return d.ctx.Done() }

func (d *Directory) loop() {
	for {
		select {
		case <-d.ctx.Done():
			d.shutdown()
			return

		case m := <-d.inbox:
			switch msg := m.(type) {
			case Resolve:
				d.reapStale()
				msg.Reply <- d.resolve(msg.RoomID)

			case Remove:
				delete(d.rooms, msg.RoomID)

			case GetView:
				ids := make([]string, 0, len(d.rooms))
				for id := range d.rooms {
					ids = append(ids, id)
				}
				msg.Reply <- View{RoomIDs: ids}

			case Shutdown:
				d.shutdown()
				return
			}
		}
	}
}

func (d *Directory) resolve(roomID string) ResolveReply {
	// A live room wins over the invite list: once the room is full its
	// invite is retired, and a reconnecting player must still get in.
	if g, ok := d.rooms[roomID]; ok {
		return ResolveReply{Game: g}
	}

	reply := make(chan lobby.ResolveReply, 1)
	select {
	case d.lobby.Inbox() <- lobby.ResolveInvite{RoomID: roomID, Reply: reply}:
	case <-d.lobby.Done():
		return ResolveReply{Err: ErrRoomNotFound}
	}
	res := <-reply
	if !res.OK {
		return ResolveReply{Err: ErrRoomNotFound}
	}

	d.logger.Info("creating room", zap.String("roomId", roomID))
	g := game.NewChannel(d.ctx, d.logger, roomID, res.Invite.U1, res.Invite.U2, func() {
		select {
		case d.inbox <- Remove{RoomID: roomID}:
		case <-d.ctx.Done():
		}
		select {
		case d.lobby.Inbox() <- lobby.RetireInvite{RoomID: roomID}:
		case <-d.lobby.Done():
		}
	})
	d.rooms[roomID] = g
	return ResolveReply{Game: g}
}

// reapStale evicts every room older than the TTL, regardless of
// occupancy. Pull-based: it runs on each resolve, not on a timer.
func (d *Directory) reapStale() {
	now := time.Now()
	for id, g := range d.rooms {
		if now.Sub(g.CreatedAt()) <= d.ttl {
			continue
		}
		d.logger.Info("reaping stale room", zap.String("roomId", id))
		delete(d.rooms, id)
		select {
		case d.lobby.Inbox() <- lobby.RetireInvite{RoomID: id}:
		case <-d.lobby.Done():
		}
		select {
		case g.Inbox() <- game.Shutdown{}:
		case <-g.Done():
		}
	}
}

func (d *Directory) shutdown() {
	for _, g := range d.rooms {
		select {
		case g.Inbox() <- game.Shutdown{}:
		case <-g.Done():
		}
	}
	clear(d.rooms)
	d.cancel()
}
