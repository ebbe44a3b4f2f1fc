// Package ws bridges websocket connections to the channel actors: one
// writer goroutine drains the session outbox, the handler goroutine
// reads frames and posts them to the owning channel's inbox.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/maeldubois/numduel-backend/internal/directory"
	"github.com/maeldubois/numduel-backend/internal/game"
	"github.com/maeldubois/numduel-backend/internal/lobby"
)

const writeTimeout = 3 * time.Second

// LobbyHandler upgrades a lobby connection. The username query
// parameter is optional; the lobby fills in a default.
func LobbyHandler(lb *lobby.Channel, logger *zap.Logger, outboxSize int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := r.URL.Query().Get("username")

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		out := make(chan []byte, outboxSize)
		reply := make(chan lobby.JoinReply, 1)
		select {
		case lb.Inbox() <- lobby.Join{Username: username, Outbox: out, Reply: reply}:
		case <-lb.Done():
			conn.Close(websocket.StatusGoingAway, "lobby closed")
			return
		}
		res := <-reply
		if res.Err != nil {
			conn.Close(websocket.StatusInternalError, "admission failed")
			return
		}
		id := res.ID
		defer func() {
			select {
			case lb.Inbox() <- lobby.Leave{ID: id}:
			case <-lb.Done():
			}
		}()

		pump(r.Context(), conn, out, func(data []byte) bool {
			select {
			case lb.Inbox() <- lobby.FromClient{ID: id, Data: data}:
				return true
			case <-lb.Done():
				return false
			}
		})
	}
}

// GameHandler upgrades a room connection. The room id comes from the
// path, the player identity from the uid query parameter. Refused
// admissions get an explicit close frame instead of a dangling socket.
func GameHandler(dir *directory.Directory, lb *lobby.Channel, logger *zap.Logger, outboxSize int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "room_id")
		if roomID == "" {
			_, _ = w.Write([]byte("No room id provided."))
			return
		}
		uid := r.URL.Query().Get("uid")

		reply := make(chan directory.ResolveReply, 1)
		select {
		case dir.Inbox() <- directory.Resolve{RoomID: roomID, Reply: reply}:
		case <-dir.Done():
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		res := <-reply
		if res.Err != nil {
			_, _ = w.Write([]byte("Room id not found"))
			return
		}
		g := res.Game

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		out := make(chan []byte, outboxSize)
		jreplyCh := make(chan game.JoinReply, 1)
		select {
		case g.Inbox() <- game.Join{UID: uid, Outbox: out, Reply: jreplyCh}:
		case <-g.Done():
			conn.Close(websocket.StatusGoingAway, "room closed")
			return
		}
		var jreply game.JoinReply
		select {
		case jreply = <-jreplyCh:
		case <-g.Done():
			// The room may have answered just before closing.
			select {
			case jreply = <-jreplyCh:
			default:
				conn.Close(websocket.StatusGoingAway, "room closed")
				return
			}
		}
		if jreply.Err != nil {
			logger.Warn("room admission refused",
				zap.String("roomId", roomID), zap.String("uid", uid), zap.Error(jreply.Err))
			conn.Close(websocket.StatusPolicyViolation, jreply.Err.Error())
			return
		}
		// A full room has consumed its invite.
		if jreply.RoomFull {
			select {
			case lb.Inbox() <- lobby.RetireInvite{RoomID: roomID}:
			case <-lb.Done():
			}
		}
		defer func() {
			select {
			case g.Inbox() <- game.Leave{UID: uid}:
			case <-g.Done():
			}
		}()

		pump(r.Context(), conn, out, func(data []byte) bool {
			select {
			case g.Inbox() <- game.FromClient{UID: uid, Data: data}:
				return true
			case <-g.Done():
				return false
			}
		})
	}
}

// pump runs the write side in a goroutine and the read side in the
// caller. It returns when the peer disconnects or the channel stops
// accepting messages; a closed outbox closes the connection, which in
// turn unblocks the reader.
func pump(ctx context.Context, conn *websocket.Conn, out <-chan []byte, deliver func([]byte) bool) {
	writeCtx, writeCancel := context.WithCancel(context.Background())
	defer writeCancel()
	go func() {
		for data := range out {
			wctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
			_ = conn.Write(wctx, websocket.MessageText, data)
			cancel()
		}
		conn.Close(websocket.StatusNormalClosure, "channel closed")
	}()
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if !deliver(data) {
			return
		}
	}
}
