package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/maeldubois/numduel-backend/internal/directory"
	"github.com/maeldubois/numduel-backend/internal/lobby"
	"github.com/maeldubois/numduel-backend/internal/ws"
)

// SetupRoutes builds the router with the lobby and directory injected.
func SetupRoutes(lb *lobby.Channel, dir *directory.Directory, logger *zap.Logger, outboxSize int) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.LobbyHandler(lb, logger, outboxSize))
	r.Get("/game/{room_id}", ws.GameHandler(dir, lb, logger, outboxSize))
	r.Get("/game", NoRoomID)
	r.Get("/game/", NoRoomID)
	return r
}
