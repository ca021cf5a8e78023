package feed

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"rollbook/cmd/identity"
	"rollbook/cmd/internal/auth"
	"rollbook/cmd/internal/idle"
)

const (
	wsWriteTimeout      = 5 * time.Second
	wsHeartbeatInterval = 30 * time.Second
	wsReadLimit         = 4 * 1024
)

// WSHandler upgrades admin requests to a WebSocket and streams hub events.
// The socket is one-way: inbound frames are drained only to observe close.
type WSHandler struct {
	hub *Hub
	log *slog.Logger

	// devInsecure skips origin verification; local development only.
	devInsecure bool
}

// NewWSHandler constructs a WSHandler. log may be nil.
func NewWSHandler(hub *Hub, log *slog.Logger, devInsecure bool) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WSHandler{hub: hub, log: log, devInsecure: devInsecure}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireRole(r.Context(), identity.RoleAdmin); err != nil {
		status := http.StatusUnauthorized
		if err == auth.ErrWrongRole {
			status = http.StatusForbidden
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.devInsecure,
	})
	if err != nil {
		h.log.Error("feed.ws.accept.failed", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(wsReadLimit)

	events, cancelSub := h.hub.Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// A feed socket with no client traffic follows the same inactivity
	// policy as an interactive session.
	mon := idle.NewMonitor(idle.Config{}, cancel, nil, nil)
	go mon.Run()
	defer mon.Stop()

	// Reader exists only to notice the peer going away and to count any
	// inbound frame as activity.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
			mon.Touch()
		}
	}()

	ping := time.NewTicker(wsHeartbeatInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				h.log.Info("feed.ws.ping.failed", "err", err)
				return
			}
		case msg := <-events:
			writeCtx, writeCancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			writeCancel()
			if err != nil {
				h.log.Info("feed.ws.write.failed", "err", err)
				return
			}
		}
	}
}
