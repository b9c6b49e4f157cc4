// Package ws streams session events to websocket clients and accepts their
// control messages.
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/j-emboi/sarcastic-serenity/internal/breathing"
	"github.com/j-emboi/sarcastic-serenity/internal/protocol"
	"github.com/j-emboi/sarcastic-serenity/internal/session"
)

const (
	writeTimeout = 5 * time.Second
	sendBuffer   = 64
)

// PatternResolver maps a pattern ID to a pattern, custom ones included.
type PatternResolver func(ctx context.Context, id string) (breathing.Pattern, error)

// Handler owns websocket transport for the daemon.
type Handler struct {
	session  *session.Session
	resolve  PatternResolver
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler bound to sess. A nil resolve
// limits start requests to the built-in catalog.
func NewHandler(sess *session.Session, resolve PatternResolver) *Handler {
	if resolve == nil {
		resolve = func(_ context.Context, id string) (breathing.Pattern, error) {
			return breathing.PatternByID(id)
		}
	}
	return &Handler{
		session: sess,
		resolve: resolve,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Register binds websocket routes on an Echo router.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades one request and serves it until disconnect.
func (h *Handler) HandleWebSocket(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket: %w", err)
	}
	h.serveConn(c.Request().Context(), conn)
	return nil
}

func (h *Handler) serveConn(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Time{})
	conn.SetReadLimit(1 << 16)

	sub := h.session.Subscribe(sendBuffer)
	defer h.session.Unsubscribe(sub.ID)

	go func() {
		for out := range sub.Send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(out); err != nil {
				slog.Debug("ws write failed", "subscriber_id", sub.ID, "err", err)
				return
			}
		}
	}()

	st := h.session.State()
	h.session.SendTo(sub.ID, protocol.Event{Type: protocol.TypeState, State: &st})

	for {
		var in protocol.Event
		if err := conn.ReadJSON(&in); err != nil {
			slog.Debug("ws read ended", "subscriber_id", sub.ID, "err", err)
			return
		}
		h.handleInbound(ctx, sub.ID, in)
	}
}

func (h *Handler) handleInbound(ctx context.Context, subID string, in protocol.Event) {
	switch in.Type {
	case protocol.TypePing:
		h.session.SendTo(subID, protocol.Event{Type: protocol.TypePong, TS: in.TS})

	case protocol.TypeStart:
		if strings.TrimSpace(in.PatternID) == "" {
			h.session.Start(ctx)
			return
		}
		p, err := h.resolve(ctx, in.PatternID)
		if err != nil {
			h.sendError(subID, err.Error())
			return
		}
		if err := h.session.StartPattern(ctx, p); err != nil {
			h.sendError(subID, err.Error())
		}

	case protocol.TypePause:
		h.session.Pause()

	case protocol.TypeResume:
		h.session.Resume()

	case protocol.TypeStop:
		h.session.Stop()

	default:
		h.sendError(subID, "unsupported message type")
	}
}

func (h *Handler) sendError(subID, errMsg string) {
	h.session.SendTo(subID, protocol.Event{Type: protocol.TypeError, Error: errMsg})
}
