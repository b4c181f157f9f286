// README: WebSocket stream of status updates for a single ride.
package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"waykel/internal/http/middleware"
	"waykel/internal/modules/payment"
	"waykel/internal/modules/permission"
	"waykel/internal/modules/ride"
	"waykel/internal/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

type RideViewer interface {
	CanView(ctx context.Context, id types.ID, actor permission.User) error
}

type StreamHandler struct {
	viewer RideViewer
	sub    Subscriber
}

func NewStreamHandler(viewer RideViewer, sub Subscriber) *StreamHandler {
	return &StreamHandler{viewer: viewer, sub: sub}
}

// streamMessage tags each forwarded update with the feed it came from.
type streamMessage struct {
	Feed    string          `json:"feed"`
	Payload json.RawMessage `json:"payload"`
}

func (h *StreamHandler) Ride(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	caller := middleware.Caller(c)
	if err := h.viewer.CanView(c.Request.Context(), id, caller); err != nil {
		writeServiceError(c, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rides, err := h.sub.Subscribe(ctx, ride.UpdatesChannel)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	payments, err := h.sub.Subscribe(ctx, payment.UpdatesChannel)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ride %s: websocket upgrade: %v", id, err)
		return
	}
	defer conn.Close()

	// The read loop only services control frames and notices the client leaving.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		var (
			feed string
			raw  []byte
			open bool
		)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case raw, open = <-rides:
			feed = "ride"
		case raw, open = <-payments:
			feed = "payment"
		}
		if !open {
			return
		}
		to, ok := updateFor(raw, id)
		if !ok {
			continue
		}
		// Marketplace visibility ends once a ride leaves pending.
		if feed == "ride" && to != ride.StatusPending {
			if err := h.viewer.CanView(ctx, id, caller); err != nil {
				log.Printf("ride %s: closing stream for %s: %v", id, caller.ID, err)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "ride no longer visible"),
					time.Now().Add(writeWait))
				return
			}
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(streamMessage{Feed: feed, Payload: raw}); err != nil {
			return
		}
	}
}

// updateFor reports whether raw is an update for ride id, along with the
// status it moved to (empty for payment updates).
func updateFor(raw []byte, id types.ID) (ride.Status, bool) {
	var head struct {
		RideID types.ID    `json:"ride_id"`
		To     ride.Status `json:"to"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", false
	}
	return head.To, head.RideID == id
}
