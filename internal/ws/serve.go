package ws

import (
	"encoding/json"
	"net/http"

	"log/slog"

	"github.com/Faisal123786/MeetVideoCallP2P/internal/signal"
)

// 64 KB is plenty for SDP offers/answers, the largest frames we relay
const maxFrameSize = 64 * 1024

// Handler bridges websocket sessions into the broker loop
type Handler struct {
	log    *slog.Logger
	broker *signal.Broker
}

func NewHandler(logger *slog.Logger, broker *signal.Broker) *Handler {
	return &Handler{log: logger, broker: broker}
}

// ServeWS handles a new /ws connection: one reader goroutine feeding the
// broker, one writer goroutine draining the outbound queue
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	wsc, err := Accept(w, r)
	if err != nil {
		h.log.Error("ws.accept", "err", err)
		return
	}
	wsc.SetReadLimit(maxFrameSize)

	c := NewConn(wsc)
	h.broker.Attach(c)
	h.log.Debug("ws.connected", "conn", c.ID(), "remote", r.RemoteAddr)

	// Outbound writer
	go c.WriteLoop(ctx)

	// Inbound reader; malformed frames are dropped, the session survives
	for {
		data, ok := c.Read(ctx)
		if !ok {
			break
		}
		var m signal.Message
		if err := json.Unmarshal(data, &m); err != nil || m.Event == "" {
			h.log.Debug("ws.frame.malformed", "conn", c.ID())
			continue
		}
		h.broker.Dispatch(c, m)
	}

	h.broker.Detach(c)
	_ = c.Close()
	h.log.Debug("ws.disconnected", "conn", c.ID())
}
