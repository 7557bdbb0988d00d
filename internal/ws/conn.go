package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/Faisal123786/MeetVideoCallP2P/internal/signal"
)

// Conn wraps one participant's websocket session and implements
// signal.Conn. The broker addresses it by the ephemeral id assigned here.
type Conn struct {
	id  string
	ws  *websocket.Conn
	out chan []byte
}

// Accept upgrades HTTP to websocket (allow all origins; browsers hit this
// cross-origin from the meet frontend)
func Accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
}

// NewConn wraps an accepted websocket with a fresh connection handle
func NewConn(wsc *websocket.Conn) *Conn {
	return &Conn{
		id:  uuid.NewString(),
		ws:  wsc,
		out: make(chan []byte, 256),
	}
}

// ID is the broker-facing connection handle
func (c *Conn) ID() string { return c.id }

// Send queues a signaling frame without blocking; a full buffer drops the
// frame rather than stalling the broker loop
func (c *Conn) Send(m signal.Message) {
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	select {
	case c.out <- b:
	default: // skip if send buffer is full
	}
}

// Kick closes the connection with a policy close; used when a newer
// connection takes over this one's identity
func (c *Conn) Kick(reason string) {
	_ = c.ws.Close(websocket.StatusPolicyViolation, reason)
}

// Read blocks until it receives a text/binary message
// Returns false if connection is closed
func (c *Conn) Read(ctx context.Context) ([]byte, bool) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return nil, false
		}
		if typ == websocket.MessageText || typ == websocket.MessageBinary {
			return data, true
		}
	}
}

// WriteLoop sends outbound messages + periodic pings
// Exits when ctx is cancelled
func (c *Conn) WriteLoop(ctx context.Context) {
	t := time.NewTicker(20 * time.Second)
	defer t.Stop()

	for {
		select {
		case b := <-c.out:
			_ = c.ws.Write(ctx, websocket.MessageText, b)
		case <-t.C:
			_ = c.ws.Ping(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Close closes the WS connection normally
func (c *Conn) Close() error { return c.ws.Close(websocket.StatusNormalClosure, "bye") }
