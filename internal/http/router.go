package httpx

import (
	"net/http"

	"log/slog"

	"github.com/Faisal123786/MeetVideoCallP2P/internal/app"
	"github.com/Faisal123786/MeetVideoCallP2P/internal/signal"
	"github.com/Faisal123786/MeetVideoCallP2P/internal/ws"
	"github.com/Faisal123786/MeetVideoCallP2P/pkg/metrics"
)

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, logger *slog.Logger, broker *signal.Broker) http.Handler {
	mw := NewMiddleware(cfg)
	wsh := ws.NewHandler(logger, broker)
	api := &RoomsAPI{Broker: broker}

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint
	mux.Handle("/ws", http.HandlerFunc(wsh.ServeWS))

	// Read-only rooms introspection
	mux.Handle("GET /api/rooms", http.HandlerFunc(api.List))
	mux.Handle("GET /api/rooms/{id}", http.HandlerFunc(api.Get))

	// CORS + rate limit applied globally
	return mw.Wrap(mux)
}
