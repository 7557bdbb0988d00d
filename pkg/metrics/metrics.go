package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Broker counters and gauges, registered on the default registry
var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_connections_active",
		Help: "Current live websocket connections.",
	})
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_rooms_active",
		Help: "Rooms with a living owner.",
	})
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_events_total",
		Help: "Inbound signaling events by type.",
	}, []string{"event"})
	RelaysDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaling_relays_dropped_total",
		Help: "Negotiation messages dropped because a party was unreachable.",
	})
	AdmissionsGranted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaling_admissions_granted_total",
		Help: "Guests admitted by a room owner.",
	})
	AdmissionsDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaling_admissions_denied_total",
		Help: "Guests denied by a room owner.",
	})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
