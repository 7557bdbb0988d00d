package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/Faisal123786/MeetVideoCallP2P/internal/signal"
)

// RoomsAPI exposes a read-only view of live rooms for ops tooling. Room
// state is ephemeral; there is nothing to create or mutate over HTTP.
type RoomsAPI struct{ Broker *signal.Broker }

// List returns every live room with its occupancy
func (a *RoomsAPI) List(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.Broker.Rooms().Snapshot())
}

// Get returns one room by id
func (a *RoomsAPI) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	for _, info := range a.Broker.Rooms().Snapshot() {
		if info.ID == id {
			writeJSON(w, info)
			return
		}
	}
	http.Error(w, "room not found", http.StatusNotFound)
}

// send JSON with proper headers
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
