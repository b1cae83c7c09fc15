package handlers

import "net/http"

// ListRoomsHandler reports the live rooms, oldest first.
func ListRoomsHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"count": gs.Rooms.Len(),
			"rooms": gs.Rooms.Snapshot(),
		})
	}
}
