package httpapi

import "net/http"

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// NoRoomID answers a room join that carries no room id path segment.
func NoRoomID(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("No room id provided."))
}
