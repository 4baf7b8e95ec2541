package rest

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter mounts the registration endpoints. The socket endpoint is
// mounted by the application next to these so one server carries both.
func NewRouter(handlers *Handlers) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/ping", handlers.PingHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/room", handlers.CreateRoom).Methods(http.MethodPost)
	router.HandleFunc("/api/room/{roomID}", handlers.JoinRoom).Methods(http.MethodPost)

	return router
}

func pathRoomID(r *http.Request) string {
	return mux.Vars(r)["roomID"]
}
