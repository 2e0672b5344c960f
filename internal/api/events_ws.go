package api

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// streamEvents pushes broker events over a websocket until the client
// disconnects. The API binds to loopback, so any origin is accepted.
func (a *App) streamEvents(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := a.broker.Subscribe(200)
	defer a.broker.Unsubscribe(ch)

	// Read pump: discard client frames, notice the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
