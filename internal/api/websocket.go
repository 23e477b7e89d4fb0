package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"trading-runtime/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage is the frame pushed to websocket clients.
type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// websocket streams base-type events to the client. A general handler feeds
// a buffered channel; when the client cannot keep up, new events are dropped
// rather than backpressuring the dispatcher.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	stream := make(chan wsMessage, 256)
	handler := func(ev events.Event) {
		switch ev.Type {
		case events.EventTick, events.EventBar, events.EventOrder,
			events.EventTrade, events.EventPosition, events.EventAccount,
			events.EventLog:
		default:
			return
		}
		select {
		case stream <- wsMessage{Type: ev.Type, Data: ev.Data}:
		default: // client too slow, drop
		}
	}
	s.Engine.RegisterGeneral(handler)
	defer s.Engine.UnregisterGeneral(handler)

	// Reader only watches for the client closing the connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case msg := <-stream:
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}
}
