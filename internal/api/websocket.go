package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"terminal-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsTopics is everything the dashboard renders live.
var wsTopics = []events.Event{
	events.EventTick,
	events.EventConnectivity,
	events.EventSignal,
	events.EventCapabilityWarning,
	events.EventOrderSubmitted,
	events.EventOrderAccepted,
	events.EventOrderRejected,
	events.EventContractUpdate,
	events.EventSessionUpdate,
}

type wsEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// websocket fans bus events out to one dashboard client.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	merged := make(chan wsEnvelope, 256)
	done := make(chan struct{})
	defer close(done)

	for _, topic := range wsTopics {
		stream, unsub := s.Bus.Subscribe(topic, 64)
		defer unsub()

		go func(topic events.Event, stream <-chan any) {
			for msg := range stream {
				select {
				case merged <- wsEnvelope{Type: string(topic), Payload: msg}:
				case <-done:
					return
				default:
					// client is not draining; drop rather than stall the bus
				}
			}
		}(topic, stream)
	}

	for env := range merged {
		if err := conn.WriteJSON(env); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}
