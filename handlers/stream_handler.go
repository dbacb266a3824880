package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"drinkLogAPI/middleware"
	"drinkLogAPI/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type StreamHandler struct {
	manager *services.DrinkLogManager
}

func NewStreamHandler(manager *services.DrinkLogManager) *StreamHandler {
	return &StreamHandler{manager: manager}
}

// Stream upgrades to a websocket that first sends a snapshot of the caller's
// records and then every confirmed insert and delete.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	l, err := h.manager.Get(ctx, clerkID)
	if err != nil {
		log.Printf("StreamHandler: failed to load drink log for %s: %v", clerkID, err)
		respondWithError(w, http.StatusServiceUnavailable, "Could not fetch your drink history.")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("StreamHandler: could not upgrade connection: %v", err)
		return
	}

	client, err := services.NewStreamClient(ctx, l, conn)
	if err != nil {
		log.Printf("StreamHandler: could not register listener for %s: %v", clerkID, err)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "session closed"))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
