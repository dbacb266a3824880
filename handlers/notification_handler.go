package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"drinkLogAPI/internal/notify"
	"drinkLogAPI/middleware"
)

type NotificationHandler struct {
	feed    *notify.Feed
	devices *notify.Devices
}

func NewNotificationHandler(feed *notify.Feed, devices *notify.Devices) *NotificationHandler {
	return &NotificationHandler{
		feed:    feed,
		devices: devices,
	}
}

// GetNotifications returns the caller's recent notices, newest first.
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	clerkID, ok := middleware.GetClerkID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 100 {
			respondWithError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	notices := h.feed.Recent(clerkID, limit)
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notices,
		"count":         len(notices),
	})
}

type registerDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Token = strings.TrimSpace(req.Token)
	req.Platform = strings.ToLower(strings.TrimSpace(req.Platform))
	if req.Token == "" {
		respondWithError(w, http.StatusBadRequest, "token is required")
		return
	}
	switch req.Platform {
	case "", "android", "ios", "web":
	default:
		respondWithError(w, http.StatusBadRequest, "platform must be android, ios or web")
		return
	}

	h.devices.Register(clerkID, notify.DeviceToken{Token: req.Token, Platform: req.Platform})
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Device registered successfully"})
}
