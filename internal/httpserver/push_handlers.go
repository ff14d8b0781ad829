package httpserver

import (
	"encoding/json"
	"net/http"

	"chattrix/internal/domain"
)

type subscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	} `json:"keys"`
}

func handleCreateSubscription(subs domain.SubscriptionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		var req subscribeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if err := validate.Struct(req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		sub := &domain.PushSubscription{
			UserID:    user.ID,
			Endpoint:  req.Endpoint,
			P256dhKey: req.Keys.P256dh,
			AuthKey:   req.Keys.Auth,
		}
		if err := subs.Create(r.Context(), sub); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store subscription"})
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	}
}

func handleVAPIDKey(publicKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if publicKey == "" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "push notifications are not configured"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"public_key": publicKey})
	}
}
