package controllers

import (
	"net/http"

	"bancomunay/services"

	"github.com/gorilla/mux"
)

// FriendshipController контакты для переводов
type FriendshipController struct {
	friends *services.FriendshipService
}

// NewFriendshipController создает новый экземпляр FriendshipController
func NewFriendshipController(friends *services.FriendshipService) *FriendshipController {
	return &FriendshipController{friends: friends}
}

// ListFriends возвращает принятых друзей с номерами счетов
func (c *FriendshipController) ListFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := c.friends.ListFriends(r.Context(), currentUser(r))
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, friends)
}

// ListRequests возвращает входящие заявки
func (c *FriendshipController) ListRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := c.friends.ListPending(r.Context(), currentUser(r))
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, requests)
}

// Request отправляет заявку по номеру счета
func (c *FriendshipController) Request(w http.ResponseWriter, r *http.Request) {
	var req services.FriendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, err)
		return
	}

	friendship, err := c.friends.Request(r.Context(), currentUser(r), req)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, friendship)
}

// Respond принимает, отклоняет или удаляет связь
func (c *FriendshipController) Respond(w http.ResponseWriter, r *http.Request) {
	var req services.FriendResponse
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, err)
		return
	}

	friendship, err := c.friends.Respond(r.Context(), currentUser(r), mux.Vars(r)["id"], req)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if friendship == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondWithJSON(w, http.StatusOK, friendship)
}
