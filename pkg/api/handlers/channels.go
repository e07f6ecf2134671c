package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"huddle/pkg/auth"
	"huddle/pkg/models"
	"huddle/pkg/service"
	"huddle/pkg/utils"
)

// RegisterChannels registers the fixed shared channel routes.
func RegisterChannels(r *mux.Router, svc *service.Service) {
	h := &channelHandlers{svc: svc}

	r.HandleFunc("/channels", h.list).Methods(http.MethodGet)
	r.HandleFunc("/channels/{name}/messages", h.history).Methods(http.MethodGet)
	r.HandleFunc("/channels/{name}/messages", h.send).Methods(http.MethodPost)
	r.HandleFunc("/channels/{name}/read", h.markRead).Methods(http.MethodPost)
}

type channelHandlers struct {
	svc *service.Service
}

func (h *channelHandlers) list(w http.ResponseWriter, r *http.Request) {
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Channels []string `json:"channels"`
	}{Channels: h.svc.Channels()})
}

func (h *channelHandlers) send(w http.ResponseWriter, r *http.Request) {
	userID, status, msg := auth.ResolveUser(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	var p sendPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	m, conv, err := h.svc.SendChannel(userID, mux.Vars(r)["name"], service.SendInput{
		Text: p.Text, Attachments: p.Attachments, ReplyToID: p.ReplyTo,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, sendResponse{Message: m, Conversation: conv})
}

func (h *channelHandlers) history(w http.ResponseWriter, r *http.Request) {
	userID, status, msg := auth.ResolveUser(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	name := mux.Vars(r)["name"]
	msgs, err := h.svc.History(userID, name, 0)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Channel  string           `json:"channel"`
		Messages []models.Message `json:"messages"`
	}{Channel: name, Messages: msgs})
}

func (h *channelHandlers) markRead(w http.ResponseWriter, r *http.Request) {
	userID, status, msg := auth.ResolveUser(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	var p struct {
		MessageIDs []string `json:"messageIds"`
	}
	if !decodeJSON(w, r, &p) {
		return
	}
	if err := h.svc.MarkRead(userID, mux.Vars(r)["name"], p.MessageIDs); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
