package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"huddle/pkg/auth"
	"huddle/pkg/models"
	"huddle/pkg/service"
	"huddle/pkg/utils"
)

// RegisterConversations registers the direct/support conversation
// routes onto the provided router.
func RegisterConversations(r *mux.Router, svc *service.Service) {
	h := &conversationHandlers{svc: svc}

	r.HandleFunc("/conversations", h.list).Methods(http.MethodGet)
	r.HandleFunc("/conversations/direct", h.sendDirect).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}", h.delete).Methods(http.MethodDelete)
	r.HandleFunc("/conversations/{id}/messages", h.history).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/messages", h.reply).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/messages/{msgID}", h.edit).Methods(http.MethodPut)
	r.HandleFunc("/conversations/{id}/messages/{msgID}", h.remove).Methods(http.MethodDelete)
	r.HandleFunc("/conversations/{id}/read", h.markRead).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/hide", h.hide).Methods(http.MethodPost)
}

type conversationHandlers struct {
	svc *service.Service
}

// sendPayload is the wire shape of a send/reply request.
type sendPayload struct {
	To          string                        `json:"to,omitempty"`
	Text        string                        `json:"text"`
	Attachments []models.Attachment           `json:"attachments,omitempty"`
	ReplyTo     string                        `json:"replyTo,omitempty"`
	Profiles    map[string]models.Participant `json:"profiles,omitempty"`
}

type sendResponse struct {
	Message      models.Message      `json:"message"`
	Conversation models.Conversation `json:"conversation"`
}

func (h *conversationHandlers) list(w http.ResponseWriter, r *http.Request) {
	userID, status, msg := auth.ResolveUser(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	var kinds []models.Kind
	if k := r.URL.Query().Get("kind"); k != "" {
		kinds = append(kinds, models.Kind(k))
	}
	convs, err := h.svc.ListConversations(userID, kinds...)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Conversations []models.Conversation `json:"conversations"`
	}{Conversations: convs})
}

func (h *conversationHandlers) sendDirect(w http.ResponseWriter, r *http.Request) {
	userID, status, msg := auth.ResolveUser(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	var p sendPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	if p.To == "" {
		utils.JSONError(w, http.StatusBadRequest, "recipient required")
		return
	}
	m, conv, err := h.svc.SendDirect(userID, p.To, p.Profiles, service.SendInput{
		Text: p.Text, Attachments: p.Attachments, ReplyToID: p.ReplyTo,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, sendResponse{Message: m, Conversation: conv})
}

func (h *conversationHandlers) reply(w http.ResponseWriter, r *http.Request) {
	userID, status, msg := auth.ResolveUser(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	var p sendPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	m, conv, err := h.svc.Reply(userID, mux.Vars(r)["id"], service.SendInput{
		Text: p.Text, Attachments: p.Attachments, ReplyToID: p.ReplyTo,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, sendResponse{Message: m, Conversation: conv})
}

func (h *conversationHandlers) history(w http.ResponseWriter, r *http.Request) {
	userID, status, msg := auth.ResolveUser(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	convID := mux.Vars(r)["id"]
	msgs, err := h.svc.History(userID, convID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Conversation string           `json:"conversation"`
		Messages     []models.Message `json:"messages"`
	}{Conversation: convID, Messages: msgs})
}

func (h *conversationHandlers) edit(w http.ResponseWriter, r *http.Request) {
	userID, status, msg := auth.ResolveUser(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	var p struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, r, &p) {
		return
	}
	vars := mux.Vars(r)
	edited, err := h.svc.Edit(userID, vars["id"], vars["msgID"], p.Text)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, edited)
}

func (h *conversationHandlers) remove(w http.ResponseWriter, r *http.Request) {
	userID, status, msg := auth.ResolveUser(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	vars := mux.Vars(r)
	if err := h.svc.Remove(userID, vars["id"], vars["msgID"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *conversationHandlers) markRead(w http.ResponseWriter, r *http.Request) {
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
	if err := h.svc.MarkRead(userID, mux.Vars(r)["id"], p.MessageIDs); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *conversationHandlers) hide(w http.ResponseWriter, r *http.Request) {
	userID, status, msg := auth.ResolveUser(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	if err := h.svc.Hide(userID, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *conversationHandlers) delete(w http.ResponseWriter, r *http.Request) {
	userID, status, msg := auth.ResolveUser(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	if err := h.svc.DeleteDirect(userID, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
