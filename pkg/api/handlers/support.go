package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"huddle/pkg/auth"
	"huddle/pkg/models"
	"huddle/pkg/service"
	"huddle/pkg/utils"
)

// RegisterSupport registers the support ("grievance") ticket routes.
func RegisterSupport(r *mux.Router, svc *service.Service) {
	h := &supportHandlers{svc: svc}

	r.HandleFunc("/support", h.open).Methods(http.MethodPost)
	r.HandleFunc("/support", h.listOwn).Methods(http.MethodGet)
}

// RegisterAdminSupport registers the admin view of all support tickets.
// The gateway denies frontend keys access to /v1/admin.
func RegisterAdminSupport(r *mux.Router, svc *service.Service) {
	h := &supportHandlers{svc: svc}

	r.HandleFunc("/support", h.listAll).Methods(http.MethodGet)
	r.HandleFunc("/support/{id}/notice", h.notice).Methods(http.MethodPost)
}

type supportHandlers struct {
	svc *service.Service
}

func (h *supportHandlers) open(w http.ResponseWriter, r *http.Request) {
	userID, status, msg := auth.ResolveUser(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	var p sendPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	m, conv, err := h.svc.OpenSupport(userID, p.Profiles, service.SendInput{
		Text: p.Text, Attachments: p.Attachments,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, sendResponse{Message: m, Conversation: conv})
}

func (h *supportHandlers) listOwn(w http.ResponseWriter, r *http.Request) {
	userID, status, msg := auth.ResolveUser(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	convs, err := h.svc.ListConversations(userID, models.KindSupport)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Conversations []models.Conversation `json:"conversations"`
	}{Conversations: convs})
}

// listAll returns every support ticket. The synthetic admin participant
// is a member of all of them, so the regular listing path applies.
func (h *supportHandlers) listAll(w http.ResponseWriter, r *http.Request) {
	if !auth.IsAdmin(r) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	convs, err := h.svc.ListConversations(models.AdminParticipantID, models.KindSupport)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Conversations []models.Conversation `json:"conversations"`
	}{Conversations: convs})
}

// notice posts an automated system notice into a support ticket.
func (h *supportHandlers) notice(w http.ResponseWriter, r *http.Request) {
	if !auth.IsAdmin(r) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	var p struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, r, &p) {
		return
	}
	m, conv, err := h.svc.PostSystemNotice(mux.Vars(r)["id"], p.Text)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, sendResponse{Message: m, Conversation: conv})
}
