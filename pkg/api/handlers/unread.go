package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"huddle/pkg/auth"
	"huddle/pkg/service"
	"huddle/pkg/utils"
)

// RegisterUnread registers the unread-badge endpoint.
func RegisterUnread(r *mux.Router, svc *service.Service) {
	h := &unreadHandlers{svc: svc}
	r.HandleFunc("/unread", h.get).Methods(http.MethodGet)
}

type unreadHandlers struct {
	svc *service.Service
}

func (h *unreadHandlers) get(w http.ResponseWriter, r *http.Request) {
	userID, status, msg := auth.ResolveUser(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	flags, err := h.svc.Unread(userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Unread map[string]bool `json:"unread"`
	}{Unread: flags})
}
