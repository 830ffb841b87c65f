package handlers

import (
	"net/http"

	"backchannel/pkg/logger"
	"backchannel/pkg/models"
	"backchannel/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterProfile mounts the local-profile endpoints.
func (h *Handlers) RegisterProfile(r *mux.Router) {
	r.HandleFunc("/profile", h.getProfile).Methods(http.MethodGet)
	r.HandleFunc("/profile", h.putProfile).Methods(http.MethodPut)
}

func (h *Handlers) getProfile(w http.ResponseWriter, r *http.Request) {
	_ = utils.JSONWrite(w, http.StatusOK, h.state.Profile())
}

// putProfile saves the edited profile and broadcasts the new PROFILE_INFO
// to every open connection.
func (h *Handlers) putProfile(w http.ResponseWriter, r *http.Request) {
	var p models.Profile
	if err := utils.JSONRead(r, &p); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if p.Username == "" {
		utils.JSONError(w, http.StatusBadRequest, "username is required")
		return
	}
	h.state.SetProfile(p)
	h.sess.BroadcastProfile()
	logger.Info("profile_updated", "username", p.Username)
	_ = utils.JSONWrite(w, http.StatusOK, p)
}
