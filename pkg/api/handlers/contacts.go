package handlers

import (
	"errors"
	"net/http"

	"backchannel/pkg/models"
	"backchannel/pkg/session"
	"backchannel/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterContacts mounts the contact directory endpoints.
func (h *Handlers) RegisterContacts(r *mux.Router) {
	r.HandleFunc("/contacts", h.listContacts).Methods(http.MethodGet)
	r.HandleFunc("/contacts", h.addContact).Methods(http.MethodPost)
	r.HandleFunc("/contacts/{id}", h.getContact).Methods(http.MethodGet)
	r.HandleFunc("/contacts/{id}/connect", h.connectContact).Methods(http.MethodPost)
	r.HandleFunc("/focus", h.setFocus).Methods(http.MethodPost)
}

func (h *Handlers) listContacts(w http.ResponseWriter, r *http.Request) {
	_ = utils.JSONWrite(w, http.StatusOK, h.state.Contacts())
}

func (h *Handlers) getContact(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	c, ok := h.state.Contact(id)
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown contact")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, c)
}

// addContact creates a contact for a handle and kicks off an outbound
// connect. The contact stays offline when the peer is unreachable.
func (h *Handlers) addContact(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Handle      string `json:"handle"`
		DisplayName string `json:"display_name"`
	}
	if err := utils.JSONRead(r, &body); err != nil || body.Handle == "" {
		utils.JSONError(w, http.StatusBadRequest, "handle is required")
		return
	}
	for _, c := range h.state.Contacts() {
		if c.Handle == body.Handle {
			utils.JSONError(w, http.StatusConflict, "contact exists for handle")
			return
		}
	}
	id, _ := h.state.UpsertFromProfile(models.ProfileInfoPayload{
		Username:    body.Handle,
		DisplayName: body.DisplayName,
	})
	// handshake upserts mark the contact online; a manually added one is
	// offline until a connection proves otherwise
	h.state.SetOnline(id, false)
	if err := h.sess.Connect(r.Context(), body.Handle, id); err != nil {
		c, _ := h.state.Contact(id)
		_ = utils.JSONWrite(w, http.StatusAccepted, map[string]any{
			"contact": c,
			"error":   err.Error(),
		})
		return
	}
	c, _ := h.state.Contact(id)
	_ = utils.JSONWrite(w, http.StatusCreated, c)
}

// connectContact retries an outbound connection for a known contact.
func (h *Handlers) connectContact(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	c, ok := h.state.Contact(id)
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown contact")
		return
	}
	if c.IsBot {
		utils.JSONError(w, http.StatusBadRequest, "bots have no network connection")
		return
	}
	if err := h.sess.Connect(r.Context(), c.Handle, c.ID); err != nil {
		if errors.Is(err, session.ErrAddressInUse) {
			utils.JSONError(w, http.StatusConflict, err.Error())
			return
		}
		utils.JSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	c, _ = h.state.Contact(id)
	_ = utils.JSONWrite(w, http.StatusOK, c)
}

// setFocus records which conversation is open, clearing its unread
// counter. An empty id means none is focused.
func (h *Handlers) setFocus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContactID string `json:"contact_id"`
	}
	if err := utils.JSONRead(r, &body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.ContactID != "" {
		if _, ok := h.state.Contact(body.ContactID); !ok {
			utils.JSONError(w, http.StatusNotFound, "unknown contact")
			return
		}
	}
	h.state.SetFocus(body.ContactID)
	w.WriteHeader(http.StatusNoContent)
}
