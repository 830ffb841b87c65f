package handlers

import (
	"errors"
	"net/http"

	"backchannel/pkg/pipeline"
	"backchannel/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterChats mounts the per-conversation endpoints.
func (h *Handlers) RegisterChats(r *mux.Router) {
	r.HandleFunc("/chats/{id}/messages", h.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/chats/{id}/messages", h.sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/chats/{id}/messages/{msgID}/reactions", h.toggleReaction).Methods(http.MethodPost)
	r.HandleFunc("/chats/{id}/typing", h.sendTyping).Methods(http.MethodPost)
	r.HandleFunc("/chats/{id}/meta", h.getMeta).Methods(http.MethodGet)
	r.HandleFunc("/chats/{id}/theme", h.setTheme).Methods(http.MethodPut)
}

func (h *Handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := h.state.Contact(id); !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown contact")
		return
	}
	msgs := h.state.Messages(id)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"typing":   h.state.Typing(id),
	})
}

// sendMessage feeds the outbound pipeline. Each non-empty part (image,
// audio, text) becomes its own message.
func (h *Handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Text      string `json:"text"`
		Image     string `json:"image"`
		Audio     string `json:"audio"`
		AudioMime string `json:"audio_mime"`
	}
	if err := utils.JSONRead(r, &body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	msgs, err := h.pipe.SendMessage(r.Context(), id, pipeline.Parts{
		Text:      body.Text,
		Image:     body.Image,
		Audio:     body.Audio,
		AudioMime: body.AudioMime,
	})
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrUnknownContact):
			utils.JSONError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, pipeline.ErrEmptyMessage):
			utils.JSONError(w, http.StatusBadRequest, err.Error())
		default:
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, msgs)
}

// toggleReaction applies the local toggle and mirrors it to the peer. An
// unknown message id is a no-op, reported as such.
func (h *Handlers) toggleReaction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body struct {
		Emoji string `json:"emoji"`
	}
	if err := utils.JSONRead(r, &body); err != nil || body.Emoji == "" {
		utils.JSONError(w, http.StatusBadRequest, "emoji is required")
		return
	}
	changed := h.pipe.ToggleReaction(vars["id"], vars["msgID"], body.Emoji)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"applied": changed})
}

func (h *Handlers) sendTyping(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		IsTyping bool `json:"is_typing"`
	}
	if err := utils.JSONRead(r, &body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	h.pipe.SendTyping(id, body.IsTyping)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) getMeta(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	_ = utils.JSONWrite(w, http.StatusOK, h.state.Meta(id))
}

// setTheme stores chat metadata; it may exist before any messages do.
func (h *Handlers) setTheme(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Theme string `json:"theme"`
	}
	if err := utils.JSONRead(r, &body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if _, ok := h.state.Contact(id); !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown contact")
		return
	}
	h.state.SetTheme(id, body.Theme)
	_ = utils.JSONWrite(w, http.StatusOK, h.state.Meta(id))
}
