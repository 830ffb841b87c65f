// Package api is the local control surface a UI drives: profile, contacts,
// chat histories, sends, reactions and focus, mounted by the app's HTTP
// server.
package api

import (
	"net/http"

	"backchannel/pkg/api/handlers"
	"backchannel/pkg/pipeline"
	"backchannel/pkg/session"
	"backchannel/pkg/state"
	"backchannel/pkg/utils"

	"github.com/gorilla/mux"
)

// Deps carries the collaborators handlers mutate through.
type Deps struct {
	State   *state.Store
	Pipe    *pipeline.Pipeline
	Session *session.Manager
}

// Handler returns the versioned API router.
func Handler(d Deps) http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	h := handlers.New(d.State, d.Pipe, d.Session)
	h.RegisterProfile(v1)
	h.RegisterContacts(v1)
	h.RegisterChats(v1)

	v1.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		_ = utils.JSONWrite(w, http.StatusOK, map[string]any{
			"phase": d.Session.Phase(),
			"addrs": d.Session.Addrs(),
		})
	}).Methods(http.MethodGet)
	return r
}
