package handlers

import (
	"backchannel/pkg/pipeline"
	"backchannel/pkg/session"
	"backchannel/pkg/state"
)

// Handlers binds the API routes to the live state store, outbound pipeline
// and session manager.
type Handlers struct {
	state *state.Store
	pipe  *pipeline.Pipeline
	sess  *session.Manager
}

func New(st *state.Store, pipe *pipeline.Pipeline, sess *session.Manager) *Handlers {
	return &Handlers{state: st, pipe: pipe, sess: sess}
}
