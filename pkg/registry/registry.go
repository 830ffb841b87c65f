// Package registry tracks one live connection per known contact. Entries
// for not-yet-identified inbound peers are keyed provisionally by routing
// token and re-keyed to the contact id once the handshake resolves them.
package registry

import (
	"sync"

	"backchannel/pkg/logger"
	"backchannel/pkg/models"
)

// Conn is the transport handle the registry tracks. Satisfied by
// *transport.Conn.
type Conn interface {
	Send(ev models.Event) error
	RemotePeer() string
	Close() error
}

type Registry struct {
	mu    sync.Mutex
	conns map[string]Conn
}

func New() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register tracks conn under key. A second registration under an existing
// key replaces the prior entry and closes the superseded connection so no
// open transport is left untracked.
func (r *Registry) Register(key string, conn Conn) {
	r.mu.Lock()
	old, had := r.conns[key]
	r.conns[key] = conn
	r.mu.Unlock()
	if had && old != conn {
		logger.Debug("registry_replaced", "key", key)
		_ = old.Close()
	}
}

// Unregister drops the entry for key if it maps to conn. Passing nil conn
// drops unconditionally.
func (r *Registry) Unregister(key string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[key]; ok && (conn == nil || cur == conn) {
		delete(r.conns, key)
	}
}

// Get returns the live connection for key, if any.
func (r *Registry) Get(key string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[key]
	return c, ok
}

// Rekey upgrades a provisional routing-token entry to an identity-keyed
// entry. No-op when oldKey has no entry. A connection already tracked
// under newKey is displaced and closed, same as Register; this happens on
// simultaneous dials, where an outbound conn holds the contact key when
// the inbound one resolves.
func (r *Registry) Rekey(oldKey, newKey string) {
	if oldKey == newKey {
		return
	}
	r.mu.Lock()
	c, ok := r.conns[oldKey]
	var displaced Conn
	if ok {
		delete(r.conns, oldKey)
		if cur, had := r.conns[newKey]; had && cur != c {
			displaced = cur
		}
		r.conns[newKey] = c
	}
	r.mu.Unlock()
	if ok {
		logger.Debug("registry_rekeyed", "old", oldKey, "new", newKey)
	}
	if displaced != nil {
		logger.Debug("registry_replaced", "key", newKey)
		_ = displaced.Close()
	}
}

// FindKeyForConn reverse-looks-up the key a connection is registered
// under. Needed for close-event cleanup and sender resolution.
func (r *Registry) FindKeyForConn(conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, c := range r.conns {
		if c == conn {
			return k, true
		}
	}
	return "", false
}

// All returns a snapshot of live connections.
func (r *Registry) All() map[string]Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Conn, len(r.conns))
	for k, c := range r.conns {
		out[k] = c
	}
	return out
}

// Len reports the number of tracked connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
