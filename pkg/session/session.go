// Package session owns the local network endpoint: it binds it under the
// profile's derived address, accepts inbound connections, initiates
// outbound ones, runs the startup reconnection sweep and sends the
// profile handshake.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"backchannel/pkg/dispatch"
	"backchannel/pkg/identity"
	"backchannel/pkg/logger"
	"backchannel/pkg/models"
	"backchannel/pkg/registry"
	"backchannel/pkg/state"
	"backchannel/pkg/telemetry"
	"backchannel/pkg/transport"
)

// Endpoint phases. Faulted is terminal and only reached on unrecoverable
// bind failure; a ready endpoint stays ready for the lifetime of the
// loaded profile.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseStarting      Phase = "starting"
	PhaseReady         Phase = "ready"
	PhaseFaulted       Phase = "faulted"
)

// ErrAddressInUse re-exports the distinguishable bind failure so callers
// can tell a duplicate client instance from a generic fault.
var ErrAddressInUse = transport.ErrAddressInUse

const connectTimeout = 15 * time.Second

type Options struct {
	ListenAddr  string
	ListenPort  int
	MDNS        bool
	ServiceTag  string
	Bootstrap   []string
	RateRPS     float64
	RateBurst   int
	MaxEventLen int
}

type Manager struct {
	store *state.Store
	reg   *registry.Registry
	disp  *dispatch.Dispatcher
	opts  Options

	mu    sync.Mutex
	phase Phase
	ep    *transport.Endpoint
}

func New(store *state.Store, reg *registry.Registry, disp *dispatch.Dispatcher, opts Options) *Manager {
	return &Manager{store: store, reg: reg, disp: disp, opts: opts, phase: PhaseUninitialized}
}

// Phase reports the endpoint lifecycle phase.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Addrs returns the endpoint's dialable multiaddrs once ready.
func (m *Manager) Addrs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ep == nil {
		return nil
	}
	return m.ep.Addrs()
}

// Start binds the endpoint under the derived address for handle, then runs
// the reconnection sweep. An already-claimed address (commonly a second
// concurrent client instance) comes back as ErrAddressInUse; the caller
// reports it rather than retrying silently.
func (m *Manager) Start(ctx context.Context, handle string) error {
	m.mu.Lock()
	if m.phase == PhaseReady || m.phase == PhaseStarting {
		m.mu.Unlock()
		return errors.New("session already started")
	}
	m.phase = PhaseStarting
	m.mu.Unlock()

	address := identity.DeriveAddress(handle)
	ep, err := transport.Bind(transport.Options{
		Address:     address,
		ListenAddr:  m.opts.ListenAddr,
		ListenPort:  m.opts.ListenPort,
		MDNS:        m.opts.MDNS,
		ServiceTag:  m.opts.ServiceTag,
		Bootstrap:   m.opts.Bootstrap,
		RateRPS:     m.opts.RateRPS,
		RateBurst:   m.opts.RateBurst,
		MaxEventLen: m.opts.MaxEventLen,
		OnOpen:      m.onOpen,
		OnEvent:     m.onEvent,
		OnClose:     m.onClose,
	})
	if err != nil {
		m.mu.Lock()
		m.phase = PhaseFaulted
		m.mu.Unlock()
		logger.Error("session_bind_failed", "address", address, "err", err)
		return err
	}
	m.mu.Lock()
	m.ep = ep
	m.phase = PhaseReady
	m.mu.Unlock()
	logger.Info("session_endpoint_ready", "address", address, "peer_id", ep.LocalPeer())

	go m.reconnectSweep(ctx)
	return nil
}

// reconnectSweep attempts one outbound connect per known human contact.
// Attempts are independent; one unreachable peer never blocks the rest.
func (m *Manager) reconnectSweep(ctx context.Context) {
	var wg sync.WaitGroup
	for _, c := range m.store.Contacts() {
		if c.IsBot {
			continue
		}
		wg.Add(1)
		go func(c models.Contact) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, connectTimeout)
			defer cancel()
			if err := m.Connect(cctx, c.Handle, c.ID); err != nil {
				logger.Debug("reconnect_attempt_failed", "contact", c.ID, "handle", c.Handle, "err", err)
			}
		}(c)
	}
	wg.Wait()
	logger.Info("reconnect_sweep_done", "online", m.reg.Len())
}

// Connect derives the address for handle and opens an outbound connection.
// A contact already online via another path makes this a no-op (stale
// completion guard). Failure is reported to the caller; the contact stays
// offline and nothing retries automatically.
func (m *Manager) Connect(ctx context.Context, handle, contactID string) error {
	m.mu.Lock()
	ep := m.ep
	m.mu.Unlock()
	if ep == nil {
		return errors.New("endpoint not ready")
	}
	if contactID != "" {
		if _, ok := m.reg.Get(contactID); ok {
			return nil
		}
	}
	address := identity.DeriveAddress(handle)
	conn, err := ep.Connect(ctx, address)
	if err != nil {
		return err
	}
	// completion may be stale: another path may have connected meanwhile
	if contactID != "" {
		if existing, ok := m.reg.Get(contactID); ok && existing != conn {
			_ = conn.Close()
			return nil
		}
	}
	return nil
}

// onOpen runs connection setup for both directions: register (identity key
// when the peer is already a known contact, provisional routing-token key
// otherwise) and send the profile handshake.
func (m *Manager) onOpen(conn *transport.Conn, inbound bool) {
	key := conn.RemotePeer()
	if contactID, ok := identity.ResolveContactForPeer(m.store.Contacts(), conn.RemotePeer()); ok {
		key = contactID
		m.store.SetOnline(contactID, true)
	}
	m.reg.Register(key, conn)
	telemetry.ConnectionsOpen.Set(float64(m.reg.Len()))
	m.sendProfile(conn)
	logger.Debug("session_conn_setup", "key", key, "inbound", inbound)
}

func (m *Manager) onEvent(conn *transport.Conn, ev models.Event) {
	m.disp.Dispatch(conn, ev)
}

// onClose removes the registry entry via reverse lookup and clears the
// owning contact's online flag.
func (m *Manager) onClose(conn *transport.Conn) {
	key, ok := m.reg.FindKeyForConn(conn)
	if !ok {
		return
	}
	m.reg.Unregister(key, conn)
	telemetry.ConnectionsOpen.Set(float64(m.reg.Len()))
	if _, known := m.store.Contact(key); known {
		m.store.SetOnline(key, false)
	}
	logger.Debug("session_conn_cleanup", "key", key)
}

// sendProfile transmits the local PROFILE_INFO on one connection.
// Fire-and-forget; the upsert on the far side is idempotent.
func (m *Manager) sendProfile(conn registry.Conn) {
	p := m.store.Profile()
	ev, err := models.NewEvent(models.EventProfileInfo, models.ProfileInfoPayload{
		Username:    p.Username,
		DisplayName: p.DisplayName,
		Avatar:      p.Avatar,
	})
	if err != nil {
		return
	}
	if err := conn.Send(ev); err != nil {
		logger.Debug("handshake_send_failed", "peer", conn.RemotePeer(), "err", err)
	}
}

// BroadcastProfile sends the local PROFILE_INFO to every open connection.
// Called after a local profile edit.
func (m *Manager) BroadcastProfile() {
	for _, conn := range m.reg.All() {
		m.sendProfile(conn)
	}
}

// Close shuts down the endpoint and every live connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	ep := m.ep
	m.ep = nil
	m.mu.Unlock()
	if ep == nil {
		return nil
	}
	return ep.Close()
}
