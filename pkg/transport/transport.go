// Package transport owns the libp2p endpoint: one host bound under the
// local user's derived address, one persistent event stream per peer,
// length-framed JSON events on the wire.
package transport

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"backchannel/pkg/identity"
	"backchannel/pkg/logger"
	"backchannel/pkg/models"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"
	"golang.org/x/time/rate"
)

const ProtocolID = protocol.ID("/backchannel/1.0.0")

// ErrAddressInUse reports that the local address is already claimed,
// commonly by a second concurrent client instance.
var ErrAddressInUse = errors.New("address already in use")

// ErrUnreachable reports that no route to the peer is known.
var ErrUnreachable = errors.New("peer unreachable")

const (
	defaultMaxEventLen = 1 << 20
	writeTimeout       = 10 * time.Second
)

// Options configures the endpoint.
type Options struct {
	Address     string // local derived address; fixes the host identity
	ListenAddr  string
	ListenPort  int
	MDNS        bool
	ServiceTag  string
	Bootstrap   []string // multiaddrs with /p2p/ components
	RateRPS     float64
	RateBurst   int
	MaxEventLen int

	// OnOpen runs after a connection's read loop starts, inbound or
	// outbound. OnEvent runs per decoded event. OnClose runs once when the
	// stream dies. All run on the connection's goroutine.
	OnOpen  func(c *Conn, inbound bool)
	OnEvent func(c *Conn, ev models.Event)
	OnClose func(c *Conn)
}

// Endpoint is the single local network endpoint, created once per loaded
// profile.
type Endpoint struct {
	host host.Host
	opts Options
	mdns mdns.Service

	mu     sync.Mutex
	closed bool
}

// Conn is a live event stream to exactly one remote endpoint.
type Conn struct {
	stream  network.Stream
	peerID  peer.ID
	limiter *rate.Limiter
	maxLen  int

	wmu       sync.Mutex
	closeOnce sync.Once
}

// RemotePeer returns the remote's routing token, the string form of its
// derived peer ID.
func (c *Conn) RemotePeer() string { return c.peerID.String() }

// Send frames and writes one event. Safe for concurrent use.
func (c *Conn) Send(ev models.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if len(b) > c.maxLen {
		return fmt.Errorf("event too large: %d bytes", len(b))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.stream.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.stream.Write(hdr[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := c.stream.Write(b); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// Close tears down the underlying stream. Idempotent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.stream.Reset() })
	return err
}

// Bind creates the libp2p host under the deterministic identity for
// opts.Address and starts accepting inbound streams. An already-claimed
// listen address surfaces as ErrAddressInUse.
func Bind(opts Options) (*Endpoint, error) {
	priv, err := identity.KeyForAddress(opts.Address)
	if err != nil {
		return nil, err
	}
	listenHost := opts.ListenAddr
	if listenHost == "" {
		listenHost = "0.0.0.0"
	}
	listen := fmt.Sprintf("/ip4/%s/tcp/%d", listenHost, opts.ListenPort)
	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(listen),
	)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "address already in use") {
			return nil, fmt.Errorf("bind %s: %w", listen, ErrAddressInUse)
		}
		return nil, fmt.Errorf("bind %s: %w", listen, err)
	}
	if opts.MaxEventLen <= 0 {
		opts.MaxEventLen = defaultMaxEventLen
	}
	ep := &Endpoint{host: h, opts: opts}
	h.SetStreamHandler(ProtocolID, ep.handleInbound)

	for _, s := range opts.Bootstrap {
		ma, err := multiaddr.NewMultiaddr(s)
		if err != nil {
			logger.Warn("bootstrap_addr_invalid", "addr", s, "err", err)
			continue
		}
		pi, err := peer.AddrInfoFromP2pAddr(ma)
		if err != nil {
			logger.Warn("bootstrap_addr_invalid", "addr", s, "err", err)
			continue
		}
		h.Peerstore().AddAddrs(pi.ID, pi.Addrs, peerstore.PermanentAddrTTL)
	}

	if opts.MDNS {
		tag := opts.ServiceTag
		if tag == "" {
			tag = "backchannel"
		}
		svc := mdns.NewMdnsService(h, tag, &mdnsNotifee{h: h})
		if err := svc.Start(); err != nil {
			logger.Warn("mdns_start_failed", "err", err)
		} else {
			ep.mdns = svc
		}
	}
	logger.Info("endpoint_bound", "peer_id", h.ID().String(), "listen", listen)
	return ep, nil
}

// LocalPeer returns the endpoint's own routing token.
func (e *Endpoint) LocalPeer() string { return e.host.ID().String() }

// Addrs returns the endpoint's dialable multiaddrs, /p2p/ suffixed.
func (e *Endpoint) Addrs() []string {
	var out []string
	for _, a := range e.host.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", a, e.host.ID()))
	}
	return out
}

// Connect opens an outbound connection to the peer listening under the
// given derived address. An unknown or unroutable peer fails with
// ErrUnreachable; the caller reports and does not retry.
func (e *Endpoint) Connect(ctx context.Context, address string) (*Conn, error) {
	pid, err := identity.PeerIDForAddress(address)
	if err != nil {
		return nil, err
	}
	if pid == e.host.ID() {
		return nil, fmt.Errorf("refusing to dial self (%s)", address)
	}
	if len(e.host.Peerstore().Addrs(pid)) == 0 {
		return nil, fmt.Errorf("no known route to %s: %w", address, ErrUnreachable)
	}
	if err := e.host.Connect(ctx, peer.AddrInfo{ID: pid}); err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, ErrUnreachable)
	}
	s, err := e.host.NewStream(ctx, pid, ProtocolID)
	if err != nil {
		return nil, fmt.Errorf("open stream to %s: %w", address, ErrUnreachable)
	}
	c := e.newConn(s)
	go e.readLoop(c, false)
	return c, nil
}

// Close shuts the endpoint down, closing every live stream.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	if e.mdns != nil {
		_ = e.mdns.Close()
	}
	return e.host.Close()
}

func (e *Endpoint) newConn(s network.Stream) *Conn {
	rps := e.opts.RateRPS
	if rps <= 0 {
		rps = 50
	}
	burst := e.opts.RateBurst
	if burst <= 0 {
		burst = 100
	}
	return &Conn{
		stream:  s,
		peerID:  s.Conn().RemotePeer(),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		maxLen:  e.opts.MaxEventLen,
	}
}

// handleInbound accepts a new inbound stream without blocking further
// accepts; each connection reads on its own goroutine.
func (e *Endpoint) handleInbound(s network.Stream) {
	c := e.newConn(s)
	go e.readLoop(c, true)
}

func (e *Endpoint) readLoop(c *Conn, inbound bool) {
	logger.Debug("conn_open", "peer", c.RemotePeer(), "inbound", inbound)
	if e.opts.OnOpen != nil {
		e.opts.OnOpen(c, inbound)
	}
	defer func() {
		_ = c.Close()
		logger.Debug("conn_closed", "peer", c.RemotePeer())
		if e.opts.OnClose != nil {
			e.opts.OnClose(c)
		}
	}()
	var hdr [4]byte
	for {
		if _, err := io.ReadFull(c.stream, hdr[:]); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(hdr[:])
		if n == 0 || n > uint32(c.maxLen) {
			logger.Warn("conn_frame_oversize", "peer", c.RemotePeer(), "len", n)
			return
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(c.stream, buf); err != nil {
			return
		}
		if !c.limiter.Allow() {
			logger.Debug("conn_event_rate_limited", "peer", c.RemotePeer())
			continue
		}
		var ev models.Event
		if err := json.Unmarshal(buf, &ev); err != nil {
			// peer-supplied data is untrusted; drop and keep reading
			logger.Debug("conn_event_malformed", "peer", c.RemotePeer(), "err", err)
			continue
		}
		if e.opts.OnEvent != nil {
			e.opts.OnEvent(c, ev)
		}
	}
}

type mdnsNotifee struct {
	h host.Host
}

// HandlePeerFound records a discovered peer's addresses so later dials by
// derived address can succeed.
func (n *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == n.h.ID() {
		return
	}
	n.h.Peerstore().AddAddrs(pi.ID, pi.Addrs, peerstore.AddressTTL)
	logger.Debug("mdns_peer_found", "peer", pi.ID.String(), "addrs", len(pi.Addrs))
}
