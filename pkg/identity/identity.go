package identity

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"backchannel/pkg/models"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// DeriveAddress maps a human-chosen handle to its routing token. Every byte
// outside [A-Za-z0-9] becomes '_', so the token is safe for any address
// space. Deterministic: handles differing only in disallowed characters
// collide, which is accepted behavior.
func DeriveAddress(handle string) string {
	b := []byte(handle)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}

// KeyForAddress returns the deterministic ed25519 identity for an address.
// The key is seeded with SHA-256 of the address, so any client can compute
// a peer's network identity knowing only the handle.
func KeyForAddress(address string) (crypto.PrivKey, error) {
	seed := sha256.Sum256([]byte("backchannel:" + address))
	priv, _, err := crypto.GenerateEd25519Key(bytes.NewReader(seed[:]))
	if err != nil {
		return nil, fmt.Errorf("derive key for %q: %w", address, err)
	}
	return priv, nil
}

// PeerIDForAddress returns the libp2p peer ID a client listening under the
// given address will present.
func PeerIDForAddress(address string) (peer.ID, error) {
	priv, err := KeyForAddress(address)
	if err != nil {
		return "", err
	}
	pid, err := peer.IDFromPublicKey(priv.GetPublic())
	if err != nil {
		return "", fmt.Errorf("peer id for %q: %w", address, err)
	}
	return pid, nil
}

// ResolveContactForAddress scans known contacts for one whose derived
// address matches. A miss signals "unknown sender" to the caller, not an
// error.
func ResolveContactForAddress(contacts []models.Contact, address string) (string, bool) {
	for _, c := range contacts {
		if c.IsBot {
			continue
		}
		if DeriveAddress(c.Handle) == address {
			return c.ID, true
		}
	}
	return "", false
}

// ResolveContactForPeer scans known contacts for one whose handle derives
// the given peer ID. Used when an inbound connection has not yet been
// re-keyed by handshake.
func ResolveContactForPeer(contacts []models.Contact, peerID string) (string, bool) {
	for _, c := range contacts {
		if c.IsBot {
			continue
		}
		pid, err := PeerIDForAddress(DeriveAddress(c.Handle))
		if err != nil {
			continue
		}
		if pid.String() == peerID {
			return c.ID, true
		}
	}
	return "", false
}
