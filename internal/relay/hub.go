package relay

import (
	"crypto/subtle"
	"errors"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Admission errors
var (
	ErrRelayFull   = errors.New("relay is full")
	ErrBadPassword = errors.New("wrong password")
)

var errDuplicateID = errors.New("peer already joined")

// Message is a line forwarded from one peer to the others
type Message struct {
	From    string
	Payload string
}

// Hub admits peers up to its capacity and forwards their traffic
type Hub struct {
	name     string
	capacity int
	password string
	peers    map[string]*Peer
	mu       sync.RWMutex
}

// NewHub creates a hub. An empty password admits everyone.
func NewHub(name string, capacity int, password string) *Hub {
	return &Hub{
		name:     name,
		capacity: capacity,
		password: password,
		peers:    make(map[string]*Peer),
	}
}

// Name returns the tunnel name
func (h *Hub) Name() string { return h.name }

// Capacity returns the maximum number of peers
func (h *Hub) Capacity() int { return h.capacity }

// HasPassword reports whether peers must authenticate
func (h *Hub) HasPassword() bool { return h.password != "" }

// Count returns the number of connected peers
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Peers returns the sorted ids of connected peers
func (h *Hub) Peers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.peers))
	for id := range h.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Join admits p if the password matches and there is room
func (h *Hub) Join(p *Peer, password string) error {
	if h.password != "" && subtle.ConstantTimeCompare([]byte(h.password), []byte(password)) != 1 {
		return ErrBadPassword
	}

	h.mu.Lock()
	if _, exists := h.peers[p.ID]; exists {
		h.mu.Unlock()
		return errDuplicateID
	}
	if len(h.peers) >= h.capacity {
		h.mu.Unlock()
		return ErrRelayFull
	}
	h.peers[p.ID] = p
	count := len(h.peers)
	h.mu.Unlock()

	log.WithFields(log.Fields{"peer": p.ID, "clients": count, "max_clients": h.capacity}).Info("Peer joined")
	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithField("peers", h.Peers()).Debug("Relay members")
	}
	h.notify(p.ID, "JOIN "+p.ID)
	return nil
}

// Leave removes p; it is a no-op for peers that never joined
func (h *Hub) Leave(p *Peer) {
	h.mu.Lock()
	if current, exists := h.peers[p.ID]; !exists || current != p {
		h.mu.Unlock()
		return
	}
	delete(h.peers, p.ID)
	count := len(h.peers)
	h.mu.Unlock()

	log.WithFields(log.Fields{"peer": p.ID, "clients": count}).Info("Peer left")
	h.notify(p.ID, "LEAVE "+p.ID)
}

// Relay forwards msg to every peer except the sender
func (h *Hub) Relay(msg Message) {
	h.notify(msg.From, msg.From+" "+msg.Payload)
}

// notify sends line to every peer except skip
func (h *Hub) notify(skip, line string) {
	h.mu.RLock()
	targets := make([]*Peer, 0, len(h.peers))
	for id, p := range h.peers {
		if id != skip {
			targets = append(targets, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range targets {
		if err := p.send(line); err != nil {
			log.WithField("peer", p.ID).Warnf("Dropping line: %v", err)
		}
	}
}

// Close disconnects every peer
func (h *Hub) Close() {
	h.mu.Lock()
	peers := h.peers
	h.peers = make(map[string]*Peer)
	h.mu.Unlock()

	for id, p := range peers {
		log.WithField("peer", id).Debug("Closing peer")
		p.close()
	}
}
