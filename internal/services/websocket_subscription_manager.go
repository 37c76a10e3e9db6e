package services

import (
	"sync"

	"shieldpool/internal/pool"
)

// WebSocketSubscriptionManager tracks which event kinds each client wants.
// A client with no subscriptions receives every kind.
type WebSocketSubscriptionManager struct {
	mu      sync.RWMutex
	clients map[string]map[pool.EventKind]bool
}

// NewWebSocketSubscriptionManager creates a new subscription manager
func NewWebSocketSubscriptionManager() *WebSocketSubscriptionManager {
	return &WebSocketSubscriptionManager{
		clients: make(map[string]map[pool.EventKind]bool),
	}
}

// RegisterClient adds a client with no filters
func (m *WebSocketSubscriptionManager) RegisterClient(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[clientID] = make(map[pool.EventKind]bool)
}

// UnregisterClient removes a client and all its subscriptions
func (m *WebSocketSubscriptionManager) UnregisterClient(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, clientID)
}

// Subscribe narrows the client to the given kinds
func (m *WebSocketSubscriptionManager) Subscribe(clientID string, kinds ...pool.EventKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs, ok := m.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}
	for _, k := range kinds {
		if !knownKind(k) {
			return ErrUnknownEventKind
		}
		subs[k] = true
	}
	return nil
}

// Unsubscribe removes kinds from the client's filter
func (m *WebSocketSubscriptionManager) Unsubscribe(clientID string, kinds ...pool.EventKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs, ok := m.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}
	for _, k := range kinds {
		delete(subs, k)
	}
	return nil
}

// Wants reports whether clientID should receive an event of kind
func (m *WebSocketSubscriptionManager) Wants(clientID string, kind pool.EventKind) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	subs, ok := m.clients[clientID]
	if !ok {
		return false
	}
	return len(subs) == 0 || subs[kind]
}

func knownKind(k pool.EventKind) bool {
	switch k {
	case pool.EventCommitmentInserted, pool.EventRootUpdated, pool.EventWithdrawalProcessed, pool.EventPoolConfigUpdated:
		return true
	}
	return false
}

// Error is a subscription failure reported back to the client
type Error string

var (
	ErrClientNotFound   = NewError("client not found")
	ErrUnknownEventKind = NewError("unknown event kind")
)

// NewError creates a new error
func NewError(msg string) Error {
	return Error(msg)
}

func (e Error) Error() string {
	return string(e)
}
