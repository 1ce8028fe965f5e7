package core

import (
	"sort"
	"sync"
)

// PresenceEntry records the connection currently used to reach a user.
type PresenceEntry struct {
	UserID   int64
	Username string
	Client   *Client
}

// Registry maps user ids to their active connection.
// At most one entry exists per user; the most recent connection wins.
type Registry struct {
	mu      sync.RWMutex
	entries map[int64]PresenceEntry
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int64]PresenceEntry)}
}

// Put stores entry for its user and returns the handle it replaced, if any.
func (r *Registry) Put(entry PresenceEntry) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.entries[entry.UserID]
	r.entries[entry.UserID] = entry
	if !ok {
		return nil
	}
	return prev.Client
}

// Remove deletes the entry for userID. It reports whether an entry existed.
func (r *Registry) Remove(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[userID]; !ok {
		return false
	}
	delete(r.entries, userID)
	return true
}

// RemoveIfCurrent deletes the entry for userID only while it still points at c.
// A superseded handle never evicts the newer entry.
func (r *Registry) RemoveIfCurrent(userID int64, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[userID]
	if !ok || entry.Client != c {
		return false
	}
	delete(r.entries, userID)
	return true
}

// Get returns the entry for userID.
func (r *Registry) Get(userID int64) (PresenceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[userID]
	return entry, ok
}

// List returns a snapshot of all entries ordered by user id.
func (r *Registry) List() []PresenceEntry {
	r.mu.RLock()
	list := make([]PresenceEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		list = append(list, entry)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].UserID < list[j].UserID })
	return list
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
