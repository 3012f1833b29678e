// Package session implements the connection arena: a table of live
// Connections keyed by a stable (index, generation) Handle instead of the
// pointer cycles a server/connection/subsession graph would otherwise form
// (server -> connections -> subsessions -> back to server), per spec.md §9
// "Cyclic ownership" design note.
package session

import "sync"

// Class is a connection's protocol classification, assigned by the first
// handler that recognizes it.
type Class int

const (
	ClassUnknown Class = iota
	ClassRAOP
	ClassAirPlay
	ClassPTTH
	ClassHLS
)

func (c Class) String() string {
	switch c {
	case ClassRAOP:
		return "RAOP"
	case ClassAirPlay:
		return "AIRPLAY"
	case ClassPTTH:
		return "PTTH"
	case ClassHLS:
		return "HLS"
	default:
		return "UNKNOWN"
	}
}

// Handle identifies a Connection stably across its lifetime: Index selects
// a slot in the arena, Generation distinguishes a slot's current occupant
// from a prior, since-removed one reusing the same index.
type Handle struct {
	Index      int
	Generation int
}

// Arena owns the table of live connections. All methods are safe for
// concurrent use; the daemon's accept loop and per-connection goroutines
// all touch the same Arena.
type Arena struct {
	mu      sync.Mutex
	slots   []slot
	freeIdx []int
}

type slot struct {
	generation int
	occupied   bool
	conn       *Connection
}

// NewArena allocates an empty connection table.
func NewArena() *Arena {
	return &Arena{}
}

// Insert adds conn to the arena and returns its handle, also stamping it
// onto conn.Handle.
func (a *Arena) Insert(conn *Connection) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	var idx int
	if n := len(a.freeIdx); n > 0 {
		idx = a.freeIdx[n-1]
		a.freeIdx = a.freeIdx[:n-1]
		a.slots[idx].generation++
	} else {
		idx = len(a.slots)
		a.slots = append(a.slots, slot{})
	}
	a.slots[idx].occupied = true
	a.slots[idx].conn = conn

	h := Handle{Index: idx, Generation: a.slots[idx].generation}
	conn.Handle = h
	return h
}

// Remove evicts the connection at h, if it is still the current occupant
// of its slot.
func (a *Arena) Remove(h Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if h.Index < 0 || h.Index >= len(a.slots) {
		return
	}
	s := &a.slots[h.Index]
	if !s.occupied || s.generation != h.Generation {
		return
	}
	s.occupied = false
	s.conn = nil
	a.freeIdx = append(a.freeIdx, h.Index)
}

// Get looks up a connection by handle; ok is false if it has since been
// removed (a stale handle).
func (a *Arena) Get(h Handle) (conn *Connection, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if h.Index < 0 || h.Index >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[h.Index]
	if !s.occupied || s.generation != h.Generation {
		return nil, false
	}
	return s.conn, true
}

// Count returns the number of live connections.
func (a *Arena) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.slots) - len(a.freeIdx)
}

// ByClass returns the handles of every live connection of the given class,
// the "connection lookup by class" operation spec.md §4.5 names.
func (a *Arena) ByClass(class Class) []Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []Handle
	for i, s := range a.slots {
		if s.occupied && s.conn.Class == class {
			out = append(out, Handle{Index: i, Generation: s.generation})
		}
	}
	return out
}

// RemoveClassified evicts every connection whose class is not ClassUnknown,
// the "remove all classified connections" operation used during a session
// reset (spec.md §4.5).
func (a *Arena) RemoveClassified() []*Connection {
	a.mu.Lock()
	defer a.mu.Unlock()

	var removed []*Connection
	for i := range a.slots {
		s := &a.slots[i]
		if s.occupied && s.conn.Class != ClassUnknown {
			removed = append(removed, s.conn)
			s.occupied = false
			s.conn = nil
			a.freeIdx = append(a.freeIdx, i)
		}
	}
	return removed
}

// All returns every currently live connection, used by the daemon's
// cooperative loop to poll for pending side effects and timeouts.
func (a *Arena) All() []*Connection {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*Connection, 0, len(a.slots)-len(a.freeIdx))
	for _, s := range a.slots {
		if s.occupied {
			out = append(out, s.conn)
		}
	}
	return out
}
