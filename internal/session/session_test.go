package session

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestConnection wraps one half of an in-memory pipe, since
// net.TCPConn's zero value panics on LocalAddr/RemoteAddr.
func newTestConnection() *Connection {
	client, server := net.Pipe()
	server.Close()
	return NewConnection(client, nil)
}

func TestArenaInsertGetRemove(t *testing.T) {
	a := NewArena()
	c := newTestConnection()

	h := a.Insert(c)
	require.Equal(t, h, c.Handle)
	require.Equal(t, 1, a.Count())

	got, ok := a.Get(h)
	require.True(t, ok)
	require.Same(t, c, got)

	a.Remove(h)
	require.Equal(t, 0, a.Count())

	_, ok = a.Get(h)
	require.False(t, ok)
}

func TestArenaReusesSlotWithBumpedGeneration(t *testing.T) {
	a := NewArena()
	c1 := newTestConnection()
	h1 := a.Insert(c1)
	a.Remove(h1)

	c2 := newTestConnection()
	h2 := a.Insert(c2)

	require.Equal(t, h1.Index, h2.Index)
	require.Greater(t, h2.Generation, h1.Generation)

	// the stale handle must not resolve to the new occupant
	_, ok := a.Get(h1)
	require.False(t, ok)
	got, ok := a.Get(h2)
	require.True(t, ok)
	require.Same(t, c2, got)
}

func TestArenaByClass(t *testing.T) {
	a := NewArena()
	raop := newTestConnection()
	raop.Class = ClassRAOP
	airplay := newTestConnection()
	airplay.Class = ClassAirPlay

	hRAOP := a.Insert(raop)
	a.Insert(airplay)

	handles := a.ByClass(ClassRAOP)
	require.Equal(t, []Handle{hRAOP}, handles)
}

func TestArenaRemoveClassified(t *testing.T) {
	a := NewArena()
	unknown := newTestConnection()
	classified := newTestConnection()
	classified.Class = ClassPTTH

	a.Insert(unknown)
	a.Insert(classified)

	removed := a.RemoveClassified()
	require.Equal(t, []*Connection{classified}, removed)
	require.Equal(t, 1, a.Count())

	all := a.All()
	require.Equal(t, []*Connection{unknown}, all)
}

func TestClassString(t *testing.T) {
	require.Equal(t, "RAOP", ClassRAOP.String())
	require.Equal(t, "AIRPLAY", ClassAirPlay.String())
	require.Equal(t, "PTTH", ClassPTTH.String())
	require.Equal(t, "HLS", ClassHLS.String())
	require.Equal(t, "UNKNOWN", ClassUnknown.String())
	require.Equal(t, "UNKNOWN", Class(99).String())
}
