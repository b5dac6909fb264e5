package hub

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenroom-relay/domain"
)

type mockConn struct {
	id      string
	session domain.Session
}

func (m *mockConn) ID() string               { return m.id }
func (m *mockConn) Send(data []byte) error   { return nil }
func (m *mockConn) Open() bool               { return true }
func (m *mockConn) Close() error             { return nil }
func (m *mockConn) Session() *domain.Session { return &m.session }

func memberIDs(conns []domain.Connection) []string {
	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.ID())
	}
	return ids
}

func TestRegistry_Join(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(*Registry)
		wantMembers map[string][]string
	}{
		{
			name: "creates room on first join",
			setup: func(r *Registry) {
				r.Join(&mockConn{id: "c1"}, "lobby")
			},
			wantMembers: map[string][]string{"lobby": {"c1"}},
		},
		{
			name: "multiple members in one room",
			setup: func(r *Registry) {
				r.Join(&mockConn{id: "c1"}, "lobby")
				r.Join(&mockConn{id: "c2"}, "lobby")
			},
			wantMembers: map[string][]string{"lobby": {"c1", "c2"}},
		},
		{
			name: "rejoining the same room keeps one membership",
			setup: func(r *Registry) {
				c := &mockConn{id: "c1"}
				r.Join(c, "lobby")
				r.Join(c, "lobby")
			},
			wantMembers: map[string][]string{"lobby": {"c1"}},
		},
		{
			name: "joining another room leaves the first",
			setup: func(r *Registry) {
				c1 := &mockConn{id: "c1"}
				r.Join(c1, "lobby")
				r.Join(&mockConn{id: "c2"}, "lobby")
				r.Join(c1, "token-0xABC")
			},
			wantMembers: map[string][]string{
				"lobby":       {"c2"},
				"token-0xABC": {"c1"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			tt.setup(r)

			rooms, _ := r.Stats()
			assert.Equal(t, len(tt.wantMembers), rooms)
			for room, want := range tt.wantMembers {
				assert.ElementsMatch(t, want, memberIDs(r.Members(room)), "room %s", room)
			}
		})
	}
}

func TestRegistry_SwitchRoomDeletesEmptyRoom(t *testing.T) {
	r := New()
	c := &mockConn{id: "c1"}

	r.Join(c, "a")
	r.Join(c, "b")

	assert.Nil(t, r.Members("a"))
	room, ok := r.RoomOf(c)
	require.True(t, ok)
	assert.Equal(t, "b", room)

	rooms, clients := r.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, clients)
}

func TestRegistry_Leave(t *testing.T) {
	r := New()
	c1 := &mockConn{id: "c1"}
	c2 := &mockConn{id: "c2"}
	r.Join(c1, "lobby")
	r.Join(c2, "lobby")

	assert.Equal(t, "lobby", r.Leave(c1))
	assert.ElementsMatch(t, []string{"c2"}, memberIDs(r.Members("lobby")))
	_, ok := r.RoomOf(c1)
	assert.False(t, ok)

	assert.Equal(t, "lobby", r.Leave(c2))
	assert.Nil(t, r.Members("lobby"))

	rooms, clients := r.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, clients)
}

func TestRegistry_LeaveWithoutRoom(t *testing.T) {
	r := New()
	c := &mockConn{id: "c1"}

	assert.Equal(t, "", r.Leave(c))
	assert.Equal(t, "", r.Leave(c))

	rooms, clients := r.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, clients)
}

func TestRegistry_MembersUnknownRoom(t *testing.T) {
	r := New()
	assert.Empty(t, r.Members("nowhere"))
}

func TestRegistry_MembersIsSnapshot(t *testing.T) {
	r := New()
	c1 := &mockConn{id: "c1"}
	r.Join(c1, "lobby")
	r.Join(&mockConn{id: "c2"}, "lobby")

	snapshot := r.Members("lobby")
	r.Leave(c1)

	assert.Len(t, snapshot, 2)
	assert.Len(t, r.Members("lobby"), 1)
}

func TestRegistry_ConcurrentJoinLeave(t *testing.T) {
	r := New()
	rooms := []string{"a", "b", "c"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := &mockConn{id: fmt.Sprintf("c%d", i)}
			for j := 0; j < 20; j++ {
				r.Join(c, rooms[(i+j)%len(rooms)])
				_ = r.Members(rooms[j%len(rooms)])
			}
			if i%2 == 0 {
				r.Leave(c)
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for _, room := range rooms {
		members := r.Members(room)
		if members != nil {
			assert.NotEmpty(t, members, "room %s kept with no members", room)
		}
		total += len(members)
	}
	_, clients := r.Stats()
	assert.Equal(t, 25, clients)
	assert.Equal(t, 25, total)
}

func TestRegistry_OnRoomCountTracksConcurrentChanges(t *testing.T) {
	r := New()
	var observed []int
	r.OnRoomCount(func(n int) { observed = append(observed, n) })
	require.Equal(t, []int{0}, observed)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := &mockConn{id: fmt.Sprintf("c%d", i)}
			r.Join(c, fmt.Sprintf("room-%d", i%7))
			if i%3 == 0 {
				r.Leave(c)
			}
		}(i)
	}
	wg.Wait()

	rooms, _ := r.Stats()
	require.NotEmpty(t, observed)
	assert.Equal(t, rooms, observed[len(observed)-1])
}
