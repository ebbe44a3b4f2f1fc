package channel

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/maeldubois/numduel-backend/internal/protocol"
)

func TestCore_AdmitAssignsUniqueIDs(t *testing.T) {
	c := NewCore(zap.NewNop())
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id, err := c.Admit("user", make(chan []byte, 1))
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate id %q", id)
		seen[id] = true
	}
	assert.Equal(t, 200, c.Len())
}

func TestCore_SendToUnknownIDIsNoOp(t *testing.T) {
	c := NewCore(zap.NewNop())
	out := make(chan []byte, 1)
	_, err := c.Admit("alice", out)
	require.NoError(t, err)

	c.Send("nobody", "hello")
	assert.Empty(t, out)
}

func TestCore_SendMarshalsNonStringPayloads(t *testing.T) {
	c := NewCore(zap.NewNop())
	out := make(chan []byte, 1)
	id, err := c.Admit("alice", out)
	require.NoError(t, err)

	c.Send(id, protocol.UserRegistrated{Event: protocol.EvtUserRegistrated, ID: id})

	var m map[string]any
	require.NoError(t, json.Unmarshal(<-out, &m))
	assert.Equal(t, protocol.EvtUserRegistrated, m["event"])
	assert.Equal(t, id, m["id"])
}

func TestCore_BroadcastFollowsAdmissionOrder(t *testing.T) {
	c := NewCore(zap.NewNop())
	var ids []string
	var outs []chan []byte
	for _, name := range []string{"a", "b", "c"} {
		out := make(chan []byte, 1)
		id, err := c.Admit(name, out)
		require.NoError(t, err)
		ids = append(ids, id)
		outs = append(outs, out)
	}

	roster := c.Roster()
	require.Len(t, roster, 3)
	for i, u := range roster {
		assert.Equal(t, ids[i], u.ID)
	}

	c.BroadcastAll("ping")
	for _, out := range outs {
		assert.Equal(t, []byte("ping"), <-out)
	}
}

func TestCore_RekeyPreservesAdmissionOrder(t *testing.T) {
	c := NewCore(zap.NewNop())
	first, err := c.Admit("alice", make(chan []byte, 1))
	require.NoError(t, err)
	_, err = c.Admit("bob", make(chan []byte, 1))
	require.NoError(t, err)

	require.NoError(t, c.Rekey(first, "p1"))

	roster := c.Roster()
	require.Len(t, roster, 2)
	assert.Equal(t, "p1", roster[0].ID)
	assert.Equal(t, "alice", roster[0].Username)

	_, ok := c.Get(first)
	assert.False(t, ok)
	_, ok = c.Get("p1")
	assert.True(t, ok)
}

func TestCore_RekeyErrors(t *testing.T) {
	c := NewCore(zap.NewNop())
	id, err := c.Admit("alice", make(chan []byte, 1))
	require.NoError(t, err)
	other, err := c.Admit("bob", make(chan []byte, 1))
	require.NoError(t, err)

	assert.ErrorIs(t, c.Rekey("ghost", "p1"), ErrUnknownSession)
	assert.ErrorIs(t, c.Rekey(id, other), ErrDuplicateID)
}

func TestCore_FullOutboxDropsFrameWithoutBlocking(t *testing.T) {
	c := NewCore(zap.NewNop())
	out := make(chan []byte, 1)
	id, err := c.Admit("slow", out)
	require.NoError(t, err)

	c.Send(id, "first")
	c.Send(id, "second") // must not block

	assert.Equal(t, []byte("first"), <-out)
	assert.Empty(t, out)
}

func TestCore_RemoveClosesOutbox(t *testing.T) {
	c := NewCore(zap.NewNop())
	out := make(chan []byte, 1)
	id, err := c.Admit("alice", out)
	require.NoError(t, err)

	c.Remove(id)
	_, open := <-out
	assert.False(t, open)
	assert.Equal(t, 0, c.Len())

	c.Remove(id) // second remove is a no-op
}
