package ws

import (
	"context"
	"sync"
	"testing"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabcore/backend/internal/collab"
	"collabcore/backend/internal/ot"
)

func newBareConn(userID uint64) *Conn {
	return &Conn{userID: userID, send: make(chan OutboundMessage, 4), clients: mapset.NewSet[string]()}
}

func TestHub_JoinLeave(t *testing.T) {
	h := NewHub()
	a, b := newBareConn(1), newBareConn(2)

	h.Join("d1", a)
	h.Join("d1", b)
	h.Join("d1", a)
	assert.Equal(t, 2, h.RoomSize("d1"))

	h.Leave("d1", a)
	assert.Equal(t, 1, h.RoomSize("d1"))
	h.Leave("d1", b)
	assert.Equal(t, 0, h.RoomSize("d1"))
	assert.Empty(t, h.rooms)
}

func TestHub_OpAppliedAcksOwnerAndBroadcastsOthers(t *testing.T) {
	h := NewHub()
	a, b := newBareConn(1), newBareConn(2)
	a.clients.Add("tab-1")
	h.Join("d1", a)
	h.Join("d1", b)

	applied := collab.AppliedOp{Revision: 3, BaseRevision: 2, ClientID: "tab-1", ClientSeq: 9,
		Ops: []ot.Op{ot.Insert(0, "x")}, AppliedAt: time.Now()}
	h.OpApplied("d1", applied)

	require.Len(t, a.send, 1)
	ack := (<-a.send).(OpAppliedMessage)
	assert.Equal(t, "op_applied", ack.Type)
	assert.Equal(t, uint64(3), ack.CurrentRevision)
	assert.Equal(t, uint64(2), ack.BaseRevision)
	assert.Equal(t, uint64(9), ack.ClientSeq)

	require.Len(t, b.send, 1)
	msg := (<-b.send).(OpBroadcastMessage)
	assert.Equal(t, "op_broadcast", msg.Type)
	assert.Equal(t, uint64(3), msg.Revision)
}

// 服务在锁内调用 OpApplied，每个连接收到的 revision 严格递增
func TestHub_ConcurrentSubmitsArriveInRevisionOrder(t *testing.T) {
	h := NewHub()
	svc := collab.NewInMemoryService(collab.Deps{Listener: h, HistoryCap: 1024})
	watcher := &Conn{userID: 9, send: make(chan OutboundMessage, 512), clients: mapset.NewSet[string]()}
	h.Join("d1", watcher)

	ctx := context.Background()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(client string) {
			defer wg.Done()
			for seq := uint64(1); seq <= 50; seq++ {
				rev, _ := svc.CurrentRevision(ctx, "d1")
				_, err := svc.Submit(ctx, "d1", 1, rev, client, seq, []ot.Op{ot.Insert(0, client)})
				assert.NoError(t, err)
			}
		}(string(rune('a' + w)))
	}
	wg.Wait()

	require.Len(t, watcher.send, 200)
	for want := uint64(1); want <= 200; want++ {
		msg := (<-watcher.send).(OpBroadcastMessage)
		require.Equal(t, want, msg.Revision)
	}
}

func TestConn_EnqueueAfterClose(t *testing.T) {
	c := newBareConn(1)
	for i := 0; i < 4; i++ {
		assert.True(t, c.Enqueue(ServerMessage{Type: "x"}))
	}
	// 队列满了丢弃
	assert.False(t, c.Enqueue(ServerMessage{Type: "x"}))

	c.close()
	c.close()
	assert.False(t, c.Enqueue(ServerMessage{Type: "x"}))
}
