package ws

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"collabcore/backend/internal/collab"
	"collabcore/backend/internal/lww"
)

type Hub struct {
	// 保护 rooms 这个 map；房间内的集合本身是并发安全的
	mu sync.RWMutex
	// docID -> set of connections
	// 房间里存连接而不是 userID：一个用户可开多个标签页/设备，广播要逐连接发
	rooms map[string]mapset.Set[*Conn]
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]mapset.Set[*Conn])}
}

// Join 将连接加入指定文档房间
func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[docID]
	if !ok {
		room = mapset.NewSet[*Conn]()
		h.rooms[docID] = room
	}
	room.Add(c)
}

// Leave 将连接从指定文档房间移除，房间空了就删掉
func (h *Hub) Leave(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[docID]; ok {
		room.Remove(c)
		if room.Cardinality() == 0 {
			delete(h.rooms, docID)
		}
	}
}

// Conns 房间内连接的快照
func (h *Hub) Conns(docID string) []*Conn {
	h.mu.RLock()
	room, ok := h.rooms[docID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return room.ToSlice()
}

func (h *Hub) RoomSize(docID string) int {
	return len(h.Conns(docID))
}

func (h *Hub) broadcast(docID string, except *Conn, msg OutboundMessage) {
	for _, c := range h.Conns(docID) {
		if c != except {
			c.Enqueue(msg)
		}
	}
}

// OpApplied 由协作服务在文档锁内调用，房间里每个连接按 revision 顺序收到消息：
// 提交该操作的连接收到 op_applied 确认，其他连接收到 op_broadcast
func (h *Hub) OpApplied(docID string, applied collab.AppliedOp) {
	ack := ackMessage(docID, applied)
	bc := broadcastMessage(docID, applied)
	for _, c := range h.Conns(docID) {
		if c.ownsClient(applied.ClientID) {
			c.Enqueue(ack)
		} else {
			c.Enqueue(bc)
		}
	}
}

func ackMessage(docID string, applied collab.AppliedOp) OpAppliedMessage {
	return OpAppliedMessage{
		Type:            "op_applied",
		DocID:           docID,
		OperationID:     applied.OperationID,
		BaseRevision:    applied.BaseRevision,
		CurrentRevision: applied.Revision,
		ClientID:        applied.ClientID,
		ClientSeq:       applied.ClientSeq,
		Ops:             applied.Ops,
	}
}

func broadcastMessage(docID string, applied collab.AppliedOp) OpBroadcastMessage {
	return OpBroadcastMessage{
		Type:        "op_broadcast",
		DocID:       docID,
		OperationID: applied.OperationID,
		Revision:    applied.Revision,
		AuthorID:    applied.AuthorID,
		ClientID:    applied.ClientID,
		ClientSeq:   applied.ClientSeq,
		Ops:         applied.Ops,
		AppliedAt:   applied.AppliedAt,
	}
}

func (h *Hub) BroadcastMeta(docID string, except *Conn, u lww.Update) {
	h.broadcast(docID, except, MetaMessage{Type: "meta_broadcast", DocID: docID, Update: u, Applied: true})
}

func (h *Hub) BroadcastPresence(docID string, members []collab.Member) {
	h.broadcast(docID, nil, ServerMessage{Type: "presence", DocID: docID, Members: toPresenceMembers(members)})
}

// NotifyMeta 供 HTTP 写元数据时调用，推给房间内全部连接
func (h *Hub) NotifyMeta(docID string, u lww.Update) {
	h.BroadcastMeta(docID, nil, u)
}
