package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorilla/websocket"

	"collabcore/backend/internal/collab"
)

var (
	// PresenceTTL 心跳写入的在线有效期
	PresenceTTL = 600 * time.Second
	// 单次提交最多等待的时间（含信号量排队）
	SubmitTimeout = 200 * time.Millisecond
)

const maxMessageSize = 1 << 20

type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	docID    string
	userID   uint64
	username string

	mu     sync.Mutex
	closed bool
	send   chan OutboundMessage

	// 本连接提交过的 clientId，Hub 据此决定发确认还是广播
	clients mapset.Set[string]

	//协作引擎服务
	svc collab.Service
	// 信号量控制
	sem *collab.SemaphoreControl
}

func NewConn(ws *websocket.Conn, hub *Hub, userID uint64, username string, svc collab.Service, sem *collab.SemaphoreControl) *Conn {
	return &Conn{ws: ws, hub: hub, userID: userID, username: username, send: make(chan OutboundMessage, 64), clients: mapset.NewSet[string](), svc: svc, sem: sem}
}

// Enqueue 非阻塞入队，队列满或连接已关闭时丢弃
func (c *Conn) Enqueue(msg OutboundMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		log.Printf("send queue full, drop message type=%s user=%d", msg.MessageType(), c.userID)
		return false
	}
}

func (c *Conn) ownsClient(clientID string) bool {
	return c.clients != nil && c.clients.Contains(clientID)
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Conn) sendError(err error) {
	c.Enqueue(ServerMessage{Type: "error", DocID: c.docID, Code: errorCode(err), Content: err.Error()})
}

func (c *Conn) readLoop(ctx context.Context) {
	defer c.close()
	defer c.leave(context.Background())

	c.ws.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("read error (user=%d, doc=%s): %v", c.userID, c.docID, err)
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// 单条消息格式错误不断开连接
			c.sendError(errors.Join(ErrMalformedMessage, err))
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Conn) handle(ctx context.Context, msg ClientMessage) {
	switch msg.Type {
	case "heartbeat":
		c.heartbeat(ctx)

	case "createDocument":
		docID, err := c.svc.CreateDocument(ctx, c.userID, msg.DocTitle)
		if err != nil {
			log.Printf("create document error user=%d title=%q: %v", c.userID, msg.DocTitle, err)
			c.sendError(err)
			return
		}
		c.Enqueue(ServerMessage{Type: "createDocument", DocID: docID, Content: msg.DocTitle})
		c.join(ctx, docID)

	case "joinDocument":
		// 可以直接给 docId，也可以按标题查找
		docID := msg.DocID
		if docID == "" && msg.DocTitle != "" {
			id, err := c.svc.GetDocumentID(ctx, msg.DocTitle)
			if err != nil {
				log.Printf("get document id error title=%q: %v", msg.DocTitle, err)
				c.sendError(err)
				return
			}
			docID = id
		}
		if docID == "" {
			c.sendError(ErrMalformedMessage)
			return
		}
		c.join(ctx, docID)

	case "show_alive_members":
		if !c.inDocument() {
			return
		}
		members, err := c.svc.AliveMembers(ctx, c.docID)
		if err != nil {
			log.Printf("get alive members error doc=%s: %v", c.docID, err)
			c.sendError(err)
			return
		}
		c.Enqueue(ServerMessage{Type: "show_alive_members", DocID: c.docID, Members: toPresenceMembers(members)})

	case "op_submit":
		c.handleOpSubmit(ctx, OpSubmitMessage{
			Type:         msg.Type,
			DocID:        c.targetDoc(msg.DocID),
			BaseRevision: msg.BaseRevision,
			ClientID:     msg.ClientID,
			ClientSeq:    msg.ClientSeq,
			Ops:          msg.Ops,
		})

	case "meta_set":
		c.handleMetaSet(ctx, c.targetDoc(msg.DocID), msg)

	case "ops_since":
		docID := c.targetDoc(msg.DocID)
		applied, err := c.svc.OpsSince(ctx, docID, msg.BaseRevision, 0)
		if err != nil {
			c.sendError(err)
			return
		}
		rev, _ := c.svc.CurrentRevision(ctx, docID)
		c.Enqueue(ServerMessage{Type: "ops_since", DocID: docID, Revision: rev, Applied: applied})

	case "saveDocument":
		docID := c.targetDoc(msg.DocID)
		if err := c.svc.SaveSnapshot(ctx, docID); err != nil {
			log.Printf("save document error doc=%s: %v", docID, err)
			c.sendError(err)
			return
		}
		c.Enqueue(ServerMessage{Type: "saveDocument", DocID: docID, Content: "saved"})

	case "loadDocumentContent":
		docID := c.targetDoc(msg.DocID)
		content, revision, err := c.svc.LoadDocumentContent(ctx, docID)
		if err != nil {
			log.Printf("load document content error doc=%s: %v", docID, err)
			c.sendError(err)
			return
		}
		c.Enqueue(ServerMessage{Type: "loadDocumentContent", DocID: docID, Content: content, Revision: revision})

	default:
		c.Enqueue(ServerMessage{Type: "ignored", Content: "Unknown message type"})
	}
}

// targetDoc 消息没带 docId 时用当前房间
func (c *Conn) targetDoc(docID string) string {
	if docID != "" {
		return docID
	}
	return c.docID
}

func (c *Conn) inDocument() bool {
	if c.docID == "" {
		c.sendError(ErrNotInDocument)
		return false
	}
	return true
}

// join 切换到 docID 房间：离开旧房间，写入在线状态，回传当前内容和元数据供全量同步
func (c *Conn) join(ctx context.Context, docID string) {
	if c.docID != "" && c.docID != docID {
		c.leave(ctx)
	}
	c.docID = docID
	c.hub.Join(docID, c)

	content, rev, err := c.svc.LoadDocumentContent(ctx, docID)
	if err != nil {
		log.Printf("load document error doc=%s: %v", docID, err)
		c.hub.Leave(docID, c)
		c.docID = ""
		c.sendError(err)
		return
	}
	if _, err := c.svc.Heartbeat(ctx, docID, c.userID, c.username, PresenceTTL); err != nil {
		log.Printf("heartbeat error doc=%s user=%d: %v", docID, c.userID, err)
	}
	meta, err := c.svc.MetaEntries(ctx, docID)
	if err != nil {
		log.Printf("load meta error doc=%s: %v", docID, err)
	}
	c.Enqueue(ServerMessage{Type: "joinDocument", DocID: docID, Revision: rev, Content: content, Meta: meta})
	c.broadcastPresence(ctx)
}

// leave 离开当前房间并写入离线墓碑
func (c *Conn) leave(ctx context.Context) {
	if c.docID == "" {
		return
	}
	docID := c.docID
	c.hub.Leave(docID, c)
	c.docID = ""
	if _, err := c.svc.Leave(ctx, docID, c.userID); err != nil {
		log.Printf("leave error doc=%s user=%d: %v", docID, c.userID, err)
		return
	}
	members, err := c.svc.AliveMembers(ctx, docID)
	if err == nil {
		c.hub.BroadcastPresence(docID, members)
	}
}

func (c *Conn) heartbeat(ctx context.Context) {
	if !c.inDocument() {
		return
	}
	if _, err := c.svc.Heartbeat(ctx, c.docID, c.userID, c.username, PresenceTTL); err != nil {
		log.Printf("heartbeat error doc=%s user=%d: %v", c.docID, c.userID, err)
		c.sendError(err)
		return
	}
	members, err := c.svc.AliveMembers(ctx, c.docID)
	if err != nil {
		log.Printf("get members error doc=%s: %v", c.docID, err)
	}
	c.Enqueue(ServerMessage{Type: "presence", DocID: c.docID, Members: toPresenceMembers(members)})
	c.Enqueue(ServerMessage{Type: "feedback", Content: "Heartbeat received"})
}

func (c *Conn) broadcastPresence(ctx context.Context) {
	members, err := c.svc.AliveMembers(ctx, c.docID)
	if err != nil {
		log.Printf("get members error doc=%s: %v", c.docID, err)
		return
	}
	c.hub.BroadcastPresence(c.docID, members)
}

func (c *Conn) handleOpSubmit(ctx context.Context, msg OpSubmitMessage) {
	submitCtx, cancel := context.WithTimeout(ctx, SubmitTimeout)
	defer cancel()

	if c.sem != nil {
		if err := c.sem.Acquire(submitCtx); err != nil {
			c.sendError(err)
			return
		}
		defer c.sem.Release()
	}

	c.clients.Add(msg.ClientID)
	applied, err := c.svc.Submit(submitCtx, msg.DocID, c.userID,
		msg.BaseRevision, msg.ClientID, msg.ClientSeq, msg.Ops)
	if err != nil {
		c.sendError(err)
		return
	}
	// 在房间里时确认由 Hub 在文档锁内按顺序发出；提交到其他文档时直接回确认
	if msg.DocID != c.docID {
		c.Enqueue(ackMessage(msg.DocID, applied))
	}
}

func (c *Conn) handleMetaSet(ctx context.Context, docID string, msg ClientMessage) {
	if msg.Meta == nil {
		c.sendError(ErrMalformedMessage)
		return
	}
	applied, err := c.svc.SetMeta(ctx, docID, *msg.Meta)
	if err != nil {
		c.sendError(err)
		return
	}
	c.Enqueue(MetaMessage{Type: "meta_applied", DocID: docID, Update: *msg.Meta, Applied: applied})
	if applied {
		c.hub.BroadcastMeta(docID, c, *msg.Meta)
	}
}

func (c *Conn) writeLoop() {
	// 持续消费通道中的消息，直到 readLoop 退出关闭通道
	for msg := range c.send {
		if err := c.ws.WriteJSON(msg); err != nil {
			log.Printf("write error (user=%d): %v", c.userID, err)
		}
	}
}
