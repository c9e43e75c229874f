package ws

import (
	"time"

	"collabcore/backend/internal/collab"
	"collabcore/backend/internal/lww"
	"collabcore/backend/internal/ot"
)

type ClientMessage struct {
	Type         string      `json:"type"`
	DocID        string      `json:"docId"`
	DocTitle     string      `json:"docTitle"`
	BaseRevision uint64      `json:"baseRevision"`
	ClientID     string      `json:"clientId"`
	ClientSeq    uint64      `json:"clientSeq"`
	Ops          []ot.Op     `json:"ops"`
	Meta         *lww.Update `json:"meta,omitempty"`
	Content      string      `json:"content,omitempty"`
}

type PresenceMember struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username,omitempty"`
}

func toPresenceMembers(members []collab.Member) []PresenceMember {
	out := make([]PresenceMember, len(members))
	for i, m := range members {
		out[i] = PresenceMember{UserID: m.UserID, Username: m.Username}
	}
	return out
}

type ServerMessage struct {
	Type     string             `json:"type"`
	UserID   uint64             `json:"userId,omitempty"`
	DocID    string             `json:"docId,omitempty"`
	Revision uint64             `json:"revision,omitempty"`
	Members  []PresenceMember   `json:"members,omitempty"`
	Meta     []lww.Update       `json:"meta,omitempty"`
	Applied  []collab.AppliedOp `json:"applied,omitempty"`
	Code     string             `json:"code,omitempty"`
	Content  string             `json:"content,omitempty"`
}

type OpSubmitMessage struct {
	Type         string `json:"type"`
	DocID        string `json:"docId"`
	BaseRevision uint64 `json:"baseRevision"`
	// 客户端实例标识。同一用户可有多个 clientId（多端/多标签页）。
	ClientID string `json:"clientId"`
	// 针对同一个 clientId 的“本地递增序号”
	ClientSeq uint64  `json:"clientSeq"`
	Ops       []ot.Op `json:"ops"`
}

// 广播给同文档房间内其他连接的“已应用操作”事件
// - 与 op_applied(ack) 区分：这里用于把变更推送给其他协作者（包括同用户的其他标签页）
// - ops 已经变换到 revision-1 之上，收到后变换掉本地未确认的操作再应用
// - 同一连接上的 op_broadcast 和 op_applied 按 revision 递增送达
type OpBroadcastMessage struct {
	Type        string    `json:"type"` // 固定 "op_broadcast"
	DocID       string    `json:"docId"`
	OperationID string    `json:"operationId"`
	Revision    uint64    `json:"revision"` // 服务端已应用后的最新版本
	AuthorID    uint64    `json:"authorId"`
	ClientID    string    `json:"clientId,omitempty"`
	ClientSeq   uint64    `json:"clientSeq,omitempty"`
	Ops         []ot.Op   `json:"ops"`
	AppliedAt   time.Time `json:"appliedAt"`
}

type OpAppliedMessage struct {
	Type            string  `json:"type"` // 固定 "op_applied"
	DocID           string  `json:"docId"`
	OperationID     string  `json:"operationId"`
	BaseRevision    uint64  `json:"baseRevision"`    // 客户端提交时的 base
	CurrentRevision uint64  `json:"currentRevision"` // 服务端应用后的最新版本
	ClientID        string  `json:"clientId"`
	ClientSeq       uint64  `json:"clientSeq"`
	Ops             []ot.Op `json:"ops"` // 服务端实际应用的操作
}

// LWW 写入的广播，applied=false 表示时间戳过期被忽略（只回给提交者）
type MetaMessage struct {
	Type    string     `json:"type"` // "meta_broadcast" / "meta_applied"
	DocID   string     `json:"docId"`
	Update  lww.Update `json:"update"`
	Applied bool       `json:"applied"`
}

// 出站消息接口
type OutboundMessage interface {
	MessageType() string
}

func (m ServerMessage) MessageType() string      { return m.Type }
func (m OpAppliedMessage) MessageType() string   { return m.Type }
func (m OpBroadcastMessage) MessageType() string { return m.Type }
func (m MetaMessage) MessageType() string        { return m.Type }
