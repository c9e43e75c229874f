package collab

import (
	"time"

	"collabcore/backend/internal/lww"
	"collabcore/backend/internal/ot"
)

const (
	EventOpApplied = "OP_APPLIED"
	EventMetaSet   = "META_SET"
)

// DocOpEvent 写入 Kafka 的文档事件，以 docId 作为消息 key 按文档分区。
// 入队在文档锁外，多个 worker 并发发送，同一文档的事件可能乱序到达；
// 消费方按 revision（消息 header 里也有）排序
type DocOpEvent struct {
	EventType    string      `json:"eventType"` // OP_APPLIED / META_SET
	DocID        string      `json:"docId"`
	OperationID  string      `json:"operationId"`
	Revision     uint64      `json:"revision"`
	AuthorID     uint64      `json:"authorId,omitempty"`
	ClientID     string      `json:"clientId,omitempty"`
	ClientSeq    uint64      `json:"clientSeq,omitempty"` // 针对同一个 clientId 的“本地递增序号”
	BaseRevision uint64      `json:"baseRevision,omitempty"`
	Ops          []ot.Op     `json:"ops,omitempty"`
	Meta         *lww.Update `json:"meta,omitempty"`
	AppliedAt    time.Time   `json:"appliedAt"`
}
