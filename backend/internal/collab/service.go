package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"collabcore/backend/internal/lww"
	"collabcore/backend/internal/ot"
)

// 协作引擎接口
type Service interface {
	Submit(ctx context.Context, docID string, authorID uint64,
		baseRevision uint64, clientID string, clientSeq uint64,
		ops []ot.Op) (AppliedOp, error)

	CurrentRevision(ctx context.Context, docID string) (uint64, error)

	LoadDocumentContent(ctx context.Context, docID string) (string, uint64, error)

	// 用于握手/追平
	OpsSince(ctx context.Context, docID string, fromRevision uint64, limit int) ([]AppliedOp, error)

	SaveSnapshot(ctx context.Context, docID string) error

	// 文档元数据（LWW map）
	SetMeta(ctx context.Context, docID string, u lww.Update) (bool, error)
	MetaEntries(ctx context.Context, docID string) ([]lww.Update, error)

	// 在线成员，同样是 LWW map 里的条目
	Heartbeat(ctx context.Context, docID string, userID uint64, username string, ttl time.Duration) (lww.Update, error)
	Leave(ctx context.Context, docID string, userID uint64) (lww.Update, error)
	AliveMembers(ctx context.Context, docID string) ([]Member, error)

	GetDocumentID(ctx context.Context, title string) (string, error)
	CreateDocument(ctx context.Context, ownerID uint64, title string) (string, error)
}

// 快照存储接口
type SnapshotStore interface {
	SaveDocumentSnapshot(ctx context.Context, docID string, rev uint64, content string) error
	// 没有快照时 found=false
	LatestSnapshot(ctx context.Context, docID string) (content string, rev uint64, found bool, err error)
}

type DocumentStore interface {
	GetDocumentID(ctx context.Context, title string) (string, error)
	CreateDocument(ctx context.Context, ownerID uint64, title string) (string, error)
}

// 元数据持久化接口，实现在 cache 中
type MetaStore interface {
	SaveEntry(ctx context.Context, docID string, u lww.Update) (bool, error)
	LoadEntries(ctx context.Context, docID string) ([]lww.Update, error)
}

// AppliedListener 在文档锁内被调用，收到的 AppliedOp 按 Revision 严格递增。
// 实现不能阻塞，也不能回调 Service
type AppliedListener interface {
	OpApplied(docID string, applied AppliedOp)
}

type AppliedOp struct {
	OperationID  string    `json:"operationId"` // 本次操作的唯一ID（用于幂等/追踪）
	Revision     uint64    `json:"revision"`    // 全局版本号
	BaseRevision uint64    `json:"baseRevision"`
	AuthorID     uint64    `json:"authorId"`
	ClientID     string    `json:"clientId"`
	ClientSeq    uint64    `json:"clientSeq"`
	Ops          []ot.Op   `json:"ops"` // 变换到 Revision-1 之上后的操作
	AppliedAt    time.Time `json:"appliedAt"`
}

// Member 在线成员，序列化后作为 presence:<userID> 的值
type Member struct {
	UserID    uint64 `json:"userId"`
	Username  string `json:"username"`
	ExpiresAt int64  `json:"expiresAt"` // unix 毫秒，0 表示已离开
}

const presenceKeyPrefix = "presence:"

func PresenceKey(userID uint64) string {
	return presenceKeyPrefix + strconv.FormatUint(userID, 10)
}

var (
	ErrRevisionConflict      = errors.New("REVISION_CONFLICT")
	ErrDuplicateOrOutOfOrder = errors.New("DUPLICATE_OR_OUT_OF_ORDER")
	ErrHistoryTruncated      = errors.New("HISTORY_TRUNCATED")
	ErrDocumentNotFound      = errors.New("DOCUMENT_NOT_FOUND")
	ErrStoreUnavailable      = errors.New("STORE_UNAVAILABLE")
)

type docState struct {
	mu       sync.RWMutex
	revision uint64
	opsRing  []AppliedOp
	// 去重窗口：记录某 clientId 最近的最大 clientSeq
	lastSeqByClient map[string]uint64
	// 文档内容缓冲区
	buf Buffer
	// 元数据和在线成员
	meta *lww.Map[string, json.RawMessage]
}

type Deps struct {
	Snapshots  SnapshotStore
	Documents  DocumentStore
	Meta       MetaStore
	Events     EventSink
	Listener   AppliedListener
	Clock      *lww.Clock
	HistoryCap int
	// 事件入队最长等待时间，超时丢弃
	EnqueueTimeout time.Duration
	// 冷加载（快照 + 元数据）的超时，与调用方的 ctx 无关
	LoadTimeout time.Duration
}

// 内存实现：持有所有文档的状态，每个文档一把锁，所有修改都在锁内串行
type InMemoryService struct {
	mu      sync.RWMutex
	docs    map[string]*docState
	ringCap int
	loads   singleflight.Group

	// 依赖注入，实现在 store / cache 中
	store         SnapshotStore
	documentStore DocumentStore
	metaStore     MetaStore
	events        EventSink
	listener      AppliedListener

	clock          *lww.Clock
	enqueueTimeout time.Duration
	loadTimeout    time.Duration
	now            func() time.Time
}

func NewInMemoryService(deps Deps) *InMemoryService {
	capacity := deps.HistoryCap
	if capacity <= 0 {
		capacity = 1024
	}
	clock := deps.Clock
	if clock == nil {
		clock = lww.NewClock("collab-" + uuid.NewString()[:8])
	}
	timeout := deps.EnqueueTimeout
	if timeout <= 0 {
		timeout = 50 * time.Millisecond
	}
	loadTimeout := deps.LoadTimeout
	if loadTimeout <= 0 {
		loadTimeout = 5 * time.Second
	}
	return &InMemoryService{
		docs:           make(map[string]*docState),
		ringCap:        capacity,
		store:          deps.Snapshots,
		documentStore:  deps.Documents,
		metaStore:      deps.Meta,
		events:         deps.Events,
		listener:       deps.Listener,
		clock:          clock,
		enqueueTimeout: timeout,
		loadTimeout:    loadTimeout,
		now:            time.Now,
	}
}

func (s *InMemoryService) newDocState(content string, rev uint64) *docState {
	return &docState{
		revision:        rev,
		lastSeqByClient: make(map[string]uint64),
		opsRing:         make([]AppliedOp, 0, s.ringCap),
		buf:             NewPieceTable(content),
		meta:            lww.NewMap[string, json.RawMessage](),
	}
}

func (s *InMemoryService) lookup(docID string) *docState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[docID]
}

// getOrLoadDoc 获取文档状态；冷文档从快照和元数据存储加载，同一文档并发加载只执行一次。
// 加载本身不受任何一个调用方 ctx 的取消影响，每个调用方只按自己的 ctx 放弃等待
func (s *InMemoryService) getOrLoadDoc(ctx context.Context, docID string) (*docState, error) {
	if ds := s.lookup(docID); ds != nil {
		return ds, nil
	}
	ch := s.loads.DoChan(docID, func() (any, error) {
		if ds := s.lookup(docID); ds != nil {
			return ds, nil
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()

		var (
			content string
			rev     uint64
		)
		if s.store != nil {
			c, r, found, err := s.store.LatestSnapshot(ctx, docID)
			if err != nil {
				return nil, fmt.Errorf("load snapshot doc=%s: %w", docID, err)
			}
			if found {
				content, rev = c, r
			}
		}
		ds := s.newDocState(content, rev)

		if s.metaStore != nil {
			entries, err := s.metaStore.LoadEntries(ctx, docID)
			if err != nil {
				return nil, fmt.Errorf("load meta doc=%s: %w", docID, err)
			}
			for _, u := range entries {
				if s.clock.Check(u.TS) == nil {
					s.clock.Observe(u.TS)
				}
				u.Apply(ds.meta)
			}
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if existing := s.docs[docID]; existing != nil {
			return existing, nil
		}
		s.docs[docID] = ds
		return ds, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*docState), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Submit 提交一组基于 baseRevision 的操作。
// baseRevision 落后时，把操作变换到当前版本之上再应用
func (s *InMemoryService) Submit(ctx context.Context, docID string, authorID uint64, baseRevision uint64, clientID string, clientSeq uint64, ops []ot.Op) (AppliedOp, error) {
	ds, err := s.getOrLoadDoc(ctx, docID)
	if err != nil {
		return AppliedOp{}, err
	}

	applied, err := s.submitLocked(docID, ds, authorID, baseRevision, clientID, clientSeq, ops)
	if err != nil {
		return AppliedOp{}, err
	}

	s.publish(DocOpEvent{
		EventType:    EventOpApplied,
		DocID:        docID,
		OperationID:  applied.OperationID,
		Revision:     applied.Revision,
		AuthorID:     applied.AuthorID,
		ClientID:     clientID,
		ClientSeq:    clientSeq,
		BaseRevision: baseRevision,
		Ops:          applied.Ops,
		AppliedAt:    applied.AppliedAt,
	})
	return applied, nil
}

func (s *InMemoryService) submitLocked(docID string, ds *docState, authorID uint64, baseRevision uint64, clientID string, clientSeq uint64, ops []ot.Op) (AppliedOp, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	// 幂等/去重：同一 clientId 的序号只允许递增
	if last, ok := ds.lastSeqByClient[clientID]; ok && clientSeq <= last {
		return AppliedOp{}, ErrDuplicateOrOutOfOrder
	}
	if baseRevision > ds.revision {
		return AppliedOp{}, ErrRevisionConflict
	}

	if baseRevision < ds.revision {
		concurrent, err := ds.opsAfter(baseRevision)
		if err != nil {
			return AppliedOp{}, err
		}
		ops, _ = ot.TransformPatch(ops, concurrent)
	}
	ops = ot.Compact(ops)

	if err := ApplyPatch(ds.buf, ops); err != nil {
		return AppliedOp{}, err
	}

	// 推进版本
	ds.revision++
	applied := AppliedOp{
		OperationID:  uuid.NewString(),
		Revision:     ds.revision,
		BaseRevision: baseRevision,
		AuthorID:     authorID,
		ClientID:     clientID,
		ClientSeq:    clientSeq,
		Ops:          ops,
		AppliedAt:    s.now(),
	}

	// 保存到环形缓冲（如果达到容量则丢弃最老的一条）
	if cap(ds.opsRing) > 0 && len(ds.opsRing) == cap(ds.opsRing) {
		copy(ds.opsRing[0:], ds.opsRing[1:])
		ds.opsRing = ds.opsRing[:len(ds.opsRing)-1]
	}
	ds.opsRing = append(ds.opsRing, applied)

	ds.lastSeqByClient[clientID] = clientSeq
	if s.listener != nil {
		s.listener.OpApplied(docID, applied)
	}
	return applied, nil
}

// opsAfter 拼接 rev 之后的全部历史操作；环形缓冲已经覆盖掉一部分时报错，客户端需要重新加载
func (ds *docState) opsAfter(rev uint64) ([]ot.Op, error) {
	if len(ds.opsRing) == 0 || ds.opsRing[0].Revision > rev+1 {
		return nil, fmt.Errorf("%w: base %d, current %d", ErrHistoryTruncated, rev, ds.revision)
	}
	var out []ot.Op
	for _, op := range ds.opsRing {
		if op.Revision > rev {
			out = append(out, op.Ops...)
		}
	}
	return out, nil
}

// 事件只尽力投递，失败只记日志
func (s *InMemoryService) publish(evt DocOpEvent) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.enqueueTimeout)
	defer cancel()
	if err := s.events.Enqueue(ctx, evt); err != nil {
		log.Printf("enqueue event failed type=%s doc=%s rev=%d err=%v", evt.EventType, evt.DocID, evt.Revision, err)
	}
}

// 返回当前文档版本
func (s *InMemoryService) CurrentRevision(ctx context.Context, docID string) (uint64, error) {
	ds, err := s.getOrLoadDoc(ctx, docID)
	if err != nil {
		return 0, err
	}
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.revision, nil
}

func (s *InMemoryService) LoadDocumentContent(ctx context.Context, docID string) (string, uint64, error) {
	ds, err := s.getOrLoadDoc(ctx, docID)
	if err != nil {
		return "", 0, err
	}
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.buf.String(), ds.revision, nil
}

// 返回 fromRevision 之后的已应用操作
func (s *InMemoryService) OpsSince(ctx context.Context, docID string, fromRevision uint64, limit int) ([]AppliedOp, error) {
	ds := s.lookup(docID)
	if ds == nil {
		return nil, nil
	}
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	if fromRevision < ds.revision && (len(ds.opsRing) == 0 || ds.opsRing[0].Revision > fromRevision+1) {
		return nil, ErrHistoryTruncated
	}
	var out []AppliedOp
	for _, op := range ds.opsRing {
		if op.Revision > fromRevision {
			out = append(out, op)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *InMemoryService) SaveSnapshot(ctx context.Context, docID string) error {
	if s.store == nil {
		return fmt.Errorf("%w: snapshot store not initialized", ErrStoreUnavailable)
	}
	ds := s.lookup(docID)
	if ds == nil {
		return ErrDocumentNotFound
	}
	ds.mu.RLock()
	content := ds.buf.String()
	rev := ds.revision
	ds.mu.RUnlock()
	return s.store.SaveDocumentSnapshot(ctx, docID, rev, content)
}

// SetMeta 写入一条元数据。返回 false 表示时间戳过期被忽略，不是错误
func (s *InMemoryService) SetMeta(ctx context.Context, docID string, u lww.Update) (bool, error) {
	// 不能让客户端给的时间戳把本节点时钟推到远处
	if err := s.clock.Check(u.TS); err != nil {
		return false, err
	}
	ds, err := s.getOrLoadDoc(ctx, docID)
	if err != nil {
		return false, err
	}

	ds.mu.Lock()
	s.clock.Observe(u.TS)
	changed := u.Apply(ds.meta)
	rev := ds.revision
	ds.mu.Unlock()

	if !changed {
		return false, nil
	}
	if s.metaStore != nil {
		// 存储端同样按时间戳比较，先后顺序无所谓
		if _, err := s.metaStore.SaveEntry(ctx, docID, u); err != nil {
			log.Printf("persist meta failed doc=%s key=%s err=%v", docID, u.Key, err)
		}
	}
	s.publish(DocOpEvent{
		EventType:   EventMetaSet,
		DocID:       docID,
		OperationID: uuid.NewString(),
		Revision:    rev,
		Meta:        &u,
		AppliedAt:   s.now(),
	})
	return true, nil
}

func (s *InMemoryService) MetaEntries(ctx context.Context, docID string) ([]lww.Update, error) {
	ds, err := s.getOrLoadDoc(ctx, docID)
	if err != nil {
		return nil, err
	}
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return lww.UpdatesOf(ds.meta), nil
}

// Heartbeat 用本节点时钟写入 presence:<userID>，有效期 ttl
func (s *InMemoryService) Heartbeat(ctx context.Context, docID string, userID uint64, username string, ttl time.Duration) (lww.Update, error) {
	m := Member{UserID: userID, Username: username, ExpiresAt: s.now().Add(ttl).UnixMilli()}
	return s.writePresence(ctx, docID, m)
}

// Leave 写入过期的 presence 作为墓碑
func (s *InMemoryService) Leave(ctx context.Context, docID string, userID uint64) (lww.Update, error) {
	return s.writePresence(ctx, docID, Member{UserID: userID})
}

func (s *InMemoryService) writePresence(ctx context.Context, docID string, m Member) (lww.Update, error) {
	value, err := json.Marshal(m)
	if err != nil {
		return lww.Update{}, err
	}
	u := lww.Update{Key: PresenceKey(m.UserID), Value: value, TS: s.clock.Now()}
	if _, err := s.SetMeta(ctx, docID, u); err != nil {
		return lww.Update{}, err
	}
	return u, nil
}

// AliveMembers 返回未过期的在线成员，按 key 排序
func (s *InMemoryService) AliveMembers(ctx context.Context, docID string) ([]Member, error) {
	entries, err := s.MetaEntries(ctx, docID)
	if err != nil {
		return nil, err
	}
	now := s.now().UnixMilli()
	var out []Member
	for _, e := range entries {
		if !strings.HasPrefix(e.Key, presenceKeyPrefix) {
			continue
		}
		var m Member
		if err := json.Unmarshal(e.Value, &m); err != nil {
			log.Printf("bad presence entry doc=%s key=%s err=%v", docID, e.Key, err)
			continue
		}
		if m.ExpiresAt > now {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *InMemoryService) GetDocumentID(ctx context.Context, title string) (string, error) {
	if s.documentStore == nil {
		return "", fmt.Errorf("%w: document store not initialized", ErrStoreUnavailable)
	}
	return s.documentStore.GetDocumentID(ctx, title)
}

func (s *InMemoryService) CreateDocument(ctx context.Context, ownerID uint64, title string) (string, error) {
	if s.documentStore == nil {
		return "", fmt.Errorf("%w: document store not initialized", ErrStoreUnavailable)
	}
	return s.documentStore.CreateDocument(ctx, ownerID, title)
}
