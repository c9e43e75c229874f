package lww

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// MaxDrift 远端时间戳最多允许领先本地物理时间多少
const MaxDrift = time.Minute

var ErrTimestampOutOfRange = errors.New("TIMESTAMP_OUT_OF_RANGE")

// Clock 单个节点的混合逻辑时钟：WallTime 取毫秒，物理时间不前进时递增 Counter，
// 保证本节点签发的时间戳严格递增，并且不小于观察到的远端时间戳。
type Clock struct {
	mu     sync.Mutex
	nodeID string
	now    func() int64
	last   Timestamp
	// 毫秒
	maxDrift int64
}

func NewClock(nodeID string) *Clock {
	return &Clock{
		nodeID: nodeID,
		now:      func() int64 { return time.Now().UnixMilli() },
		maxDrift: MaxDrift.Milliseconds(),
	}
}

func (c *Clock) NodeID() string { return c.nodeID }

// Now 签发一个新的本地时间戳
func (c *Clock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	wall := c.now()
	if wall > c.last.WallTime {
		c.last = Timestamp{WallTime: wall, NodeID: c.nodeID}
	} else {
		c.last = c.tick(c.last.WallTime, c.last.Counter)
	}
	return c.last
}

// Check 拒绝负数字段、计数器已到上限、或领先本地物理时间超过 MaxDrift 的时间戳。
// 只有通过检查的远端时间戳才能交给 Observe
func (c *Clock) Check(ts Timestamp) error {
	if ts.WallTime < 0 || ts.Counter < 0 || ts.Counter == math.MaxInt64 {
		return fmt.Errorf("%w: %s", ErrTimestampOutOfRange, ts)
	}
	if now := c.now(); ts.WallTime > now+c.maxDrift {
		return fmt.Errorf("%w: %s is %dms ahead of local clock", ErrTimestampOutOfRange, ts, ts.WallTime-now)
	}
	return nil
}

// tick 计数器加一；计数器用尽时进位到下一毫秒
func (c *Clock) tick(wall, counter int64) Timestamp {
	if counter == math.MaxInt64 {
		return Timestamp{WallTime: wall + 1, NodeID: c.nodeID}
	}
	return Timestamp{WallTime: wall, NodeID: c.nodeID, Counter: counter + 1}
}

// Observe 收到远端时间戳后推进本地时钟，返回推进后的时间戳
func (c *Clock) Observe(remote Timestamp) Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	wall := max(c.now(), c.last.WallTime, remote.WallTime)
	switch {
	case wall == c.last.WallTime && wall == remote.WallTime:
		c.last = c.tick(wall, max(c.last.Counter, remote.Counter))
	case wall == c.last.WallTime:
		c.last = c.tick(wall, c.last.Counter)
	case wall == remote.WallTime:
		c.last = c.tick(wall, remote.Counter)
	default:
		c.last = Timestamp{WallTime: wall, NodeID: c.nodeID}
	}
	return c.last
}
