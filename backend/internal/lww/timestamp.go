package lww

import (
	"cmp"
	"fmt"
)

// Timestamp 逻辑写入时间。比较顺序：WallTime -> Counter -> NodeID
type Timestamp struct {
	WallTime int64  `json:"wallTime"`
	NodeID   string `json:"nodeId"`
	Counter  int64  `json:"counter"`
}

// Compare 返回 -1 / 0 / 1。只有三个字段全部相同才返回 0，视为同一次写入
func (t Timestamp) Compare(o Timestamp) int {
	if c := cmp.Compare(t.WallTime, o.WallTime); c != 0 {
		return c
	}
	if c := cmp.Compare(t.Counter, o.Counter); c != 0 {
		return c
	}
	return cmp.Compare(t.NodeID, o.NodeID)
}

func (t Timestamp) After(o Timestamp) bool { return t.Compare(o) > 0 }

func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%d@%s", t.WallTime, t.Counter, t.NodeID)
}
