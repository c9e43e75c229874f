package collab

import (
	"fmt"

	"collabcore/backend/internal/ot"
)

// 抽象文档内容缓冲区接口
type Buffer interface {
	Len() int
	Apply(op ot.Op) error
	String() string
}

// ApplyPatch 先按顺序模拟长度变化校验整组操作，全部合法才真正修改 buf，
// 保证失败时文档保持原样
func ApplyPatch(buf Buffer, ops []ot.Op) error {
	n := buf.Len()
	for i, op := range ops {
		if err := ot.CheckBounds(n, op); err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
		if op.IsInsert() {
			n += op.Span()
		} else {
			n -= op.Length
		}
	}
	for _, op := range ops {
		if err := buf.Apply(op); err != nil {
			return err
		}
	}
	return nil
}
