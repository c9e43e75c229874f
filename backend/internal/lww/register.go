package lww

// Register 至多保存一个 (value, ts)；零值即空寄存器
type Register[T any] struct {
	value T
	ts    Timestamp
	ok    bool
}

// Set 在寄存器为空或 ts >= 当前时间戳时覆盖，返回是否写入。
// 过期写入直接忽略，不算错误。
func (r *Register[T]) Set(value T, ts Timestamp) bool {
	if r.ok && ts.Compare(r.ts) < 0 {
		return false
	}
	r.value, r.ts, r.ok = value, ts, true
	return true
}

func (r *Register[T]) Get() (T, bool) {
	return r.value, r.ok
}

func (r *Register[T]) Timestamp() (Timestamp, bool) {
	return r.ts, r.ok
}

// Merge 用另一个副本的完整状态更新自己（全量同步时使用）
func (r *Register[T]) Merge(other *Register[T]) bool {
	if other == nil || !other.ok {
		return false
	}
	return r.Set(other.value, other.ts)
}
