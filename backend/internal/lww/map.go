package lww

import (
	"cmp"
	"slices"
)

// Map 每个 key 一个 Register，只增不删；删除由调用方写入墓碑值表示
type Map[K cmp.Ordered, V any] struct {
	regs map[K]*Register[V]
}

type Entry[K cmp.Ordered, V any] struct {
	Key   K
	Value V
	TS    Timestamp
}

func NewMap[K cmp.Ordered, V any]() *Map[K, V] {
	return &Map[K, V]{regs: make(map[K]*Register[V])}
}

// Set 首次写某个 key 时才创建寄存器
func (m *Map[K, V]) Set(key K, value V, ts Timestamp) bool {
	if m.regs == nil {
		m.regs = make(map[K]*Register[V])
	}
	r, ok := m.regs[key]
	if !ok {
		r = &Register[V]{}
		m.regs[key] = r
	}
	return r.Set(value, ts)
}

func (m *Map[K, V]) Get(key K) (V, bool) {
	if r, ok := m.regs[key]; ok {
		return r.Get()
	}
	var zero V
	return zero, false
}

// Entry 返回 key 当前的值和时间戳
func (m *Map[K, V]) Entry(key K) (Entry[K, V], bool) {
	r, ok := m.regs[key]
	if !ok || !r.ok {
		return Entry[K, V]{}, false
	}
	return Entry[K, V]{Key: key, Value: r.value, TS: r.ts}, true
}

// ToObject 返回所有出现过的 key 的快照；寄存器为空时对应值为零值
func (m *Map[K, V]) ToObject() map[K]V {
	out := make(map[K]V, len(m.regs))
	for k, r := range m.regs {
		out[k] = r.value
	}
	return out
}

func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, len(m.regs))
	for k := range m.regs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (m *Map[K, V]) Len() int { return len(m.regs) }

// Entries 按 key 排序返回 (key, value, ts)，供迟到的副本全量同步
func (m *Map[K, V]) Entries() []Entry[K, V] {
	out := make([]Entry[K, V], 0, len(m.regs))
	for _, k := range m.Keys() {
		if e, ok := m.Entry(k); ok {
			out = append(out, e)
		}
	}
	return out
}

// Merge 逐个 key 合并另一个副本，返回被覆盖的 key 数
func (m *Map[K, V]) Merge(other *Map[K, V]) int {
	if other == nil {
		return 0
	}
	n := 0
	for _, e := range other.Entries() {
		if m.Set(e.Key, e.Value, e.TS) {
			n++
		}
	}
	return n
}
