package lww

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegister_Empty(t *testing.T) {
	var r Register[string]
	_, ok := r.Get()
	assert.False(t, ok)
	_, ok = r.Timestamp()
	assert.False(t, ok)
}

func TestRegister_StaleWriteIsNoop(t *testing.T) {
	var r Register[string]
	assert.True(t, r.Set("new", Timestamp{WallTime: 20, NodeID: "A"}))
	assert.False(t, r.Set("old", Timestamp{WallTime: 10, NodeID: "Z"}))

	v, ok := r.Get()
	assert.True(t, ok)
	assert.Equal(t, "new", v)
}

func TestRegister_EqualTimestampReplaces(t *testing.T) {
	var r Register[int]
	ts := Timestamp{WallTime: 1, NodeID: "A"}
	assert.True(t, r.Set(1, ts))
	assert.True(t, r.Set(1, ts))
	v, _ := r.Get()
	assert.Equal(t, 1, v)
}

func TestRegister_NodeTieBreak(t *testing.T) {
	a := Timestamp{WallTime: 10, Counter: 0, NodeID: "A"}
	b := Timestamp{WallTime: 10, Counter: 0, NodeID: "B"}

	var r1, r2 Register[string]
	r1.Set("from A", a)
	r1.Set("from B", b)
	r2.Set("from B", b)
	r2.Set("from A", a)

	v1, _ := r1.Get()
	v2, _ := r2.Get()
	assert.Equal(t, "from B", v1)
	assert.Equal(t, v1, v2)
}

func TestRegister_Property_Convergence(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		type write struct {
			v  int
			ts Timestamp
		}
		writes := make([]write, 0, 8)
		seen := map[Timestamp]bool{}
		for len(writes) < 8 {
			ts := Timestamp{
				WallTime: rng.Int63n(3),
				Counter:  rng.Int63n(3),
				NodeID:   string(rune('A' + rng.Intn(3))),
			}
			if seen[ts] {
				continue
			}
			seen[ts] = true
			writes = append(writes, write{v: len(writes), ts: ts})
		}

		want := writes[0]
		for _, w := range writes[1:] {
			if w.ts.After(want.ts) {
				want = w
			}
		}

		for j := 0; j < 5; j++ {
			var r Register[int]
			for _, k := range rng.Perm(len(writes)) {
				// 重复写入不影响结果
				r.Set(writes[k].v, writes[k].ts)
				r.Set(writes[k].v, writes[k].ts)
			}
			got, _ := r.Get()
			ts, _ := r.Timestamp()
			assert.Equal(t, want.v, got)
			assert.Equal(t, want.ts, ts)
		}
	}
}

func TestRegister_Merge(t *testing.T) {
	var a, b Register[string]
	a.Set("a", Timestamp{WallTime: 1, NodeID: "A"})
	b.Set("b", Timestamp{WallTime: 2, NodeID: "B"})

	assert.True(t, a.Merge(&b))
	// 时间戳相同，重复合并仍然成立
	assert.True(t, b.Merge(&a))
	assert.False(t, a.Merge(&Register[string]{}))
	assert.False(t, a.Merge(nil))

	v, _ := a.Get()
	assert.Equal(t, "b", v)
}
