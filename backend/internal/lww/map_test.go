package lww

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_SetGet(t *testing.T) {
	m := NewMap[string, string]()
	assert.True(t, m.Set("title", "draft", Timestamp{WallTime: 1, NodeID: "A"}))
	assert.False(t, m.Set("title", "stale", Timestamp{WallTime: 0, NodeID: "Z"}))
	assert.True(t, m.Set("lang", "go", Timestamp{WallTime: 1, NodeID: "B"}))

	v, ok := m.Get("title")
	assert.True(t, ok)
	assert.Equal(t, "draft", v)

	_, ok = m.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, []string{"lang", "title"}, m.Keys())
	assert.Equal(t, map[string]string{"title": "draft", "lang": "go"}, m.ToObject())
}

func TestMap_ZeroValue(t *testing.T) {
	var m Map[int, string]
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.ToObject())
	assert.True(t, m.Set(3, "c", Timestamp{WallTime: 1}))
	v, _ := m.Get(3)
	assert.Equal(t, "c", v)
}

func TestMap_Entries(t *testing.T) {
	m := NewMap[string, int]()
	m.Set("b", 2, Timestamp{WallTime: 2, NodeID: "A"})
	m.Set("a", 1, Timestamp{WallTime: 1, NodeID: "A"})

	assert.Equal(t, []Entry[string, int]{
		{Key: "a", Value: 1, TS: Timestamp{WallTime: 1, NodeID: "A"}},
		{Key: "b", Value: 2, TS: Timestamp{WallTime: 2, NodeID: "A"}},
	}, m.Entries())
}

func TestMap_MergeConverges(t *testing.T) {
	left, right := NewMap[string, string](), NewMap[string, string]()
	left.Set("x", "left", Timestamp{WallTime: 10, NodeID: "A"})
	left.Set("y", "left", Timestamp{WallTime: 30, NodeID: "A"})
	right.Set("x", "right", Timestamp{WallTime: 10, NodeID: "B"})
	right.Set("y", "right", Timestamp{WallTime: 20, NodeID: "B"})
	right.Set("z", "right", Timestamp{WallTime: 1, NodeID: "B"})

	l, r := NewMap[string, string](), NewMap[string, string]()
	l.Merge(left)
	l.Merge(right)
	r.Merge(right)
	r.Merge(left)

	want := map[string]string{"x": "right", "y": "left", "z": "right"}
	assert.Equal(t, want, l.ToObject())
	assert.Equal(t, want, r.ToObject())
	assert.Equal(t, l.Entries(), r.Entries())
	assert.Equal(t, 0, l.Merge(nil))
}

func TestUpdate_Decode(t *testing.T) {
	var u Update
	err := json.Unmarshal([]byte(`{"key":"title","value":{"text":"hi"},"ts":{"wallTime":10,"nodeId":"A","counter":0}}`), &u)
	require.NoError(t, err)
	assert.Equal(t, "title", u.Key)
	assert.JSONEq(t, `{"text":"hi"}`, string(u.Value))
	assert.Equal(t, Timestamp{WallTime: 10, NodeID: "A"}, u.TS)

	m := NewMap[string, json.RawMessage]()
	assert.True(t, u.Apply(m))
	assert.Len(t, UpdatesOf(m), 1)

	b, err := json.Marshal(UpdatesOf(m)[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"title","value":{"text":"hi"},"ts":{"wallTime":10,"nodeId":"A","counter":0}}`, string(b))
}

func TestUpdate_DecodeMissingValue(t *testing.T) {
	var u Update
	require.NoError(t, json.Unmarshal([]byte(`{"key":"k","ts":{"wallTime":1,"nodeId":"A","counter":0}}`), &u))
	assert.Equal(t, json.RawMessage("null"), u.Value)
}

func TestUpdate_DecodeMalformed(t *testing.T) {
	bad := map[string]string{
		"missing key":     `{"value":1,"ts":{"wallTime":1,"nodeId":"A","counter":0}}`,
		"empty key":       `{"key":"","value":1,"ts":{"wallTime":1,"nodeId":"A","counter":0}}`,
		"missing ts":      `{"key":"k","value":1}`,
		"missing wall":    `{"key":"k","value":1,"ts":{"nodeId":"A","counter":0}}`,
		"missing node":    `{"key":"k","value":1,"ts":{"wallTime":1,"counter":0}}`,
		"missing counter": `{"key":"k","value":1,"ts":{"wallTime":1,"nodeId":"A"}}`,
		"wrong type":      `{"key":"k","value":1,"ts":{"wallTime":"1","nodeId":"A","counter":0}}`,
	}
	for name, raw := range bad {
		t.Run(name, func(t *testing.T) {
			var u Update
			assert.ErrorIs(t, json.Unmarshal([]byte(raw), &u), ErrMalformedUpdate)
		})
	}
}
