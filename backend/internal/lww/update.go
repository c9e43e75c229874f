package lww

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformedUpdate = errors.New("MALFORMED_UPDATE")

// Update 一次带时间戳的写入，广播 LWW 写入时的线上格式：
// { "key": <string>, "value": <any>, "ts": { "wallTime", "nodeId", "counter" } }
type Update struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
	TS    Timestamp       `json:"ts"`
}

type wireTimestamp struct {
	WallTime *int64  `json:"wallTime"`
	NodeID   *string `json:"nodeId"`
	Counter  *int64  `json:"counter"`
}

type wireUpdate struct {
	Key   *string         `json:"key"`
	Value json.RawMessage `json:"value"`
	TS    *wireTimestamp  `json:"ts"`
}

// UnmarshalJSON 时间戳缺字段的写入在这里拒绝，到不了 Set
func (u *Update) UnmarshalJSON(data []byte) error {
	var w wireUpdate
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}
	if w.Key == nil || *w.Key == "" {
		return fmt.Errorf("%w: missing key", ErrMalformedUpdate)
	}
	if w.TS == nil || w.TS.WallTime == nil || w.TS.NodeID == nil || w.TS.Counter == nil {
		return fmt.Errorf("%w: timestamp needs wallTime, nodeId and counter", ErrMalformedUpdate)
	}
	value := w.Value
	if len(value) == 0 {
		value = json.RawMessage("null")
	}
	*u = Update{
		Key:   *w.Key,
		Value: value,
		TS:    Timestamp{WallTime: *w.TS.WallTime, NodeID: *w.TS.NodeID, Counter: *w.TS.Counter},
	}
	return nil
}

// Apply 把一次写入交给 Map
func (u Update) Apply(m *Map[string, json.RawMessage]) bool {
	return m.Set(u.Key, u.Value, u.TS)
}

// UpdatesOf 把 Map 的全部条目转成线上格式
func UpdatesOf(m *Map[string, json.RawMessage]) []Update {
	entries := m.Entries()
	out := make([]Update, 0, len(entries))
	for _, e := range entries {
		out = append(out, Update{Key: e.Key, Value: e.Value, TS: e.TS})
	}
	return out
}
