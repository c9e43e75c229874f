package ot

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

type Kind string

const (
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
)

var (
	ErrOutOfBounds = errors.New("OUT_OF_BOUNDS")
	ErrMalformedOp = errors.New("MALFORMED_OP")
)

// Op 是作用在纯文本上的单个编辑操作，只有 insert / delete 两种。
// Index、Length 以字符（rune）计，而不是字节。
type Op struct {
	Kind   Kind
	Index  int
	Text   string // 仅 insert 使用
	Length int    // 仅 delete 使用
}

// Insert 在 index 处插入 text
func Insert(index int, text string) Op {
	return Op{Kind: KindInsert, Index: index, Text: text}
}

// Delete 从 index 开始删除 length 个字符
func Delete(index, length int) Op {
	return Op{Kind: KindDelete, Index: index, Length: length}
}

func (op Op) IsInsert() bool { return op.Kind == KindInsert }
func (op Op) IsDelete() bool { return op.Kind == KindDelete }

// IsNoop 空插入 / 零长度删除，应用后文档不变
func (op Op) IsNoop() bool {
	if op.IsInsert() {
		return op.Text == ""
	}
	return op.Length == 0
}

// Span 返回该操作影响的字符数：insert 为文本长度，delete 为删除长度
func (op Op) Span() int {
	if op.IsInsert() {
		return utf8.RuneCountInString(op.Text)
	}
	return op.Length
}

func (op Op) String() string {
	if op.IsInsert() {
		return fmt.Sprintf("insert(%d,%q)", op.Index, op.Text)
	}
	return fmt.Sprintf("delete(%d,%d)", op.Index, op.Length)
}

// 线上格式：
// { "type": "insert", "index": <uint>, "text": <string> }
// { "type": "delete", "index": <uint>, "length": <uint> }
type wireOp struct {
	Type   Kind    `json:"type"`
	Index  *int    `json:"index"`
	Text   *string `json:"text,omitempty"`
	Length *int    `json:"length,omitempty"`
}

func (op Op) MarshalJSON() ([]byte, error) {
	index := op.Index
	w := wireOp{Type: op.Kind, Index: &index}
	switch op.Kind {
	case KindInsert:
		text := op.Text
		w.Text = &text
	case KindDelete:
		length := op.Length
		w.Length = &length
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedOp, op.Kind)
	}
	return json.Marshal(w)
}

func (op *Op) UnmarshalJSON(data []byte) error {
	var w wireOp
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOp, err)
	}
	if w.Index == nil || *w.Index < 0 {
		return fmt.Errorf("%w: missing or negative index", ErrMalformedOp)
	}
	switch w.Type {
	case KindInsert:
		if w.Text == nil || w.Length != nil {
			return fmt.Errorf("%w: insert needs text and no length", ErrMalformedOp)
		}
		*op = Insert(*w.Index, *w.Text)
	case KindDelete:
		if w.Length == nil || *w.Length < 0 || w.Text != nil {
			return fmt.Errorf("%w: delete needs a non-negative length and no text", ErrMalformedOp)
		}
		*op = Delete(*w.Index, *w.Length)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedOp, w.Type)
	}
	return nil
}
