package ot

import "unicode/utf8"

// Compose 合并同一副本上先后产生的 a、b（b 基于 a 之后的文档）。
// 返回的操作按顺序应用到 a 之前的文档，效果等同于先 a 后 b。
// 不需要满足 Transform 的双向收敛，只保证本地顺序等价。
func Compose(a, b Op) []Op {
	switch {
	case a.IsNoop() && b.IsNoop():
		return []Op{}
	case a.IsNoop():
		return []Op{b}
	case b.IsNoop():
		return []Op{a}
	}

	switch {
	case a.IsInsert() && b.IsInsert():
		return composeInsertInsert(a, b)
	case a.IsDelete() && b.IsDelete():
		return composeDeleteDelete(a, b)
	case a.IsInsert():
		return composeInsertDelete(a, b)
	default:
		// 先删后插：b 在 a 删除点之前时调换顺序，否则原样返回
		if b.Index < a.Index {
			return []Op{b, Delete(a.Index+b.Span(), a.Length)}
		}
		return []Op{a, b}
	}
}

func composeInsertInsert(a, b Op) []Op {
	n := a.Span()
	switch {
	case b.Index >= a.Index && b.Index <= a.Index+n:
		// b 插在 a 刚插入的文本内部或两端，合成一次插入
		r := []rune(a.Text)
		off := b.Index - a.Index
		return []Op{Insert(a.Index, string(r[:off])+b.Text+string(r[off:]))}
	case b.Index < a.Index:
		return []Op{b, Insert(a.Index+b.Span(), a.Text)}
	default:
		return []Op{a, b}
	}
}

func composeDeleteDelete(a, b Op) []Op {
	switch {
	case b.Index <= a.Index && a.Index <= b.Index+b.Length:
		// 两段删除首尾相接或包含 a 的删除点，合并为一段
		return []Op{Delete(b.Index, a.Length+b.Length)}
	case b.Index+b.Length < a.Index:
		return []Op{b, Delete(a.Index-b.Length, a.Length)}
	default:
		return []Op{a, b}
	}
}

func composeInsertDelete(ins, del Op) []Op {
	n := utf8.RuneCountInString(ins.Text)
	insEnd, delEnd := ins.Index+n, del.Index+del.Length
	lo, hi := max(ins.Index, del.Index), min(insEnd, delEnd)
	if hi <= lo {
		// 删除没有碰到刚插入的文本
		if delEnd <= ins.Index {
			return []Op{del, Insert(ins.Index-del.Length, ins.Text)}
		}
		return []Op{ins, del}
	}

	// 删除覆盖了部分插入文本：把插入缩短，剩余删除（原有内容）合并成一段
	r := []rune(ins.Text)
	text := string(r[:lo-ins.Index]) + string(r[hi-ins.Index:])
	before := max(0, ins.Index-del.Index)
	after := max(0, delEnd-insEnd)
	at := ins.Index - before

	out := make([]Op, 0, 2)
	if before+after > 0 {
		out = append(out, Delete(at, before+after))
	}
	if text != "" {
		out = append(out, Insert(at, text))
	}
	return out
}

// Compact 把一段本地待发送的历史从左到右两两 Compose，缩短发送内容
func Compact(ops []Op) []Op {
	out := make([]Op, 0, len(ops))
	for _, op := range ops {
		if op.IsNoop() {
			continue
		}
		if len(out) == 0 {
			out = append(out, op)
			continue
		}
		last := out[len(out)-1]
		out = append(out[:len(out)-1], Compose(last, op)...)
	}
	return out
}
