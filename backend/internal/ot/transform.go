package ot

import "unicode/utf8"

// Transform 推导 OT 菱形的下面两条边：a、b 基于同一快照并发产生，
// 返回 ap（接在 b 之后应用）和 bp（接在 a 之后应用），满足
// ApplyAll(Apply(D, a), bp) == ApplyAll(Apply(D, b), ap)。
//
// 结果是切片：insert 落在 delete 区间内部时，delete 会被拆成两段。
func Transform(a, b Op) (ap, bp []Op) {
	switch {
	case a.IsInsert() && b.IsInsert():
		x, y := transformInsertInsert(a, b)
		return []Op{x}, []Op{y}
	case a.IsDelete() && b.IsDelete():
		x, y := transformDeleteDelete(a, b)
		return []Op{x}, []Op{y}
	case a.IsInsert():
		return transformInsertDelete(a, b)
	default:
		// delete vs insert：交换参数，再把结果换回来
		bp, ap = transformInsertDelete(b, a)
		return ap, bp
	}
}

// insertFirst 判断 a 是否排在 b 前面：位置小的优先，位置相同按插入文本字典序
func insertFirst(a, b Op) bool {
	if a.Index != b.Index {
		return a.Index < b.Index
	}
	return a.Text <= b.Text
}

func transformInsertInsert(a, b Op) (Op, Op) {
	if insertFirst(a, b) {
		return a, Insert(b.Index+utf8.RuneCountInString(a.Text), b.Text)
	}
	return Insert(a.Index+utf8.RuneCountInString(b.Text), a.Text), b
}

func transformInsertDelete(ins, del Op) (insP, delP []Op) {
	n := utf8.RuneCountInString(ins.Text)
	switch {
	case ins.Index <= del.Index:
		// 插入在删除之前，删除整体右移
		return []Op{ins}, []Op{Delete(del.Index+n, del.Length)}
	case ins.Index >= del.Index+del.Length:
		// 插入在删除之后，插入左移
		return []Op{Insert(ins.Index-del.Length, ins.Text)}, []Op{del}
	default:
		// 插入落在删除区间内部：插入锚定到删除起点，文本保留；
		// 删除仍只删原来那段字符，所以绕开插入的文本分成两段
		head := ins.Index - del.Index
		return []Op{Insert(del.Index, ins.Text)},
			[]Op{Delete(del.Index, head), Delete(del.Index+n, del.Length-head)}
	}
}

func transformDeleteDelete(a, b Op) (Op, Op) {
	aEnd, bEnd := a.Index+a.Length, b.Index+b.Length
	if aEnd <= b.Index {
		return a, Delete(b.Index-a.Length, b.Length)
	} else if bEnd <= a.Index {
		return Delete(a.Index-b.Length, a.Length), b
	}
	// 区间重叠：重叠部分两边都删了，只保留各自剩下的部分
	pos := min(a.Index, b.Index)
	overlap := max(0, min(aEnd, bEnd)-max(a.Index, b.Index))
	return Delete(pos, a.Length-overlap), Delete(pos, b.Length-overlap)
}

// TransformPatch 对两组顺序操作（都基于同一快照）做同样的变换。
// ap 接在整组 b 之后应用，bp 接在整组 a 之后应用。
func TransformPatch(a, b []Op) (ap, bp []Op) {
	switch {
	case len(a) == 0 || len(b) == 0:
		return append([]Op(nil), a...), append([]Op(nil), b...)
	case len(a) == 1 && len(b) == 1:
		return Transform(a[0], b[0])
	case len(a) > 1:
		// a = a0 + rest：先 a0 对 b，再 rest 对变换后的 b
		headP, b1 := TransformPatch(a[:1], b)
		restP, b2 := TransformPatch(a[1:], b1)
		return append(headP, restP...), b2
	default:
		a1, headP := TransformPatch(a, b[:1])
		a2, restP := TransformPatch(a1, b[1:])
		return a2, append(headP, restP...)
	}
}
