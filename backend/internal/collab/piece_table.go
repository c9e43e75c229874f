/*
结构示例

初始文档 "abc"：original = "abc"，add = ""，pieces = [ (orig, 0, 3) ]

Insert(1, "XY")：
- add 追加 "XY"
- pieces = [ (orig, 0, 1), (add, 0, 2), (orig, 1, 2) ]   // "a" "XY" "bc"

Delete(2, 2)：删掉 "Y" 和 "b"
- pieces = [ (orig, 0, 1), (add, 0, 1), (orig, 2, 1) ]   // "a" "X" "c"

original 和 add 只追加不修改，编辑只改 piece 列表
*/
package collab

import (
	"strings"

	"collabcore/backend/internal/ot"
)

type bufferKind int

const (
	bufOriginal bufferKind = iota
	bufAdd
)

type piece struct {
	buf    bufferKind
	offset int
	length int
}

// PieceTable 以 rune 为单位的 piece table，实现 Buffer
type PieceTable struct {
	original []rune
	add      []rune
	pieces   []piece
	length   int
}

func NewPieceTable(initial string) *PieceTable {
	r := []rune(initial)
	pt := &PieceTable{original: r, length: len(r)}
	if len(r) > 0 {
		pt.pieces = []piece{{buf: bufOriginal, offset: 0, length: len(r)}}
	}
	return pt
}

func (pt *PieceTable) Len() int {
	return pt.length
}

func (pt *PieceTable) String() string {
	var sb strings.Builder
	for _, p := range pt.pieces {
		sb.WriteString(string(pt.source(p.buf)[p.offset : p.offset+p.length]))
	}
	return sb.String()
}

func (pt *PieceTable) source(kind bufferKind) []rune {
	if kind == bufAdd {
		return pt.add
	}
	return pt.original
}

// Apply 越界时不修改任何内容
func (pt *PieceTable) Apply(op ot.Op) error {
	if err := ot.CheckBounds(pt.length, op); err != nil {
		return err
	}
	if op.IsNoop() {
		return nil
	}
	if op.IsInsert() {
		pt.insert(op.Index, op.Text)
	} else {
		pt.delete(op.Index, op.Length)
	}
	return nil
}

func (pt *PieceTable) insert(pos int, text string) {
	r := []rune(text)
	start := len(pt.add)
	pt.add = append(pt.add, r...)
	np := piece{buf: bufAdd, offset: start, length: len(r)}
	pt.length += len(r)

	idx, offset := pt.locate(pos)
	if idx == len(pt.pieces) {
		pt.pieces = append(pt.pieces, np)
		return
	}

	cur := pt.pieces[idx]
	newPieces := make([]piece, 0, len(pt.pieces)+2)
	newPieces = append(newPieces, pt.pieces[:idx]...)
	if offset > 0 {
		newPieces = append(newPieces, piece{buf: cur.buf, offset: cur.offset, length: offset})
	}
	newPieces = append(newPieces, np)
	newPieces = append(newPieces, piece{buf: cur.buf, offset: cur.offset + offset, length: cur.length - offset})
	newPieces = append(newPieces, pt.pieces[idx+1:]...)
	pt.pieces = newPieces
}

func (pt *PieceTable) delete(pos, n int) {
	pt.length -= n
	idx, offset := pt.locate(pos)

	// 要删的剩余长度
	remain := n
	for remain > 0 && idx < len(pt.pieces) {
		cur := pt.pieces[idx]
		take := min(remain, cur.length-offset)

		if offset == 0 && take == cur.length {
			// 整个 piece 删掉，idx 不动
			pt.pieces = append(pt.pieces[:idx], pt.pieces[idx+1:]...)
		} else {
			// 删掉中间一段，拆成左右两段
			var repl []piece
			if offset > 0 {
				repl = append(repl, piece{buf: cur.buf, offset: cur.offset, length: offset})
			}
			if right := cur.length - offset - take; right > 0 {
				repl = append(repl, piece{buf: cur.buf, offset: cur.offset + offset + take, length: right})
			}
			newPieces := make([]piece, 0, len(pt.pieces)+1)
			newPieces = append(newPieces, pt.pieces[:idx]...)
			newPieces = append(newPieces, repl...)
			newPieces = append(newPieces, pt.pieces[idx+1:]...)
			pt.pieces = newPieces
			// 只剩左半段时继续删下一个 piece；有右半段说明已经删完
			idx += len(repl)
		}
		offset = 0
		remain -= take
	}
}

// 根据逻辑位置 pos，找到对应的 piece 下标 idx 和在该 piece 内的偏移 offset
func (pt *PieceTable) locate(pos int) (idx int, offset int) {
	cur := 0
	for i, p := range pt.pieces {
		if pos < cur+p.length {
			return i, pos - cur
		}
		cur += p.length
	}
	return len(pt.pieces), 0
}
