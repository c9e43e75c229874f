package collab

import (
	"errors"
	"math/rand"
	"testing"

	"collabcore/backend/internal/ot"
)

func TestPieceTable_BasicString(t *testing.T) {
	pt := NewPieceTable("Hello world")
	if got := pt.String(); got != "Hello world" {
		t.Fatalf("String() = %q, want %q", got, "Hello world")
	}
	if gotLen := pt.Len(); gotLen != len([]rune("Hello world")) {
		t.Fatalf("Len() = %d, want %d", gotLen, len([]rune("Hello world")))
	}
}

func TestPieceTable_InsertMiddle(t *testing.T) {
	pt := NewPieceTable("Hello world")

	if err := pt.Apply(ot.Insert(5, " collaborative")); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := "Hello collaborative world"
	if got := pt.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestPieceTable_DeleteMiddle(t *testing.T) {
	pt := NewPieceTable("Hello collaborative world")

	// 保留 "Hello"，然后删 " collaborative"
	if err := pt.Apply(ot.Delete(5, 14)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := "Hello world"
	if got := pt.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestPieceTable_DeleteAcrossPieces(t *testing.T) {
	pt := NewPieceTable("abc")
	_ = pt.Apply(ot.Insert(1, "XY"))
	if err := pt.Apply(ot.Delete(2, 2)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := pt.String(); got != "aXc" {
		t.Fatalf("String() = %q, want %q", got, "aXc")
	}
	if pt.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", pt.Len())
	}
}

func TestPieceTable_OutOfBoundsLeavesContent(t *testing.T) {
	pt := NewPieceTable("你好")
	err := pt.Apply(ot.Delete(1, 5))
	if !errors.Is(err, ot.ErrOutOfBounds) {
		t.Fatalf("Apply() error = %v, want ErrOutOfBounds", err)
	}
	if got := pt.String(); got != "你好" {
		t.Fatalf("String() = %q, want unchanged", got)
	}
}

func TestApplyPatch_NoPartialMutation(t *testing.T) {
	pt := NewPieceTable("hello")
	err := ApplyPatch(pt, []ot.Op{ot.Insert(5, "!"), ot.Delete(0, 7)})
	if !errors.Is(err, ot.ErrOutOfBounds) {
		t.Fatalf("ApplyPatch() error = %v, want ErrOutOfBounds", err)
	}
	if got := pt.String(); got != "hello" {
		t.Fatalf("String() = %q, want unchanged", got)
	}

	if err := ApplyPatch(pt, []ot.Op{ot.Insert(5, "!"), ot.Delete(0, 6)}); err != nil {
		t.Fatalf("ApplyPatch() error = %v", err)
	}
	if pt.String() != "" || pt.Len() != 0 {
		t.Fatalf("String() = %q, want empty", pt.String())
	}
}

// 随机编辑，和直接操作字符串的结果对比
func TestPieceTable_MatchesStringApply(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	doc := "héllo"
	pt := NewPieceTable(doc)
	for i := 0; i < 3000; i++ {
		op := randomOp(rng, doc)
		want, err := ot.Apply(doc, op)
		if err != nil {
			t.Fatalf("ot.Apply(%v) error = %v", op, err)
		}
		if err := pt.Apply(op); err != nil {
			t.Fatalf("Apply(%v) error = %v", op, err)
		}
		doc = want
		if got := pt.String(); got != doc {
			t.Fatalf("step %d %v: String() = %q, want %q", i, op, got, doc)
		}
		if pt.Len() != len([]rune(doc)) {
			t.Fatalf("step %d: Len() = %d, want %d", i, pt.Len(), len([]rune(doc)))
		}
	}
}

var alphabet = []rune("abé世")

func randomOp(rng *rand.Rand, doc string) ot.Op {
	n := len([]rune(doc))
	index := rng.Intn(n + 1)
	if n == 0 || rng.Intn(5) < 3 {
		r := make([]rune, 1+rng.Intn(3))
		for i := range r {
			r[i] = alphabet[rng.Intn(len(alphabet))]
		}
		return ot.Insert(index, string(r))
	}
	return ot.Delete(index, rng.Intn(n-index+1))
}

func randomPatch(rng *rand.Rand, doc string, max int) []ot.Op {
	n := 1 + rng.Intn(max)
	ops := make([]ot.Op, 0, n)
	for i := 0; i < n; i++ {
		op := randomOp(rng, doc)
		doc, _ = ot.Apply(doc, op)
		ops = append(ops, op)
	}
	return ops
}
