package ot

import (
	"fmt"
	"unicode/utf8"
)

// CheckBounds 只做边界校验，不修改任何内容
func CheckBounds(docLen int, op Op) error {
	switch op.Kind {
	case KindInsert:
		if op.Index < 0 || op.Index > docLen {
			return fmt.Errorf("%w: insert at %d, document length %d", ErrOutOfBounds, op.Index, docLen)
		}
	case KindDelete:
		if op.Index < 0 || op.Length < 0 || op.Index+op.Length > docLen {
			return fmt.Errorf("%w: delete %d..%d, document length %d", ErrOutOfBounds, op.Index, op.Index+op.Length, docLen)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedOp, op.Kind)
	}
	return nil
}

// Apply 把 op 作用到 doc 上，返回新文档。越界直接报错，不做截断。
func Apply(doc string, op Op) (string, error) {
	if err := CheckBounds(utf8.RuneCountInString(doc), op); err != nil {
		return "", err
	}
	r := []rune(doc)
	if op.IsInsert() {
		return string(r[:op.Index]) + op.Text + string(r[op.Index:]), nil
	}
	return string(r[:op.Index]) + string(r[op.Index+op.Length:]), nil
}

// ApplyAll 依次应用 ops；出错时调用方应丢弃结果，沿用原文档
func ApplyAll(doc string, ops []Op) (string, error) {
	for i, op := range ops {
		var err error
		if doc, err = Apply(doc, op); err != nil {
			return "", fmt.Errorf("op %d: %w", i, err)
		}
	}
	return doc, nil
}
