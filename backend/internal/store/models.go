package store

import "time"

type Document struct {
	ID        string `gorm:"primaryKey;size:36"`
	OwnerID   uint64 `gorm:"index"`
	Title     string `gorm:"size:255;uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentSnapshot 同一文档同一版本只存一份
type DocumentSnapshot struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	DocumentID string `gorm:"size:36;uniqueIndex:uk_doc_rev"`
	Revision   uint64 `gorm:"uniqueIndex:uk_doc_rev"`
	Content    string `gorm:"type:longtext"`
	CreatedAt  time.Time
}
