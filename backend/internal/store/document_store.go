package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentStore struct{ db *gorm.DB }

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) GetDocumentID(ctx context.Context, title string) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var doc Document
	err := s.db.WithContext(ctx).Select("id").Where("title = ?", title).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrDocumentNotFound
	}
	if err != nil {
		return "", translate(err)
	}
	return doc.ID, nil
}

// CreateDocument 标题唯一，返回新文档 ID
func (s *DocumentStore) CreateDocument(ctx context.Context, ownerID uint64, title string) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	doc := Document{ID: uuid.NewString(), OwnerID: ownerID, Title: title}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		if isDuplicateKey(err) {
			return "", ErrTitleTaken
		}
		return "", translate(err)
	}
	return doc.ID, nil
}
