package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type SnapshotStore struct{ db *gorm.DB }

func NewSnapshotStore(db *gorm.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// SaveDocumentSnapshot 同一版本重复保存视为成功
func (s *SnapshotStore) SaveDocumentSnapshot(ctx context.Context, docID string, rev uint64, content string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	snap := DocumentSnapshot{DocumentID: docID, Revision: rev, Content: content}
	if err := s.db.WithContext(ctx).Create(&snap).Error; err != nil {
		if isDuplicateKey(err) {
			return nil
		}
		return translate(err)
	}
	return nil
}

// LatestSnapshot 取版本号最大的快照
func (s *SnapshotStore) LatestSnapshot(ctx context.Context, docID string) (string, uint64, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var snap DocumentSnapshot
	err := s.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("revision DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, translate(err)
	}
	return snap.Content, snap.Revision, true, nil
}
