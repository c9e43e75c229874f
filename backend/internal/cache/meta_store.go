package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sort"

	redis "github.com/redis/go-redis/v9"

	"collabcore/backend/internal/lww"
)

var ErrTxRetriesExhausted = errors.New("TX_RETRIES_EXHAUSTED")

const maxTxRetries = 32

// MetaStore 基于 redis 的 LWW 元数据存储，单机和集群都可以用
type MetaStore struct {
	rdb redis.UniversalClient
}

func NewRedisMetaStore(rdb redis.UniversalClient) *MetaStore {
	return &MetaStore{rdb: rdb}
}

// SaveEntry 只有当 u 的时间戳不小于已存的时间戳时才写入。
// WATCH 保证比较和写入之间没有别的写入插进来，冲突时重试
func (s *MetaStore) SaveEntry(ctx context.Context, docID string, u lww.Update) (bool, error) {
	key := metaKey(docID)
	payload, err := json.Marshal(u)
	if err != nil {
		return false, err
	}

	var written bool
	txf := func(tx *redis.Tx) error {
		written = false
		cur, err := tx.HGet(ctx, key, u.Key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			var existing lww.Update
			// 旧值解析失败直接覆盖
			if json.Unmarshal(cur, &existing) == nil && u.TS.Compare(existing.TS) < 0 {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, u.Key, payload)
			return nil
		})
		if err == nil {
			written = true
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err = s.rdb.Watch(ctx, txf, key)
		if err == nil {
			break
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return false, err
	}
	if err != nil {
		return false, ErrTxRetriesExhausted
	}

	if written {
		// 索引和元数据不在同一个 slot，单独写
		if err := s.rdb.SAdd(ctx, docsKey(), docID).Err(); err != nil {
			log.Printf("index document failed doc=%s err=%v", docID, err)
		}
	}
	return written, nil
}

// LoadEntries 读出文档的全部元数据，按 key 排序
func (s *MetaStore) LoadEntries(ctx context.Context, docID string) ([]lww.Update, error) {
	fields, err := s.rdb.HGetAll(ctx, metaKey(docID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make([]lww.Update, 0, len(fields))
	for field, raw := range fields {
		var u lww.Update
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			log.Printf("skip bad meta entry doc=%s field=%s err=%v", docID, field, err)
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Documents 返回写过元数据的文档
func (s *MetaStore) Documents(ctx context.Context) ([]string, error) {
	docs, err := s.rdb.SMembers(ctx, docsKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	sort.Strings(docs)
	return docs, nil
}
