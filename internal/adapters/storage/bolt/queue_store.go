// Package bolt は bbolt ファイルに同期キューを保存する Storage です。
package bolt

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ogurasousui/attendance-sync/internal/core/syncqueue"
	"go.etcd.io/bbolt"
)

const (
	bucketSyncQueue = "sync_queue"         // key: QueueKey -> シリアライズ済みキュー
	QueueKey        = "attendanceSyncQueue"
)

// QueueStore は syncqueue.Storage の bbolt 実装です。
type QueueStore struct {
	db *bbolt.DB
}

var _ syncqueue.Storage = (*QueueStore)(nil)

// Open は path のデータベースを開き、バケットを用意します。
func Open(path string) (*QueueStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create queue dir: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketSyncQueue))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create queue bucket: %w", err)
	}

	return &QueueStore{db: db}, nil
}

// Close はデータベースを閉じます。
func (s *QueueStore) Close() error {
	return s.db.Close()
}

func (s *QueueStore) Load() ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketSyncQueue))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(QueueKey)); v != nil {
			// トランザクション外では v を参照できない
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

func (s *QueueStore) Save(data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucketSyncQueue))
		if err != nil {
			return err
		}
		return b.Put([]byte(QueueKey), data)
	})
}
