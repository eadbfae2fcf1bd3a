package syncqueue

import (
	"context"
	"sync"
)

// HeaderOperationID は再送リクエストに付与するオペレーション ID のヘッダ名です。
const HeaderOperationID = "X-Queue-Operation-Id"

// Operation はオフライン中に発行された書き込みリクエストです。
type Operation struct {
	ID                string            `json:"id"`
	TargetEndpoint    string            `json:"url"`
	Method            string            `json:"method"`
	Headers           map[string]string `json:"headers,omitempty"`
	SerializedBody    string            `json:"body,omitempty"`
	EnqueuedAtEpochMs int64             `json:"timestamp"`
}

func (o Operation) clone() Operation {
	if o.Headers != nil {
		headers := make(map[string]string, len(o.Headers))
		for k, v := range o.Headers {
			headers[k] = v
		}
		o.Headers = headers
	}
	return o
}

// Sender はキューの操作をリモートストアへ送信します。
// 受理されたら nil、通信失敗やサーバ側の拒否ならエラーを返します。
type Sender interface {
	Deliver(ctx context.Context, op Operation) error
}

// SenderFunc は関数を Sender として扱うためのアダプタです。
type SenderFunc func(ctx context.Context, op Operation) error

func (f SenderFunc) Deliver(ctx context.Context, op Operation) error {
	return f(ctx, op)
}

// Storage はシリアライズ済みキューを保持する永続スロットです。
// Load は未保存なら nil を返します。
type Storage interface {
	Load() ([]byte, error)
	Save(data []byte) error
}

// MemoryStorage はプロセス内だけで保持する Storage です。
type MemoryStorage struct {
	mu      sync.Mutex
	data    []byte
	saves   int
	failErr error
}

func (m *MemoryStorage) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemoryStorage) Save(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

// Saves は成功した Save の回数を返します。
func (m *MemoryStorage) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// SetFailure は以降の Save が返すエラーを設定します。nil で解除します。
func (m *MemoryStorage) SetFailure(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}
