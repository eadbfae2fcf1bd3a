package connectivity

import (
	"sort"
	"sync"
)

// Listener はオンライン状態の変化を受け取ります。
type Listener func(online bool)

// Monitor はプロセス内で 1 つだけ所有されるオンライン状態です。
type Monitor struct {
	mu        sync.Mutex
	online    bool
	nextID    int
	listeners map[int]Listener
}

// NewMonitor は初期状態を指定して Monitor を生成します。
func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online, listeners: make(map[int]Listener)}
}

// Online は現在オンラインかどうかを返します。
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set は状態を更新します。変化した場合だけ true を返し、購読者へ同期的に通知します。
func (m *Monitor) Set(online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, m.listeners[id])
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(online)
	}
	return true
}

// Subscribe は購読者を登録し、解除用の関数を返します。
func (m *Monitor) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}
