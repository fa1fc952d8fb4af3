package collection

import (
	"sync"

	"github.com/iudanet/docsync/internal/models"
)

// Listener получает события изменения коллекции
type Listener interface {
	OnEvent(event *models.ChangeEvent)
}

// ListenerFunc адаптер функции к Listener
type ListenerFunc func(event *models.ChangeEvent)

// OnEvent вызывает f(event)
func (f ListenerFunc) OnEvent(event *models.ChangeEvent) {
	f(event)
}

// Broadcaster рассылает события всем подписчикам.
// События доставляются синхронно в порядке подписки.
type Broadcaster struct {
	listeners map[uint64]Listener
	order     []uint64
	next      uint64
	mu        sync.RWMutex
}

// NewBroadcaster создает пустой Broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[uint64]Listener)}
}

// Subscribe добавляет подписчика, возвращает функцию отписки
func (b *Broadcaster) Subscribe(listener Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	b.listeners[id] = listener
	b.order = append(b.order, id)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		delete(b.listeners, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

// Publish доставляет событие подписчикам.
// Блокировка не удерживается во время вызова подписчиков.
func (b *Broadcaster) Publish(event *models.ChangeEvent) {
	b.mu.RLock()
	targets := make([]Listener, 0, len(b.order))
	for _, id := range b.order {
		targets = append(targets, b.listeners[id])
	}
	b.mu.RUnlock()

	for _, l := range targets {
		l.OnEvent(event)
	}
}
