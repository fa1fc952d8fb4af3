package crdt

import (
	"sync"

	"github.com/google/uuid"

	"github.com/iudanet/docsync/internal/models"
)

// LamportClock логические часы Лампорта.
// Выдают LastModified для локальных изменений коллекции и продвигаются
// каждым входящим элементом фида, чтобы локальные записи шли после увиденных удаленных.
type LamportClock struct {
	nodeID  string           // идентификатор узла, участвует в разрешении равных timestamp
	counter models.Timestamp // монотонно возрастающий счетчик
	mu      sync.Mutex
}

// NewLamportClock создает часы для узла nodeID.
// Пустой nodeID заменяется случайным UUID.
func NewLamportClock(nodeID string) *LamportClock {
	if nodeID == "" {
		nodeID = uuid.New().String()
	}

	return &LamportClock{nodeID: nodeID}
}

// Tick увеличивает счетчик и возвращает новый timestamp локального события
func (lc *LamportClock) Tick() models.Timestamp {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.counter++
	return lc.counter
}

// Update учитывает удаленный timestamp:
// counter = max(local_counter, remote_timestamp) + 1
func (lc *LamportClock) Update(remote models.Timestamp) models.Timestamp {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if remote > lc.counter {
		lc.counter = remote
	}
	lc.counter++

	return lc.counter
}

// Now возвращает текущее значение без изменения
func (lc *LamportClock) Now() models.Timestamp {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	return lc.counter
}

// Restore поднимает счетчик до сохраненного значения после перезапуска.
// Счетчик никогда не уменьшается.
func (lc *LamportClock) Restore(ts models.Timestamp) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if ts > lc.counter {
		lc.counter = ts
	}
}

// NodeID возвращает идентификатор узла
func (lc *LamportClock) NodeID() string {
	return lc.nodeID
}
