package handlers

import (
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

// peer одно websocket-подключение реплики к DataGate.
// Все записи в соединение идут через очередь send и одну горутину writeLoop.
type peer struct {
	conn       *ws.Conn
	logger     *slog.Logger
	send       chan []byte
	done       chan struct{}
	replicaID  string
	collection string
	writeWait  time.Duration
	closeOnce  sync.Once
	writer     sync.WaitGroup
}

func newPeer(conn *ws.Conn, replicaID, collection string, buffer int, writeWait time.Duration, logger *slog.Logger) *peer {
	p := &peer{
		conn:       conn,
		logger:     logger,
		send:       make(chan []byte, buffer),
		done:       make(chan struct{}),
		replicaID:  replicaID,
		collection: collection,
		writeWait:  writeWait,
	}

	p.writer.Add(1)
	go p.writeLoop()

	return p
}

// enqueue ставит кадр в очередь отправки.
// Переполненная очередь означает медленную реплику: соединение закрывается,
// реплика догонит изменения при переподключении.
func (p *peer) enqueue(data []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.send <- data:
		return true
	case <-p.done:
		return false
	default:
		p.logger.Warn("Send queue overflow, closing session")
		p.close()
		return false
	}
}

func (p *peer) writeLoop() {
	defer p.writer.Done()

	for {
		select {
		case <-p.done:
			return
		case data := <-p.send:
			if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeWait)); err != nil {
				p.close()
				return
			}
			if err := p.conn.WriteMessage(ws.TextMessage, data); err != nil {
				p.logger.Debug("Write failed", "error", err)
				p.close()
				return
			}
		}
	}
}

// close закрывает соединение; повторные вызовы безопасны
func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

// closeWith отправляет реплике close-кадр с причиной и закрывает соединение
func (p *peer) closeWith(code int, reason string) {
	deadline := time.Now().Add(p.writeWait)
	if err := p.conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(code, reason), deadline); err != nil {
		p.logger.Debug("Close frame not sent", "error", err)
	}
	p.close()
}

// wait дожидается остановки writeLoop
func (p *peer) wait() {
	p.writer.Wait()
}

// Hub рассылает принятые изменения всем сессиям коллекции
type Hub struct {
	peers map[string]map[*peer]struct{}
	mu    sync.RWMutex
}

// NewHub создает пустой hub
func NewHub() *Hub {
	return &Hub{peers: make(map[string]map[*peer]struct{})}
}

func (h *Hub) join(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.peers[p.collection]
	if !ok {
		set = make(map[*peer]struct{})
		h.peers[p.collection] = set
	}
	set[p] = struct{}{}
}

func (h *Hub) leave(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.peers[p.collection]
	delete(set, p)
	if len(set) == 0 {
		delete(h.peers, p.collection)
	}
}

// broadcast отправляет кадр всем сессиям коллекции, кроме from.
// Возвращает количество сессий, принявших кадр в очередь.
func (h *Hub) broadcast(from *peer, collection string, data []byte) int {
	h.mu.RLock()
	targets := make([]*peer, 0, len(h.peers[collection]))
	for p := range h.peers[collection] {
		if p != from {
			targets = append(targets, p)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, p := range targets {
		if p.enqueue(data) {
			delivered++
		}
	}
	return delivered
}

// Len возвращает количество активных сессий
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, set := range h.peers {
		n += len(set)
	}
	return n
}

// CloseAll закрывает все сессии; используется при остановке сервера,
// так как http.Server.Shutdown не ждет hijacked-соединения
func (h *Hub) CloseAll() {
	h.mu.RLock()
	peers := make([]*peer, 0)
	for _, set := range h.peers {
		for p := range set {
			peers = append(peers, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range peers {
		p.close()
	}
}
