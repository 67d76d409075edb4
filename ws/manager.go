package ws

import (
	"context"
	"sync"

	"learnhub_backend/internal/logger"
)

// WebSocketManager держит подключения по пользователям. У одного
// пользователя может быть несколько вкладок.
type WebSocketManager struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewWebSocketManager() *WebSocketManager {
	return &WebSocketManager{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run обслуживает регистрацию до отмены ctx.
func (manager *WebSocketManager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			manager.closeAll()
			return

		case client := <-manager.register:
			manager.mu.Lock()
			if manager.clients[client.UserID] == nil {
				manager.clients[client.UserID] = make(map[*Client]struct{})
			}
			manager.clients[client.UserID][client] = struct{}{}
			manager.mu.Unlock()
			logger.Debug("WebSocket client registered", "user_id", client.UserID, "total", manager.GetClientCount())

		case client := <-manager.unregister:
			manager.remove(client)
		}
	}
}

func (manager *WebSocketManager) remove(client *Client) {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	conns, ok := manager.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	close(client.Send)
	delete(conns, client)
	if len(conns) == 0 {
		delete(manager.clients, client.UserID)
	}
	logger.Debug("WebSocket client unregistered", "user_id", client.UserID)
}

func (manager *WebSocketManager) closeAll() {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	for userID, conns := range manager.clients {
		for client := range conns {
			close(client.Send)
		}
		delete(manager.clients, userID)
	}
}

// SendToUser кладет сообщение во все подключения пользователя.
// false = пользователь не подключен.
func (manager *WebSocketManager) SendToUser(userID string, message any) bool {
	manager.mu.RLock()
	defer manager.mu.RUnlock()

	conns, ok := manager.clients[userID]
	if !ok || len(conns) == 0 {
		return false
	}

	delivered := false
	for client := range conns {
		select {
		case client.Send <- message:
			delivered = true
		default:
			// Канал заполнен, клиент отключается
			go func(c *Client) {
				manager.unregister <- c
			}(client)
			logger.Warn("WebSocket client dropped due to full send channel", "user_id", userID)
		}
	}
	return delivered
}

// GetClientCount возвращает количество подключений
func (manager *WebSocketManager) GetClientCount() int {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	total := 0
	for _, conns := range manager.clients {
		total += len(conns)
	}
	return total
}

// IsUserConnected проверяет, подключен ли пользователь
func (manager *WebSocketManager) IsUserConnected(userID string) bool {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return len(manager.clients[userID]) > 0
}
