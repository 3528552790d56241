package websocket

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"realtime-poll-backend/models"
)

// Client 代表一个WebSocket连接客户端
type Client struct {
	// 订阅的投票短码，已归一化为大写
	PollCode string

	// WebSocket连接
	conn *websocket.Conn

	// 消息发送通道
	send chan []byte
}

// Hub 按投票短码维护订阅者集合，并向房间内所有客户端广播结果快照。
// 首个订阅者加入时创建房间，最后一个离开时删除房间
type Hub struct {
	// 已注册的客户端，按投票短码分组
	clients map[string]map[*Client]bool

	// 注册请求
	register chan *Client

	// 注销请求
	unregister chan *Client

	// 互斥锁保护clients map
	mu sync.RWMutex
}

// NewHub 创建一个新的Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run 启动Hub消息处理循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[client.PollCode]; !ok {
				h.clients[client.PollCode] = make(map[*Client]bool)
			}
			h.clients[client.PollCode][client] = true
			count := len(h.clients[client.PollCode])
			h.mu.Unlock()
			log.Printf("客户端加入房间 [%s]，当前订阅数: %d", client.PollCode, count)

		case client := <-h.unregister:
			h.removeClient(client)
			log.Printf("客户端离开房间 [%s]", client.PollCode)
		}
	}
}

// Broadcast 向指定短码房间内的所有客户端推送消息。
// 发送是尽力而为：单个客户端缓冲区满不会阻塞其他客户端，
// 该客户端会被移出房间；没有订阅者时为空操作。
// 发送和通道关闭都在h.mu内串行执行，通道不会在发送中途被关闭
func (h *Hub) Broadcast(pollCode string, payload []byte) {
	pollCode = models.NormalizeCode(pollCode)

	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.clients[pollCode]
	if len(room) == 0 {
		return
	}

	total := len(room)
	delivered := 0
	for client := range room {
		select {
		case client.send <- payload:
			delivered++
		default:
			// 发送缓冲区已满，视为死连接
			h.removeClientLocked(client)
		}
	}
	log.Printf("广播快照到 %d/%d 个客户端 [%s]", delivered, total, pollCode)
}

// RoomSize 返回房间当前订阅数
func (h *Hub) RoomSize(pollCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[models.NormalizeCode(pollCode)])
}

// RegisterClient 注册客户端到Hub
func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient 从Hub中注销客户端
func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// removeClient 将客户端移出房间并关闭发送通道，重复移除是空操作
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeClientLocked(client)
}

// removeClientLocked 调用方必须持有h.mu
func (h *Hub) removeClientLocked(client *Client) {
	room, ok := h.clients[client.PollCode]
	if !ok {
		return
	}
	if _, ok := room[client]; !ok {
		return
	}

	delete(room, client)
	close(client.send)
	if len(room) == 0 {
		delete(h.clients, client.PollCode)
	}
}
