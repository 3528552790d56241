package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"realtime-poll-backend/models"
)

const (
	// 写入超时
	writeWait = 10 * time.Second

	// 读取超时
	pongWait = 60 * time.Second

	// 发送ping间隔时间，必须小于pongWait
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 允许所有跨域请求，生产环境应限制
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SnapshotFunc 返回指定短码的当前结果快照JSON，
// 新订阅者加入房间时推送一次，保证其立即同步到最新状态
type SnapshotFunc func(pollCode string) ([]byte, error)

// Handler WebSocket处理器
type Handler struct {
	hub      *Hub
	snapshot SnapshotFunc
}

// NewHandler 创建WebSocket处理器
func NewHandler(hub *Hub, snapshot SnapshotFunc) *Handler {
	return &Handler{hub: hub, snapshot: snapshot}
}

// HandleConnection 处理订阅某个投票的WebSocket连接请求。
// 短码无效时在升级前拒绝；连接断开时客户端自动退出房间
func (h *Handler) HandleConnection(c *gin.Context) {
	pollCode := models.NormalizeCode(c.Param("code"))

	// 升级前先确认投票存在，取当前快照
	initial, err := h.snapshot(pollCode)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Poll not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("升级WebSocket连接失败: %v", err)
		return
	}

	client := &Client{
		PollCode: pollCode,
		conn:     conn,
		send:     make(chan []byte, 256),
	}

	// 注册前先把当前快照压入发送队列：注册后到达的广播
	// 只能排在快照之后，新订阅者看到的第一条消息不会是旧状态
	client.send <- initial

	h.hub.RegisterClient(client)

	go h.writePump(client)
	go h.readPump(client)

	log.Printf("新WebSocket连接已建立 [%s]", pollCode)
}

// readPump 从WebSocket连接读取消息，连接断开时注销客户端
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.UnregisterClient(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket读取错误: %v", err)
			}
			break
		}
		// 订阅者只接收快照，不处理客户端消息
	}
}

// writePump 向WebSocket连接发送消息
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 通道已关闭
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := client.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 添加队列中的消息
			n := len(client.send)
			for i := 0; i < n; i++ {
				w.Write(<-client.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
