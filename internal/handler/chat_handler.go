package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"hbai-chat-go/internal/model"
	"hbai-chat-go/internal/service"
	"hbai-chat-go/pkg/log"
	"hbai-chat-go/pkg/textproc"
	"hbai-chat-go/pkg/token"
)

// maxMessageBytes 是单条 WebSocket 消息的最大长度。
const maxMessageBytes = 64 << 10

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ChatHandler 负责处理 WebSocket 聊天连接。
type ChatHandler struct {
	chatService service.ChatService
	jwtManager  *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		jwtManager:  jwtManager,
	}
}

// wsRequest 是客户端发送的消息。sessionId 为空时服务端会创建新会话。
type wsRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// Handle 处理一个传入的 WebSocket 连接。每条消息同步处理，回复顺序为
// state(awaiting_response) -> turn 或 error -> completion。
func (h *ChatHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Param("token"))
	if err != nil {
		respond(c, http.StatusUnauthorized, "无效的 token", nil)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageBytes)

	log.Infof("WebSocket 连接已建立，访客: %s", claims.VisitorID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			break
		}

		var req wsRequest
		if err := json.Unmarshal(message, &req); err != nil {
			writeEvent(conn, gin.H{"type": "error", "code": http.StatusBadRequest, "message": "无效的消息格式"})
			sendCompletion(conn, nil)
			continue
		}
		h.handleMessage(c, conn, claims.VisitorID, req)
	}
}

func (h *ChatHandler) handleMessage(c *gin.Context, conn *websocket.Conn, visitorID string, req wsRequest) {
	lang := textproc.LanguageCode(textproc.DetectLanguage(req.Text))

	res, err := h.chatService.Submit(c.Request.Context(), visitorID, req.SessionID, req.Text, func(s model.Session) {
		writeEvent(conn, gin.H{"type": "state", "sessionId": s.ID, "state": s.State})
	})
	if err != nil {
		status, message := statusFor(err, lang)
		if status >= http.StatusInternalServerError {
			log.Errorf("处理聊天消息失败: %v", err)
		}
		writeEvent(conn, gin.H{"type": "error", "sessionId": req.SessionID, "code": status, "message": message})
		sendCompletion(conn, nil)
		return
	}

	if res.Failed {
		writeEvent(conn, gin.H{"type": "error", "sessionId": res.Session.ID, "code": http.StatusServiceUnavailable, "message": res.Session.LastError})
	} else {
		for _, turn := range res.Appended {
			if turn.Role == model.RoleAssistant {
				writeEvent(conn, gin.H{"type": "turn", "sessionId": res.Session.ID, "turn": turn})
			}
		}
	}
	sendCompletion(conn, &res.Session)
}

func writeEvent(conn *websocket.Conn, event gin.H) {
	b, err := json.Marshal(event)
	if err != nil {
		log.Errorf("序列化 WebSocket 消息失败: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("写入 WebSocket 消息失败: %v", err)
	}
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(conn *websocket.Conn, session *model.Session) {
	now := time.Now()
	writeEvent(conn, gin.H{
		"type":      "completion",
		"status":    "finished",
		"session":   session,
		"timestamp": now.UnixMilli(),
		"date":      now.Format("2006-01-02T15:04:05"),
	})
}
