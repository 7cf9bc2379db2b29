package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"hbai-chat-go/internal/service"
	"hbai-chat-go/pkg/textproc"
)

// SystemHandler 提供健康检查、界面文案与模型信息。
type SystemHandler struct {
	chatService service.ChatService
}

// NewSystemHandler 创建一个新的 SystemHandler 实例。
func NewSystemHandler(chatService service.ChatService) *SystemHandler {
	return &SystemHandler{chatService: chatService}
}

// Health 返回服务状态与当前生成后端类型。
func (h *SystemHandler) Health(c *gin.Context) {
	info := h.chatService.ModelInfo()
	ok(c, gin.H{"status": "ok", "backend": info.Kind, "loaded": info.Loaded})
}

// I18n 返回指定语言的界面文案。
func (h *SystemHandler) I18n(c *gin.Context) {
	lang := strings.ToLower(c.Param("lang"))
	if lang != "ko" && lang != "en" {
		respond(c, http.StatusNotFound, "unsupported language", nil)
		return
	}
	ok(c, textproc.Messages(lang))
}

// Model 返回生成后端的详细信息。
func (h *SystemHandler) Model(c *gin.Context) {
	ok(c, h.chatService.ModelInfo())
}

// GenerateRequest 定义了一次性文本生成的请求体结构。
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// Generate 对单条提示词做一次性生成，不关联会话。
func (h *SystemHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "无效的请求负载", nil)
		return
	}
	tag := textproc.DetectLanguage(req.Prompt)
	text, err := h.chatService.Generate(c.Request.Context(), req.Prompt)
	if err != nil {
		failIn(c, "Generate", err, textproc.LanguageCode(tag))
		return
	}
	ok(c, gin.H{"text": text, "language": textproc.LanguageCode(tag)})
}
