package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"hbai-chat-go/internal/middleware"
	"hbai-chat-go/internal/service"
	"hbai-chat-go/pkg/log"
	"hbai-chat-go/pkg/textproc"
)

// SessionHandler 处理与聊天会话相关的 API 请求。
type SessionHandler struct {
	sessionService service.SessionService
	chatService    service.ChatService
	exportService  service.ExportService
}

// NewSessionHandler 创建一个新的 SessionHandler。
func NewSessionHandler(sessionService service.SessionService, chatService service.ChatService, exportService service.ExportService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		chatService:    chatService,
		exportService:  exportService,
	}
}

// CreateSessionRequest 定义了创建会话的请求体结构。
type CreateSessionRequest struct {
	Temporary bool   `json:"temporary"`
	Language  string `json:"language"`
}

// Create 创建新会话，临时会话不出现在会话列表中。
func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond(c, http.StatusBadRequest, "无效的请求负载", nil)
			return
		}
	}
	session, err := h.sessionService.Create(c.Request.Context(), middleware.VisitorID(c), req.Temporary, req.Language)
	if err != nil {
		fail(c, "CreateSession", err)
		return
	}
	respond(c, http.StatusCreated, "success", session)
}

// List 返回访客的会话列表。
func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.sessionService.List(c.Request.Context(), middleware.VisitorID(c))
	if err != nil {
		fail(c, "ListSessions", err)
		return
	}
	ok(c, sessions)
}

// Get 返回会话及其完整历史。
func (h *SessionHandler) Get(c *gin.Context) {
	detail, err := h.sessionService.Get(c.Request.Context(), middleware.VisitorID(c), c.Param("id"))
	if err != nil {
		fail(c, "GetSession", err)
		return
	}
	ok(c, detail)
}

// Delete 删除会话，并清理其导出文件。
func (h *SessionHandler) Delete(c *gin.Context) {
	visitorID, sessionID := middleware.VisitorID(c), c.Param("id")
	if err := h.sessionService.Delete(c.Request.Context(), visitorID, sessionID); err != nil {
		fail(c, "DeleteSession", err)
		return
	}
	if err := h.exportService.Remove(c.Request.Context(), visitorID, sessionID); err != nil {
		log.Warnf("DeleteSession: failed to remove export of %s: %v", sessionID, err)
	}
	ok(c, nil)
}

// SubmitRequest 定义了提交消息的请求体结构。
type SubmitRequest struct {
	Text string `json:"text"`
}

// Submit 向会话提交一条消息并等待回复。生成失败时仍返回 200，会话处于 error 状态，
// 错误提示在 session.lastError 中。
func (h *SessionHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "无效的请求负载", nil)
		return
	}
	lang := textproc.LanguageCode(textproc.DetectLanguage(req.Text))
	res, err := h.chatService.Submit(c.Request.Context(), middleware.VisitorID(c), c.Param("id"), req.Text, nil)
	if err != nil {
		failIn(c, "SubmitMessage", err, lang)
		return
	}
	ok(c, res)
}

// Acknowledge 确认会话错误。
func (h *SessionHandler) Acknowledge(c *gin.Context) {
	session, err := h.sessionService.Acknowledge(c.Request.Context(), middleware.VisitorID(c), c.Param("id"))
	if err != nil {
		fail(c, "AcknowledgeSession", err)
		return
	}
	ok(c, session)
}

// Reset 清空会话历史。
func (h *SessionHandler) Reset(c *gin.Context) {
	session, err := h.sessionService.Reset(c.Request.Context(), middleware.VisitorID(c), c.Param("id"))
	if err != nil {
		fail(c, "ResetSession", err)
		return
	}
	ok(c, session)
}

// Export 将会话导出为 Markdown 并返回下载链接。
func (h *SessionHandler) Export(c *gin.Context) {
	res, err := h.exportService.Export(c.Request.Context(), middleware.VisitorID(c), c.Param("id"))
	if err != nil {
		fail(c, "ExportSession", err)
		return
	}
	ok(c, res)
}

// ArchiveHandler 处理归档问答记录的查询。
type ArchiveHandler struct {
	archiveService service.ArchiveService
}

// NewArchiveHandler 创建一个新的 ArchiveHandler。
func NewArchiveHandler(archiveService service.ArchiveService) *ArchiveHandler {
	return &ArchiveHandler{archiveService: archiveService}
}

// List 分页返回访客的归档记录。
func (h *ArchiveHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if page < 1 {
		page = 1
	}

	items, total, err := h.archiveService.List(middleware.VisitorID(c), page, size)
	if err != nil {
		fail(c, "ListArchive", err)
		return
	}
	ok(c, gin.H{"content": items, "totalElements": total, "number": page, "size": size})
}
