package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"hbai-chat-go/pkg/log"
	"hbai-chat-go/pkg/token"
)

// AuthHandler 负责签发访客 token。
type AuthHandler struct {
	jwtManager *token.JWTManager
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(jwtManager *token.JWTManager) *AuthHandler {
	return &AuthHandler{jwtManager: jwtManager}
}

// VisitorRequest 定义了签发访客 token 的请求体结构。
type VisitorRequest struct {
	// Token 为已有的访客 token，有效时为同一访客续签。
	Token    string `json:"token"`
	Language string `json:"language"`
}

// Visitor 签发访客 token。访客没有账号，会话按访客 ID 隔离。
func (h *AuthHandler) Visitor(c *gin.Context) {
	var req VisitorRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Warnf("Visitor: Invalid request payload, error: %v", err)
			respond(c, http.StatusBadRequest, "无效的请求负载", nil)
			return
		}
	}

	visitorID := ""
	if req.Token != "" {
		if claims, err := h.jwtManager.VerifyToken(req.Token); err == nil {
			visitorID = claims.VisitorID
		}
	}
	lang := strings.ToLower(req.Language)
	if lang != "en" {
		lang = "ko"
	}

	signed, claims, err := h.jwtManager.IssueVisitorToken(visitorID, lang)
	if err != nil {
		log.Errorf("Visitor: failed to sign token: %v", err)
		respond(c, http.StatusInternalServerError, "签发 token 失败", nil)
		return
	}
	ok(c, gin.H{
		"token":     signed,
		"visitorId": claims.VisitorID,
		"language":  lang,
		"expiresAt": claims.ExpiresAt.Time,
	})
}
