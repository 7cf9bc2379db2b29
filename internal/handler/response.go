// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hbai-chat-go/internal/chat"
	"hbai-chat-go/internal/generator"
	"hbai-chat-go/internal/service"
	"hbai-chat-go/pkg/log"
	"hbai-chat-go/pkg/textproc"
)

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": data})
}

func ok(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, "success", data)
}

// statusFor 将业务错误映射为 HTTP 状态码与提示信息。
func statusFor(err error, lang string) (int, string) {
	var genErr *generator.GenerationError
	switch {
	case service.IsNotFound(err):
		return http.StatusNotFound, "会话不存在"
	case errors.Is(err, chat.ErrBusy):
		return http.StatusConflict, "会话正在等待回复"
	case errors.Is(err, chat.ErrUnacknowledged):
		return http.StatusConflict, "请先确认会话中的错误"
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, textproc.Messages(lang).EmptyPrompt
	case errors.Is(err, service.ErrExportDisabled), errors.Is(err, service.ErrArchiveDisabled):
		return http.StatusServiceUnavailable, err.Error()
	case errors.As(err, &genErr) && genErr.Reason == generator.GenerationTimeout:
		return http.StatusGatewayTimeout, textproc.Messages(lang).GenerationTimeout
	case errors.As(err, &genErr):
		return http.StatusServiceUnavailable, textproc.Messages(lang).GenerationFailed
	default:
		return http.StatusInternalServerError, textproc.Messages(lang).Error
	}
}

func fail(c *gin.Context, op string, err error) {
	failIn(c, op, err, c.Query("lang"))
}

// failIn 与 fail 相同，但提示信息使用指定的语言。
func failIn(c *gin.Context, op string, err error, lang string) {
	status, message := statusFor(err, lang)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s: %v", op, err)
	} else {
		log.Warnf("%s: %v", op, err)
	}
	respond(c, status, message, nil)
}
