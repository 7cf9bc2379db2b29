// Package llm provides a client for OpenAI-compatible inference endpoints.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"hbai-chat-go/internal/config"
)

const defaultRetryWait = 3 * time.Second

// Client defines the decode capability of the model collaborator.
type Client interface {
	// ListModels 返回推理服务当前可用的模型 ID，用于健康检查。
	ListModels(ctx context.Context) ([]string, error)
	// Complete 以原始提示词调用 /completions 接口并返回生成文本。
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Close 释放客户端持有的空闲连接。
	Close()
}

// CompletionRequest 描述一次有界长度的解码请求。
type CompletionRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	Stop        []string
}

// APIError 表示推理服务返回了非 2xx 状态码。
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm api returned status %d: %s", e.StatusCode, e.Body)
}

type restyClient struct {
	cfg  config.LLMConfig
	http *resty.Client
}

// NewClient creates a client for the endpoint in cfg. 503 (model loading) responses are
// retried up to cfg.Generation.MaxRetries times.
func NewClient(cfg config.LLMConfig) Client {
	return newClient(cfg, defaultRetryWait)
}

func newClient(cfg config.LLMConfig, retryWait time.Duration) *restyClient {
	hc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(cfg.Generation.MaxRetries).
		SetRetryWaitTime(retryWait).
		SetRetryMaxWaitTime(retryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && r.StatusCode() == http.StatusServiceUnavailable
		})
	if cfg.APIKey != "" {
		hc.SetAuthToken(cfg.APIKey)
	}
	// OpenRouter 用于路由统计的可选请求头
	if cfg.Referer != "" {
		hc.SetHeader("HTTP-Referer", cfg.Referer)
	}
	if cfg.Title != "" {
		hc.SetHeader("X-Title", cfg.Title)
	}
	return &restyClient{cfg: cfg, http: hc}
}

type completionBody struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (c *restyClient) ListModels(ctx context.Context) ([]string, error) {
	var out modelsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/models")
	if err != nil {
		return nil, fmt.Errorf("failed to call models api: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	ids := make([]string, 0, len(out.Data))
	for _, m := range out.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (c *restyClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	body := completionBody{
		Model:       req.Model,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}
	if body.Model == "" {
		body.Model = c.cfg.Model
	}

	var out completionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/completions")
	if err != nil {
		return "", fmt.Errorf("failed to call completions api: %w", err)
	}
	if resp.IsError() {
		return "", &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("completions api returned no choices")
	}
	return out.Choices[0].Text, nil
}

func (c *restyClient) Close() {
	c.http.GetClient().CloseIdleConnections()
}
