package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"hbai-chat-go/internal/config"
	"hbai-chat-go/internal/model"
	"hbai-chat-go/pkg/llm"
	"hbai-chat-go/pkg/log"
	"hbai-chat-go/pkg/textproc"
)

// probeMaxTokens 是加载时试探请求的生成长度上限。
const probeMaxTokens = 10

// ModelManager 通过 OpenAI 兼容的推理服务生成回复。
// 设备显存在进程内共享，同一时刻只允许一个解码请求在途。
type ModelManager struct {
	mu     sync.RWMutex
	client llm.Client

	cfg       model.ModelConfig
	gen       config.LLMGenerationConfig
	modelName string
	processor *textproc.Processor
	slot      *semaphore.Weighted
	loadedAt  time.Time
}

// Load 校验配置、确认推理服务可用并返回就绪的 ModelManager。
// 失败时返回 *LoadError，由调用方决定是否回退到 MockModelManager。
func Load(ctx context.Context, client llm.Client, cfg model.ModelConfig, llmCfg config.LLMConfig) (*ModelManager, error) {
	if cfg.Quantized() && cfg.Device == model.DeviceCPU {
		return nil, &LoadError{Reason: LoadIncompatibleConfig, Message: "4bit quantization requires a cuda device"}
	}
	if client == nil || strings.TrimSpace(llmCfg.BaseURL) == "" {
		return nil, &LoadError{Reason: LoadDependencyMissing, Message: "inference endpoint is not configured"}
	}
	if llmCfg.APIKey == "" && !isLocalEndpoint(llmCfg.BaseURL) {
		return nil, &LoadError{Reason: LoadDependencyMissing, Message: "api key is not set for remote endpoint"}
	}

	modelName := llmCfg.Model
	if cfg.Quantized() && llmCfg.QuantizedModel != "" {
		modelName = llmCfg.QuantizedModel
	}
	if modelName == "" {
		return nil, &LoadError{Reason: LoadDependencyMissing, Message: "model name is not configured"}
	}

	log.Infof("[ModelManager] 开始加载模型: %s, device: %s, quantization: %s", modelName, cfg.Device, quantizationLabel(cfg))

	models, err := client.ListModels(ctx)
	var apiErr *llm.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		log.Warnf("[ModelManager] 推理服务不支持 /models 接口，跳过模型列表检查")
	case err != nil:
		return nil, &LoadError{Reason: LoadDownloadFailed, Message: "health check failed", Cause: err}
	case len(models) > 0 && !contains(models, modelName):
		log.Warnf("[ModelManager] 模型列表中未找到 %s，共 %d 个模型，继续试探请求", modelName, len(models))
	}

	processor := textproc.NewProcessor(cfg.MaxContextTurns)
	_, err = client.Complete(ctx, llm.CompletionRequest{
		Model:     modelName,
		Prompt:    processor.BuildPrompt("Hello", nil, textproc.English),
		MaxTokens: probeMaxTokens,
		Stop:      []string{textproc.StopSequence},
	})
	if err != nil {
		return nil, &LoadError{Reason: LoadDownloadFailed, Message: "probe completion failed", Cause: err}
	}

	log.Infof("[ModelManager] 模型加载完成: %s", modelName)
	return &ModelManager{
		client:    client,
		cfg:       cfg,
		gen:       llmCfg.Generation,
		modelName: modelName,
		processor: processor,
		slot:      semaphore.NewWeighted(1),
		loadedAt:  time.Now(),
	}, nil
}

// Generate 构建提示词、解码并清理输出。
func (m *ModelManager) Generate(ctx context.Context, userText string, history model.ChatHistory) (string, error) {
	tag := textproc.DetectLanguage(userText)
	return m.decode(ctx, m.processor.BuildPrompt(userText, history, tag), tag)
}

// GenerateText 对单条输入做一次性生成。
func (m *ModelManager) GenerateText(ctx context.Context, text string) (string, error) {
	tag := textproc.DetectLanguage(text)
	return m.decode(ctx, m.processor.BuildGenerationPrompt(text, tag), tag)
}

func (m *ModelManager) decode(ctx context.Context, prompt string, tag textproc.LanguageTag) (string, error) {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client == nil {
		return "", &GenerationError{Reason: GenerationNotLoaded}
	}

	// 占用设备槽位，所有返回路径上都会释放
	if err := m.slot.Acquire(ctx, 1); err != nil {
		return "", classify(err)
	}
	defer m.slot.Release(1)

	start := time.Now()
	raw, err := client.Complete(ctx, llm.CompletionRequest{
		Model:       m.modelName,
		Prompt:      prompt,
		MaxTokens:   m.gen.MaxTokens,
		Temperature: optional(m.gen.Temperature),
		TopP:        optional(m.gen.TopP),
		Stop:        []string{textproc.StopSequence},
	})
	if err != nil {
		genErr := classify(err)
		log.Warnw("[ModelManager] 生成失败", "reason", genErr.Reason, "latency", time.Since(start).String(), "error", err)
		return "", genErr
	}

	text := textproc.Postprocess(raw, tag)
	if text == "" {
		return "", &GenerationError{Reason: GenerationDevice, Cause: fmt.Errorf("model returned an empty response")}
	}
	log.Infow("[ModelManager] 生成完成", "language", tag, "latency", time.Since(start).String(), "chars", len([]rune(text)))
	return text, nil
}

// Unload 释放客户端并强制回收内存，重复调用无副作用。
func (m *ModelManager) Unload() {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()

	if client != nil {
		client.Close()
		log.Infof("[ModelManager] 模型已卸载: %s", m.modelName)
	}
	debug.FreeOSMemory()
}

// Info 返回后端信息。
func (m *ModelManager) Info() BackendInfo {
	m.mu.RLock()
	loaded := m.client != nil
	m.mu.RUnlock()
	return BackendInfo{
		Kind:            KindModel,
		ModelName:       m.modelName,
		Device:          string(m.cfg.Device),
		Quantization:    quantizationLabel(m.cfg),
		MaxContextTurns: m.cfg.MaxContextTurns,
		Loaded:          loaded,
		LoadedAt:        m.loadedAt,
	}
}

// classify 将底层错误归类为 GenerationError。
func classify(err error) *GenerationError {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &GenerationError{Reason: GenerationTimeout, Cause: err}
	}
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusInsufficientStorage || strings.Contains(strings.ToLower(apiErr.Body), "out of memory") {
			return &GenerationError{Reason: GenerationOutOfMemory, Cause: err}
		}
	}
	return &GenerationError{Reason: GenerationDevice, Cause: err}
}

func isLocalEndpoint(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func optional(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
