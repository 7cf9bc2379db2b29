//go:generate mockgen -source=$GOFILE -destination=generator_mock.go -package=$GOPACKAGE

// Package generator 提供聊天回复的两种生成后端：调用推理服务的 ModelManager，
// 以及在模型无法加载时使用的 MockModelManager。二者实现同一个 Generator 接口，
// 启动时根据加载结果选定其一。
package generator

import (
	"context"
	"time"

	"hbai-chat-go/internal/model"
)

// Kind 标识当前使用的生成后端。
type Kind string

const (
	KindModel Kind = "model"
	KindMock  Kind = "mock"
)

// Generator 是聊天会话依赖的生成能力。
type Generator interface {
	// Generate 根据历史和当前用户输入生成助手回复。
	Generate(ctx context.Context, userText string, history model.ChatHistory) (string, error)
	// GenerateText 对单条输入做一次性文本生成，不带会话历史。
	GenerateText(ctx context.Context, text string) (string, error)
	// Unload 释放后端资源，可重复调用。
	Unload()
	// Info 返回后端的描述信息。
	Info() BackendInfo
}

// BackendInfo 描述当前生成后端，用于界面展示。
type BackendInfo struct {
	Kind            Kind      `json:"kind"`
	ModelName       string    `json:"modelName"`
	Device          string    `json:"device"`
	Quantization    string    `json:"quantization"`
	MaxContextTurns int       `json:"maxContextTurns"`
	Loaded          bool      `json:"loaded"`
	LoadedAt        time.Time `json:"loadedAt"`
}

func quantizationLabel(cfg model.ModelConfig) string {
	if cfg.Quantized() {
		return "4bit"
	}
	return "none"
}
