package generator

import (
	"fmt"
	"strings"

	"hbai-chat-go/internal/config"
	"hbai-chat-go/internal/model"
	"hbai-chat-go/pkg/textproc"
)

// NewModelConfig 由配置与已确定的设备构建 ModelConfig。
func NewModelConfig(settings config.ModelSettings, device model.Device) (model.ModelConfig, error) {
	cfg := model.ModelConfig{
		Device:          device,
		MaxContextTurns: settings.MaxContextTurns,
	}
	switch strings.ToLower(strings.TrimSpace(settings.Quantization)) {
	case "4bit", "4", "nf4":
		cfg.QuantizationBits = 4
	case "", "none", "0":
		cfg.QuantizationBits = 0
	default:
		return model.ModelConfig{}, fmt.Errorf("unknown quantization %q (want 4bit or none)", settings.Quantization)
	}
	if cfg.MaxContextTurns <= 0 {
		cfg.MaxContextTurns = textproc.DefaultMaxContextTurns
	}
	return cfg, nil
}
