package model

// Device 表示推理所用的设备。
type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

// ModelConfig 在启动时根据配置和环境确定一次，之后不再修改。
type ModelConfig struct {
	// QuantizationBits 为 4 表示 4bit 量化，0 表示不量化。
	QuantizationBits int
	Device           Device
	MaxContextTurns  int
}

// Quantized 报告是否启用了量化。
func (c ModelConfig) Quantized() bool {
	return c.QuantizationBits == 4
}
