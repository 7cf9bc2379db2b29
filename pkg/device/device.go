// Package device 负责确定推理设备（cpu 或 cuda）。
package device

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"hbai-chat-go/internal/model"
)

// detectTimeout 限制 nvidia-smi 探测的耗时。
const detectTimeout = 5 * time.Second

// runCommand 执行外部命令并返回标准输出，测试中可替换。
var runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Resolve 将配置值解析为设备：cpu/cuda 直接使用，auto 或空值时自动探测。
func Resolve(ctx context.Context, setting string) (model.Device, error) {
	switch strings.ToLower(strings.TrimSpace(setting)) {
	case "cpu":
		return model.DeviceCPU, nil
	case "cuda", "gpu":
		return model.DeviceCUDA, nil
	case "", "auto":
		return Detect(ctx), nil
	default:
		return "", fmt.Errorf("unknown device %q (want cpu, cuda or auto)", setting)
	}
}

// Detect 通过 nvidia-smi 查询 GPU，查询成功且有输出时返回 cuda，否则返回 cpu。
func Detect(ctx context.Context) model.Device {
	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	out, err := runCommand(ctx, "nvidia-smi", "--query-gpu=name", "--format=csv,noheader")
	if err != nil || strings.TrimSpace(string(out)) == "" {
		return model.DeviceCPU
	}
	return model.DeviceCUDA
}
