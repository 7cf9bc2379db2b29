package generator

import "fmt"

// LoadReason 是模型加载失败的原因分类。
type LoadReason string

const (
	LoadDependencyMissing  LoadReason = "dependency_missing"
	LoadDownloadFailed     LoadReason = "download_failed"
	LoadIncompatibleConfig LoadReason = "incompatible_config"
)

// LoadError 表示模型加载失败，调用方应回退到 MockModelManager。
type LoadError struct {
	Reason  LoadReason
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("load model (%s): %s", e.Reason, e.Message)
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// GenerationReason 是生成失败的原因分类。
type GenerationReason string

const (
	GenerationOutOfMemory GenerationReason = "out_of_memory"
	GenerationDevice      GenerationReason = "device"
	GenerationTimeout     GenerationReason = "timeout"
	GenerationNotLoaded   GenerationReason = "not_loaded"
)

// GenerationError 表示一次生成失败。
type GenerationError struct {
	Reason GenerationReason
	Cause  error
}

func (e *GenerationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("generate (%s): %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("generate (%s)", e.Reason)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}
