package generator

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"hbai-chat-go/internal/model"
	"hbai-chat-go/pkg/log"
	"hbai-chat-go/pkg/textproc"
)

// MaxMockDelay 是模拟生成的最大延迟。
const MaxMockDelay = 2 * time.Second

// mockFallbackInput 在用户输入为空时代替插值内容。
const mockFallbackInput = "Hello"

var koreanMockResponses = []string{
	"'{message}'에 대한 흥미로운 질문이네요! 자세히 설명해 드리겠습니다.",
	"말씀하신 '{message}' 관련해서 도움을 드릴 수 있습니다. 어떤 부분이 궁금하신가요?",
	"네, 이해했습니다. 한국어로 자연스럽게 대화하며 도움을 드리겠습니다.",
	"좋은 질문입니다! 더 자세한 정보를 원하시면 언제든 말씀해 주세요.",
}

var englishMockResponses = []string{
	"That's an interesting question about '{message}'! Let me explain in detail.",
	"I can help you with '{message}'. What specific aspect would you like to know more about?",
	"Yes, I understand. I'm here to help you with natural conversation in both languages.",
	"Great question! Feel free to ask if you need more detailed information.",
}

// MockModelManager 在真实模型不可用时返回预置回复，从不失败。
type MockModelManager struct {
	cfg   model.ModelConfig
	delay time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockModelManager 创建模拟后端。delay 超过 MaxMockDelay 时按上限处理；rng 为空时使用随机种子。
func NewMockModelManager(cfg model.ModelConfig, delay time.Duration, rng *rand.Rand) *MockModelManager {
	if delay < 0 {
		delay = 0
	}
	if delay > MaxMockDelay {
		delay = MaxMockDelay
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.MaxContextTurns <= 0 {
		cfg.MaxContextTurns = textproc.DefaultMaxContextTurns
	}
	log.Infof("[MockModelManager] 使用模拟后端, delay: %s", delay)
	return &MockModelManager{cfg: cfg, delay: delay, rng: rng}
}

// Generate 返回一条与输入语言一致的预置回复，历史不参与生成。
func (m *MockModelManager) Generate(ctx context.Context, userText string, _ model.ChatHistory) (string, error) {
	return m.respond(ctx, userText), nil
}

// GenerateText 与 Generate 行为相同。
func (m *MockModelManager) GenerateText(ctx context.Context, text string) (string, error) {
	return m.respond(ctx, text), nil
}

func (m *MockModelManager) respond(ctx context.Context, userText string) string {
	m.wait(ctx)

	message := strings.TrimSpace(userText)
	if message == "" {
		message = mockFallbackInput
	}
	tag := textproc.DetectLanguage(message)
	candidates := englishMockResponses
	if textproc.UsesKorean(tag) {
		candidates = koreanMockResponses
	}

	m.mu.Lock()
	idx := m.rng.IntN(len(candidates))
	m.mu.Unlock()

	reply := strings.ReplaceAll(candidates[idx], "{message}", message)
	return textproc.Postprocess(reply, tag)
}

// wait 模拟解码耗时；ctx 提前结束时立即返回，但仍然给出回复。
func (m *MockModelManager) wait(ctx context.Context) {
	if m.delay <= 0 {
		return
	}
	timer := time.NewTimer(m.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Unload 对模拟后端无实际操作。
func (m *MockModelManager) Unload() {}

// Info 返回模拟后端信息。
func (m *MockModelManager) Info() BackendInfo {
	return BackendInfo{
		Kind:            KindMock,
		ModelName:       "mock",
		Device:          string(m.cfg.Device),
		Quantization:    quantizationLabel(m.cfg),
		MaxContextTurns: m.cfg.MaxContextTurns,
		Loaded:          true,
	}
}
