package textproc

import (
	"strings"

	"hbai-chat-go/internal/model"
)

const (
	imStart = "<|im_start|>"
	imEnd   = "<|im_end|>"

	// DefaultMaxContextTurns 是构建提示词时默认保留的最大消息数（包含当前用户消息）。
	DefaultMaxContextTurns = 10

	koreanInstruction  = "당신은 한국어와 영어를 모두 지원하는 도움이 되는 AI 어시스턴트입니다. 사용자의 언어에 맞춰 적절하게 응답해주세요."
	englishInstruction = "You are a helpful AI assistant that supports both Korean and English. Reply in the language the user writes in."

	koreanGenerationHint = "다음 내용에 대해 한국어로 자세히 설명해주세요: "
)

// StopSequence 是 ChatML 单轮结束标记，解码时作为停止序列。
const StopSequence = imEnd

// Processor 按 ChatML 格式构建提示词，并按上下文窗口截断历史。
type Processor struct {
	maxContextTurns int
}

// NewProcessor 创建一个 Processor，maxContextTurns <= 0 时使用默认值。
func NewProcessor(maxContextTurns int) *Processor {
	if maxContextTurns <= 0 {
		maxContextTurns = DefaultMaxContextTurns
	}
	return &Processor{maxContextTurns: maxContextTurns}
}

// MaxContextTurns 返回上下文窗口大小。
func (p *Processor) MaxContextTurns() int {
	return p.maxContextTurns
}

// BuildPrompt 渲染 system 指令、窗口内的历史消息和当前用户消息，并以 assistant 起始标记结尾。
// 当前用户消息计入窗口，因此历史最多保留 maxContextTurns-1 条。
func (p *Processor) BuildPrompt(userText string, history model.ChatHistory, tag LanguageTag) string {
	var b strings.Builder
	writeBlock(&b, "system", instruction(tag))
	for _, turn := range history.Window(p.maxContextTurns - 1) {
		switch turn.Role {
		case model.RoleUser, model.RoleAssistant:
			writeBlock(&b, string(turn.Role), turn.Text)
		}
	}
	writeBlock(&b, string(model.RoleUser), userText)
	b.WriteString(imStart)
	b.WriteString(string(model.RoleAssistant))
	b.WriteString("\n")
	return b.String()
}

// BuildGenerationPrompt 构建单次文本生成的提示词，韩文输入会附加韩语说明提示。
func (p *Processor) BuildGenerationPrompt(text string, tag LanguageTag) string {
	if UsesKorean(tag) {
		text = koreanGenerationHint + text
	}
	var b strings.Builder
	writeBlock(&b, string(model.RoleUser), text)
	b.WriteString(imStart)
	b.WriteString(string(model.RoleAssistant))
	b.WriteString("\n")
	return b.String()
}

func instruction(tag LanguageTag) string {
	if UsesKorean(tag) {
		return koreanInstruction
	}
	return englishInstruction
}

func writeBlock(b *strings.Builder, role, text string) {
	b.WriteString(imStart)
	b.WriteString(role)
	b.WriteString("\n")
	b.WriteString(neutralizeTokens(text))
	b.WriteString(imEnd)
	b.WriteString("\n")
}

// neutralizeTokens 打断文本中的特殊标记，防止消息内容伪造角色边界。
func neutralizeTokens(text string) string {
	return strings.ReplaceAll(text, "<|", "< |")
}
