package textproc

import "strings"

// UIMessages 是界面使用的多语言文案。
type UIMessages struct {
	Loading           string `json:"loading"`
	Error             string `json:"error"`
	Success           string `json:"success"`
	EmptyPrompt       string `json:"emptyPrompt"`
	Generating        string `json:"generating"`
	ModelLoading      string `json:"modelLoading"`
	ModelLoaded       string `json:"modelLoaded"`
	ChatPlaceholder   string `json:"chatPlaceholder"`
	Send              string `json:"send"`
	Clear             string `json:"clear"`
	Generate          string `json:"generate"`
	NewChat           string `json:"newChat"`
	ChatHistory       string `json:"chatHistory"`
	GenerationFailed  string `json:"generationFailed"`
	GenerationTimeout string `json:"generationTimeout"`
}

var koreanMessages = UIMessages{
	Loading:           "로딩 중...",
	Error:             "오류가 발생했습니다.",
	Success:           "성공적으로 완료되었습니다.",
	EmptyPrompt:       "프롬프트를 입력해주세요.",
	Generating:        "생성 중...",
	ModelLoading:      "모델을 로드하는 중입니다...",
	ModelLoaded:       "모델이 로드되었습니다.",
	ChatPlaceholder:   "메시지를 입력하세요...",
	Send:              "전송",
	Clear:             "지우기",
	Generate:          "생성하기",
	NewChat:           "새 채팅",
	ChatHistory:       "채팅 기록",
	GenerationFailed:  "응답을 생성하는 중 오류가 발생했습니다. 잠시 후 다시 시도해주세요.",
	GenerationTimeout: "응답 시간이 초과되었습니다. 잠시 후 다시 시도해주세요.",
}

var englishMessages = UIMessages{
	Loading:           "Loading...",
	Error:             "An error occurred.",
	Success:           "Completed successfully.",
	EmptyPrompt:       "Please enter a prompt.",
	Generating:        "Generating...",
	ModelLoading:      "Loading model...",
	ModelLoaded:       "Model loaded.",
	ChatPlaceholder:   "Type your message...",
	Send:              "Send",
	Clear:             "Clear",
	Generate:          "Generate",
	NewChat:           "New Chat",
	ChatHistory:       "Chat History",
	GenerationFailed:  "An error occurred while generating a response. Please try again shortly.",
	GenerationTimeout: "The response timed out. Please try again shortly.",
}

// Messages 返回指定界面语言的文案，"ko" 以外的值都返回英文。
func Messages(lang string) UIMessages {
	if strings.EqualFold(lang, "ko") {
		return koreanMessages
	}
	return englishMessages
}

const titleMaxRunes = 30

// SessionTitle 以首条用户消息生成会话标题，超过 30 个字符时截断并追加 "..."。
func SessionTitle(firstMessage string) string {
	runes := []rune(strings.TrimSpace(firstMessage))
	if len(runes) > titleMaxRunes {
		return string(runes[:titleMaxRunes]) + "..."
	}
	return string(runes)
}
