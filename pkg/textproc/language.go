// Package textproc 负责聊天文本的语言检测、提示词构建与模型输出清理。
// 包内函数均为纯函数，对任意输入都返回结果，不返回错误。
package textproc

import "unicode"

// LanguageTag 是按消息重新计算的语言标签，不做持久化。
type LanguageTag string

const (
	Korean  LanguageTag = "korean"
	English LanguageTag = "english"
	Mixed   LanguageTag = "mixed"
)

// DetectLanguage 根据韩文字符与拉丁字母的出现情况对文本分类：
// 两者都有为 mixed，只有韩文为 korean，其余（包括空串）为 english。
func DetectLanguage(text string) LanguageTag {
	var hangul, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Hangul, r):
			hangul++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	switch {
	case hangul > 0 && latin > 0:
		return Mixed
	case hangul > 0:
		return Korean
	default:
		return English
	}
}

// UsesKorean 报告该标签是否应使用韩语措辞。
func UsesKorean(tag LanguageTag) bool {
	return tag == Korean || tag == Mixed
}

// LanguageCode 返回标签对应的界面语言代码（ko 或 en）。
func LanguageCode(tag LanguageTag) string {
	if UsesKorean(tag) {
		return "ko"
	}
	return "en"
}

func isHangulSyllable(r rune) bool {
	return r >= 0xAC00 && r <= 0xD7A3
}
