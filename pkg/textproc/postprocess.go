package textproc

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	specialTokenRe = regexp.MustCompile(`<\|.*?\|>`)
	lineEdgeRe     = regexp.MustCompile(`[ \t]*\n[ \t]*`)
	blankLinesRe   = regexp.MustCompile(`\n{2,}`)
	spacesRe       = regexp.MustCompile(`[ \t\f\v]+`)
	danglingTailRe = regexp.MustCompile(`[\s,;:]+$`)

	spaceBeforePunctRe = regexp.MustCompile(` +([,.!?;:])`)
	punctHangulRe      = regexp.MustCompile(`([,.!?;:])([가-힣])`)
	punctLatinRe       = regexp.MustCompile(`([,!?;])([A-Za-z])`)
	splitParticleRe    = regexp.MustCompile(`([가-힣]) (을|를|은|는|에게|에서|으로|까지|부터|처럼)([ \n.,!?;:]|$)`)
)

var questionEndings = []string{"까", "나요", "까요"}

// Postprocess 清理模型输出：去除特殊标记、合并多余空白、去掉截断留下的尾部标点；
// 对 korean/mixed 额外按韩文书写规则调整标点与助词间距，并补全句末标点。
// 清理流程迭代到不再变化为止，因此对同一结果再次调用不会改变它。
func Postprocess(raw string, tag LanguageTag) string {
	out := raw
	for {
		next := postprocessPass(out, tag)
		if next == out {
			return out
		}
		out = next
	}
}

// stripSpecialTokens 反复去除 <|...|> 标记，直到不再出现。每轮都会缩短字符串，
// 因此嵌套标记也能在有限轮内清除。
func stripSpecialTokens(s string) string {
	for specialTokenRe.MatchString(s) {
		s = specialTokenRe.ReplaceAllString(s, "")
	}
	return s
}

func postprocessPass(s string, tag LanguageTag) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = stripSpecialTokens(s)
	s = spacesRe.ReplaceAllString(s, " ")
	s = lineEdgeRe.ReplaceAllString(s, "\n")
	s = blankLinesRe.ReplaceAllString(s, "\n")
	s = strings.TrimSpace(s)

	if UsesKorean(tag) {
		s = fixKoreanSpacing(s)
	}
	s = danglingTailRe.ReplaceAllString(s, "")
	if UsesKorean(tag) {
		s = terminateSentence(s)
	}
	return s
}

func fixKoreanSpacing(s string) string {
	s = spaceBeforePunctRe.ReplaceAllString(s, "$1")
	s = punctHangulRe.ReplaceAllString(s, "$1 $2")
	s = punctLatinRe.ReplaceAllString(s, "$1 $2")
	s = splitParticleRe.ReplaceAllString(s, "$1$2$3")
	return s
}

// terminateSentence 为以韩文音节结尾、缺少句末标点的回复补上 "." 或 "?"。
func terminateSentence(s string) string {
	last, _ := utf8.DecodeLastRuneInString(s)
	if !isHangulSyllable(last) {
		return s
	}
	for _, ending := range questionEndings {
		if strings.HasSuffix(s, ending) {
			return s + "?"
		}
	}
	return s + "."
}
