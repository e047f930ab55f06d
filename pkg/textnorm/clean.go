package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	// 合成文本白名单：汉字、字母数字、空白和常用中英文标点
	unsupportedCharRe = regexp.MustCompile(`[^\x{4e00}-\x{9fff}\w\s.,!?;:()"'` + "“”‘’" + `《》【】（）、。！？；：，\-+=@_]`)
)

// CleanForTTS 清理文本使其适合语音合成：
// 全角字母数字折叠为半角，压缩空白，去除白名单外的字符
func CleanForTTS(text string) string {
	if text == "" {
		return ""
	}
	text = foldWidth(text)
	text = strings.TrimSpace(text)
	text = whitespaceRe.ReplaceAllString(text, " ")
	return unsupportedCharRe.ReplaceAllString(text, "")
}

// foldWidth 仅折叠全角字母和数字，保留中文标点原样
func foldWidth(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			folded := width.Fold.String(string(r))
			b.WriteString(folded)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
