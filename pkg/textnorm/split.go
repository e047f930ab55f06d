package textnorm

import "strings"

// 句末分隔符，分段合成长文本时按此切句
var sentenceTerminators = map[rune]bool{
	'。': true, '！': true, '？': true, '；': true,
	'!': true, '?': true, ';': true, '\n': true,
}

// SplitSentences 将长文本切分为句子，终止符保留在句尾。
// 无终止符的尾部作为最后一句返回。
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if sentenceTerminators[r] {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
