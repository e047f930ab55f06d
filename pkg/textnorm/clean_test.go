package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanForTTS(t *testing.T) {
	assert.Equal(t, "", CleanForTTS(""))
	assert.Equal(t, "", CleanForTTS("   "))
	assert.Equal(t, "你好，世界。", CleanForTTS("  你好，世界。  "))
	assert.Equal(t, "hello world", CleanForTTS("hello    world"))
	assert.Equal(t, "价格是100元！", CleanForTTS("价格是100元！"))
}

func TestCleanForTTSRemovesUnsupported(t *testing.T) {
	assert.Equal(t, "今天天气不错", CleanForTTS("今天天气🌞不错"))
	assert.Equal(t, "标题内容", CleanForTTS("标题★内容"))
}

func TestCleanForTTSFoldsFullwidth(t *testing.T) {
	// 全角字母数字折叠为半角，中文标点保留
	assert.Equal(t, "ABC123，好。", CleanForTTS("ＡＢＣ１２３，好。"))
}

func TestSplitSentences(t *testing.T) {
	assert.Nil(t, SplitSentences(""))
	assert.Equal(t, []string{"你好。"}, SplitSentences("你好。"))
	assert.Equal(t,
		[]string{"第一句。", "第二句！", "第三句"},
		SplitSentences("第一句。第二句！第三句"))
	assert.Equal(t,
		[]string{"line one?", "line two"},
		SplitSentences("line one?\nline two"))
}
