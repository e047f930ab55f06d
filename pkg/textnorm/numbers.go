package textnorm

import (
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// 中文数字与阿拉伯数字互转，面向语音识别结果的逆文本标准化

var digitToChinese = []rune("零一二三四五六七八九")

var chineseToDigit = map[rune]int64{
	'零': 0, '一': 1, '二': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

var (
	// 连续三个以上单字数字视为号码，逐位转换
	consecutiveDigitsRe = regexp.MustCompile(`[零一二三四五六七八九]{3,}`)
	chineseNumberRe     = regexp.MustCompile(`负?[零一二三四五六七八九十百千万亿]+(?:点[零一二三四五六七八九]+)?`)
	arabicNumberRe      = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// 负字的常见非数字用法，出现时不按负数处理
var commonNegativeWords = map[string]bool{
	"负心": true, "负责": true, "负担": true, "负面": true,
	"负荷": true, "负债": true, "负载": true, "负重": true,
}

// 识别结果按整句转换，近期句子高度重复，缓存收益明显
var itnCache, _ = lru.New[string, string](1024)

// ChineseToArabic 将文本中的中文数字转换为阿拉伯数字
func ChineseToArabic(text string) string {
	if text == "" {
		return text
	}

	// 先逐位转换连续数字（电话号码等）
	text = consecutiveDigitsRe.ReplaceAllStringFunc(text, func(s string) string {
		var b strings.Builder
		for _, r := range s {
			if d, ok := chineseToDigit[r]; ok {
				b.WriteString(strconv.FormatInt(d, 10))
			}
		}
		return b.String()
	})

	return chineseNumberRe.ReplaceAllStringFunc(text, func(s string) string {
		if strings.HasPrefix(s, "负") && !isNegativeUsage(s) {
			return "负" + formatChineseNumber(strings.TrimPrefix(s, "负"))
		}
		return formatChineseNumber(s)
	})
}

// isNegativeUsage 判断负字是否表示负数而非构词
func isNegativeUsage(matched string) bool {
	runes := []rune(matched)
	if len(runes) > 1 && commonNegativeWords[string(runes[:2])] {
		return false
	}
	return true
}

// formatChineseNumber 解析中文数字并格式化为十进制字符串
func formatChineseNumber(s string) string {
	negative := strings.HasPrefix(s, "负")
	body := strings.TrimPrefix(s, "负")

	intPart, decPart, hasDecimal := strings.Cut(body, "点")
	value := parseChineseInteger(intPart)

	if hasDecimal {
		f := float64(value)
		scale := 0.1
		for _, r := range decPart {
			if d, ok := chineseToDigit[r]; ok {
				f += float64(d) * scale
				scale /= 10
			}
		}
		if negative {
			f = -f
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	if negative {
		value = -value
	}
	return strconv.FormatInt(value, 10)
}

// parseChineseInteger 解析中文整数，逐字符累积段值
func parseChineseInteger(s string) int64 {
	var result, current, temp int64
	for _, r := range s {
		switch {
		case chineseToDigit[r] != 0 || r == '零':
			temp = chineseToDigit[r]
		case r == '十':
			if temp == 0 {
				temp = 1
			}
			current += temp * 10
			temp = 0
		case r == '百':
			if temp == 0 {
				temp = 1
			}
			current += temp * 100
			temp = 0
		case r == '千':
			if temp == 0 {
				temp = 1
			}
			current += temp * 1000
			temp = 0
		case r == '万':
			current += temp
			temp = 0
			if current == 0 {
				current = 1
			}
			result += current * 10000
			current = 0
		case r == '亿':
			current += temp
			temp = 0
			if current == 0 {
				current = 1
			}
			result += current * 100000000
			current = 0
		}
	}
	return result + current + temp
}

// ArabicToChinese 将十进制数字字符串转换为中文读法
func ArabicToChinese(number string) string {
	number = strings.TrimSpace(number)
	if number == "" || number == "0" {
		return "零"
	}

	negative := strings.HasPrefix(number, "-")
	number = strings.TrimPrefix(number, "-")

	intPart, decPart, hasDecimal := strings.Cut(number, ".")
	n, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return number
	}

	result := convertIntegerPart(n)
	if hasDecimal {
		result += "点"
		for _, r := range decPart {
			if r >= '0' && r <= '9' {
				result += string(digitToChinese[r-'0'])
			}
		}
	}
	if negative {
		return "负" + result
	}
	return result
}

func convertIntegerPart(n int64) string {
	if n == 0 {
		return "零"
	}
	if n < 0 {
		return "负" + convertIntegerPart(-n)
	}
	if n < 10 {
		return string(digitToChinese[n])
	}
	if n < 20 {
		if n == 10 {
			return "十"
		}
		return "十" + string(digitToChinese[n-10])
	}
	if n < 100 {
		result := string(digitToChinese[n/10]) + "十"
		if n%10 > 0 {
			result += string(digitToChinese[n%10])
		}
		return result
	}
	if n < 1000 {
		result := string(digitToChinese[n/100]) + "百"
		rem := n % 100
		switch {
		case rem == 0:
		case rem < 10:
			result += "零" + string(digitToChinese[rem])
		case rem < 20:
			// 110~119读作一十X
			result += "一十"
			if rem > 10 {
				result += string(digitToChinese[rem-10])
			}
		default:
			result += convertIntegerPart(rem)
		}
		return result
	}
	if n < 10000 {
		result := string(digitToChinese[n/1000]) + "千"
		rem := n % 1000
		if rem > 0 {
			if rem < 100 {
				result += "零"
			}
			result += convertIntegerPart(rem)
		}
		return result
	}
	if n < 100000000 {
		result := convertIntegerPart(n/10000) + "万"
		rem := n % 10000
		if rem > 0 {
			if rem < 1000 {
				result += "零"
			}
			result += convertIntegerPart(rem)
		}
		return result
	}
	result := convertIntegerPart(n/100000000) + "亿"
	rem := n % 100000000
	if rem > 0 {
		if rem < 10000000 {
			result += "零"
		}
		result += convertIntegerPart(rem)
	}
	return result
}

// ConvertTextArabicToChinese 将文本中的阿拉伯数字转换为中文读法，用于合成前处理
func ConvertTextArabicToChinese(text string) string {
	return arabicNumberRe.ReplaceAllStringFunc(text, ArabicToChinese)
}

// ApplyITN 对识别结果应用逆文本标准化
func ApplyITN(text string) string {
	if text == "" {
		return text
	}
	if cached, ok := itnCache.Get(text); ok {
		return cached
	}
	result := ChineseToArabic(text)
	itnCache.Add(text, result)
	return result
}
