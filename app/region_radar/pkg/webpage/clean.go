package webpage

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// 页面正文最多保留的字符数
const maxTextLength = 50000

var (
	urlPattern     = regexp.MustCompile(`(?i)https?://\S+|www\.\S+`)
	controlPattern = regexp.MustCompile(`[\x00-\x1f\x7f-\x{9f}]`)
	spacePattern   = regexp.MustCompile(`\s+`)
	// Go 的 \b 只识别 ASCII，这里用字母数字边界代替
	sensitivePattern = regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}_])(ИНН|БИК|ОГРН|Паспорт|СНИЛС|КПП|Карта|Телефон|Email)([^\p{L}\p{N}_]|$)`)
)

var noiseMarkers = []string{"cookie", "реклама", "ads", "banner", "advertisement"}

// Sanitize 按行过滤页面文本：丢弃过短行与广告行，去掉控制字符，
// 再删除链接与敏感字段名称，合并空白并截断
func Sanitize(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) <= 5 || isNoise(line) {
			continue
		}
		kept = append(kept, controlPattern.ReplaceAllString(line, ""))
	}
	return truncate(Redact(strings.Join(kept, "\n")), maxTextLength)
}

// Redact 删除链接与敏感字段名称并合并空白
func Redact(text string) string {
	text = urlPattern.ReplaceAllString(text, "")
	// 相邻的敏感词共享边界字符，需要重复替换
	for {
		next := sensitivePattern.ReplaceAllString(text, "${1}${3}")
		if next == text {
			break
		}
		text = next
	}
	return strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
}

func isNoise(line string) bool {
	lower := strings.ToLower(line)
	for _, m := range noiseMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
