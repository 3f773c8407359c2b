package tts

import (
	"regexp"
	"strings"
)

var (
	// 保留字母、数字、下划线、空白和 .,!?;:-
	disallowedChars = regexp.MustCompile(`[^\p{L}\p{N}\p{M}_\s.,!?;:\-]`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
)

// PreprocessText 去掉不支持的符号并合并连续空白。language 目前不影响结果。
// 函数是幂等的。
func PreprocessText(text, language string) string {
	text = disallowedChars.ReplaceAllString(text, "")
	text = whitespaceRun.ReplaceAllString(strings.TrimSpace(text), " ")
	return strings.TrimSpace(text)
}
