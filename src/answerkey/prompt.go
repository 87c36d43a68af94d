package answerkey

import (
	"regexp"
	"strings"
)

// DefaultMaxChars bounds how much recognized text is embedded in a prompt.
const DefaultMaxChars = 8000

// NotAvailable is the marker shown when nothing usable came back.
const NotAvailable = "N/A"

var promptHeader = strings.Join([]string{
	"你是阅卷老师。下面是从试卷截图 OCR 识别出来的文本，可能存在错字、断行、重复。",
	"",
	"任务：识别所有选择题题号，给出每题正确选项，并附上该选项对应的选项内容（简短即可）。",
	"",
	"输出要求（必须严格遵守）：",
	"1) 每行一题",
	"2) 格式：题号.选项：选项内容",
	"   示例：1.A：2",
	"3) 选项只允许 A/B/C/D；若无法判断则：题号.N/A：无法判断",
	"4) 按题号从小到大排序",
	"5) 不要输出任何解释、推理、额外文字",
	"",
	"OCR 文本如下：",
}, "\n")

// answerLine matches "<n>.<A|B|C|D|N/A>：" with a fullwidth colon.
var answerLine = regexp.MustCompile(`^\d+\.(A|B|C|D|N/A)：`)

var lineBreak = regexp.MustCompile(`\r?\n`)

// Clip returns the first maxChars characters of text. maxChars <= 0 uses DefaultMaxChars.
func Clip(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	n := 0
	for i := range text {
		if n == maxChars {
			return text[:i]
		}
		n++
	}
	return text
}

// BuildPrompt embeds recognized text, clipped to maxChars, in the grading template.
func BuildPrompt(text string, maxChars int) string {
	return promptHeader + "\n" + Clip(text, maxChars)
}

// Normalize keeps only lines in answer-key form. If none match it falls
// back to every non-blank line, and to N/A when there are none.
func Normalize(raw string) string {
	var lines, kept []string
	for _, l := range lineBreak.Split(raw, -1) {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		lines = append(lines, l)
		if answerLine.MatchString(l) {
			kept = append(kept, l)
		}
	}

	if len(kept) > 0 {
		return strings.Join(kept, "\n")
	}
	if len(lines) > 0 {
		return strings.Join(lines, "\n")
	}
	return NotAvailable
}
