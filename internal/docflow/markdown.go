package docflow

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/zj00777/feishu-power-skill/internal/feishu"
)

// Docx block types
const (
	BlockText    = 2
	BlockBullet  = 12
	BlockOrdered = 13
	BlockDivider = 22
)

var (
	headingLine   = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	bulletLine    = regexp.MustCompile(`^[-*+]\s+`)
	orderedLine   = regexp.MustCompile(`^\d+\.\s+(.+)$`)
	quoteLine     = regexp.MustCompile(`^>\s?`)
	separatorLine = regexp.MustCompile(`^\|[\s\-:|]+\|$`)
)

// MarkdownToBlocks converts markdown into docx blocks, one block per line.
// Consecutive table lines collapse into a single preformatted text block.
// Blank lines are dropped.
func MarkdownToBlocks(md string) []feishu.Block {
	lines := strings.Split(md, "\n")
	blocks := []feishu.Block{}

	for i := 0; i < len(lines); {
		line := strings.TrimSpace(lines[i])

		switch {
		case line == "":
			i++

		case line == "---" || line == "***" || line == "___":
			blocks = append(blocks, feishu.Block{"block_type": BlockDivider, "divider": map[string]interface{}{}})
			i++

		case headingLine.MatchString(line):
			m := headingLine.FindStringSubmatch(line)
			level := len(m[1])
			block := feishu.Block{"block_type": BlockText + level}
			block["heading"+strconv.Itoa(level)] = map[string]interface{}{"elements": inline(m[2])}
			blocks = append(blocks, block)
			i++

		case bulletLine.MatchString(line):
			blocks = append(blocks, feishu.Block{
				"block_type": BlockBullet,
				"bullet":     map[string]interface{}{"elements": inline(bulletLine.ReplaceAllString(line, ""))},
			})
			i++

		case orderedLine.MatchString(line):
			m := orderedLine.FindStringSubmatch(line)
			blocks = append(blocks, feishu.Block{
				"block_type": BlockOrdered,
				"ordered":    map[string]interface{}{"elements": inline(m[1])},
			})
			i++

		case strings.HasPrefix(line, "|"):
			var table []string
			for i < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[i]), "|") {
				table = append(table, strings.TrimSpace(lines[i]))
				i++
			}
			if text, ok := tableText(table); ok {
				blocks = append(blocks, textBlock([]map[string]interface{}{element(text, false)}))
			} else {
				for _, l := range table {
					blocks = append(blocks, textBlock(inline(l)))
				}
			}

		case quoteLine.MatchString(line):
			blocks = append(blocks, textBlock(inline(quoteLine.ReplaceAllString(line, ""))))
			i++

		default:
			blocks = append(blocks, textBlock(inline(line)))
			i++
		}
	}
	return blocks
}

// tableText renders table lines as aligned plain text: a header, a dash rule
// as wide as the header, then rows padded or truncated to the header width.
// It reports false when there are fewer than two lines.
func tableText(lines []string) (string, bool) {
	if len(lines) < 2 {
		return "", false
	}

	var rows [][]string
	for _, line := range lines {
		if separatorLine.MatchString(line) {
			continue
		}
		parts := strings.Split(strings.Trim(line, "|"), "|")
		for j := range parts {
			parts[j] = strings.TrimSpace(parts[j])
		}
		rows = append(rows, parts)
	}
	if len(rows) == 0 {
		return "", false
	}

	header := strings.Join(rows[0], " | ")
	out := []string{header, strings.Repeat("-", utf8.RuneCountInString(header))}
	width := len(rows[0])
	for _, row := range rows[1:] {
		cells := make([]string, width)
		copy(cells, row)
		out = append(out, strings.Join(cells, " | "))
	}
	return strings.Join(out, "\n"), true
}

func textBlock(elements []map[string]interface{}) feishu.Block {
	return feishu.Block{
		"block_type": BlockText,
		"text":       map[string]interface{}{"elements": elements},
	}
}

// inline splits text on ** markers; odd segments are bold
func inline(text string) []map[string]interface{} {
	var out []map[string]interface{}
	for i, part := range strings.Split(text, "**") {
		if part == "" {
			continue
		}
		out = append(out, element(part, i%2 == 1))
	}
	if len(out) == 0 {
		return []map[string]interface{}{element(text, false)}
	}
	return out
}

func element(content string, bold bool) map[string]interface{} {
	run := map[string]interface{}{"content": content}
	if bold {
		run["text_element_style"] = map[string]interface{}{"bold": true}
	}
	return map[string]interface{}{"text_run": run}
}
